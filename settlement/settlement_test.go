package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hibiken/asynq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/pmm-go/common"
	"github.com/TEENet-io/pmm-go/etherman"
	"github.com/TEENet-io/pmm-go/signature"
	"github.com/TEENet-io/pmm-go/solver"
	"github.com/TEENet-io/pmm-go/state"
	"github.com/TEENet-io/pmm-go/tokensync"
	"github.com/TEENet-io/pmm-go/transfer"
)

const (
	testPmmId   = "pmm-test"
	testTradeId = "0xabc0000000000000000000000000000000000000000000000000000000000001"
)

var testReceiver = ethcommon.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

type fakeRouter struct {
	selected  string
	amountOut *big.Int
	toChain   [3][]byte
	signer    ethcommon.Address
	domain    *etherman.EIP712Domain
	err       error
}

func (r *fakeRouter) GetPMMSelection(ctx context.Context, tradeId [32]byte) (*etherman.PMMSelection, error) {
	if r.err != nil {
		return nil, r.err
	}
	id, _ := common.StringToBytes32(r.selected)
	return &etherman.PMMSelection{PmmInfo: etherman.SelectedPMMInfo{
		AmountOut:     r.amountOut,
		SelectedPMMId: id,
	}}, nil
}

func (r *fakeRouter) GetTradeData(ctx context.Context, tradeId [32]byte) (*etherman.TradeData, error) {
	return &etherman.TradeData{TradeInfo: etherman.TradeInfo{ToChain: r.toChain}}, nil
}

func (r *fakeRouter) GetFeeDetails(ctx context.Context, tradeId [32]byte) (*etherman.FeeDetails, error) {
	return &etherman.FeeDetails{TotalAmount: big.NewInt(10)}, nil
}

func (r *fakeRouter) GetSigner(ctx context.Context) (ethcommon.Address, error) {
	return r.signer, nil
}

func (r *fakeRouter) GetEIP712Domain(ctx context.Context, signer ethcommon.Address) (*etherman.EIP712Domain, error) {
	return r.domain, nil
}

type enqueuedTransfer struct {
	payload *TransferPayload
	delay   time.Duration
}

type fakeProducer struct {
	mu        sync.Mutex
	transfers []enqueuedTransfer
	submits   []*SubmitPayload
	err       error
}

func (p *fakeProducer) EnqueueTransfer(ctx context.Context, payload *TransferPayload, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.transfers = append(p.transfers, enqueuedTransfer{payload, delay})
	return nil
}

func (p *fakeProducer) EnqueueSubmit(ctx context.Context, payload *SubmitPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.submits = append(p.submits, payload)
	return nil
}

type memLedger struct {
	payments map[string]string
	err      error
}

func (l *memLedger) Record(ctx context.Context, tradeId, txId string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if _, ok := l.payments[tradeId]; ok {
		return false, nil
	}
	l.payments[tradeId] = txId
	return true, nil
}

func (l *memLedger) Lookup(ctx context.Context, tradeId string) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	txId, ok := l.payments[tradeId]
	return txId, ok, nil
}

type countingStrategy struct {
	calls  int
	txId   string
	err    error
	params *transfer.TransferParams
}

func (s *countingStrategy) Transfer(ctx context.Context, params *transfer.TransferParams) (string, error) {
	s.calls++
	s.params = params
	return s.txId, s.err
}

type fixture struct {
	router   *fakeRouter
	producer *fakeProducer
	trades   *state.TradeDB
	tokens   *state.TokenDB
	ledger   *memLedger
}

func newFixture(t *testing.T) *fixture {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "pmm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	trades, err := state.NewTradeDB(db)
	require.NoError(t, err)
	tokens, err := state.NewTokenDB(db)
	require.NoError(t, err)
	for _, token := range state.DefaultTokens() {
		require.NoError(t, tokens.Upsert(context.Background(), token))
	}

	return &fixture{
		router: &fakeRouter{
			selected:  testPmmId,
			amountOut: big.NewInt(1_000_000),
			toChain:   [3][]byte{[]byte(testReceiver.Hex()), []byte("ethereum_sepolia"), []byte("native")},
		},
		producer: &fakeProducer{},
		trades:   trades,
		tokens:   tokens,
		ledger:   &memLedger{payments: map[string]string{}},
	}
}

func (f *fixture) transferWorker(factory *transfer.Factory) *TransferWorker {
	return NewTransferWorker(TransferWorkerConfig{
		PmmId:      testPmmId,
		MaxRetries: 3,
		RetryDelay: 30 * time.Second,
	}, f.router, f.tokens, factory, f.producer, f.trades, f.ledger)
}

func TestTransferSkipsOtherPmm(t *testing.T) {
	f := newFixture(t)
	f.router.selected = "someone-else"
	evm := &countingStrategy{txId: "0xdef"}

	err := f.transferWorker(transfer.NewFactory(evm, nil, nil)).
		Process(context.Background(), &TransferPayload{TradeId: testTradeId})
	require.NoError(t, err)
	assert.Zero(t, evm.calls)
	assert.Empty(t, f.producer.transfers)
	assert.Empty(t, f.producer.submits)
}

func TestTransferEnqueuesSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.trades.Insert(ctx, testTradeId, state.TradeSettling))
	evm := &countingStrategy{txId: "0xdef"}

	err := f.transferWorker(transfer.NewFactory(evm, nil, nil)).Process(ctx, &TransferPayload{TradeId: testTradeId})
	require.NoError(t, err)

	require.Equal(t, 1, evm.calls)
	assert.Equal(t, testReceiver.Hex(), evm.params.ToAddress)
	assert.Equal(t, state.NetworkEVM, evm.params.Token.NetworkType)
	assert.Equal(t, int64(1_000_000), evm.params.Amount.Int64())

	require.Len(t, f.producer.submits, 1)
	assert.Equal(t, testTradeId, f.producer.submits[0].TradeId)
	assert.Equal(t, "0xdef", f.producer.submits[0].PaymentTxId)
	assert.Equal(t, "0xdef", f.ledger.payments[testTradeId])

	trade, err := f.trades.Get(ctx, testTradeId)
	require.NoError(t, err)
	assert.Equal(t, state.TradePaymentSent, trade.Status)
	assert.Equal(t, "0xdef", trade.PaymentTxId)
}

func TestTransferAlreadyPaid(t *testing.T) {
	f := newFixture(t)
	f.ledger.payments[testTradeId] = "0xpaid"
	evm := &countingStrategy{txId: "0xdef"}

	err := f.transferWorker(transfer.NewFactory(evm, nil, nil)).
		Process(context.Background(), &TransferPayload{TradeId: testTradeId, RetryCount: 1})
	require.NoError(t, err)
	assert.Zero(t, evm.calls)
	require.Len(t, f.producer.submits, 1)
	assert.Equal(t, "0xpaid", f.producer.submits[0].PaymentTxId)
}

func TestTransferPaidDuringRedisOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.trades.Insert(ctx, testTradeId, state.TradeSettling))
	redisDown := errors.New("dial tcp: connection refused")
	f.ledger.err = redisDown
	f.producer.err = redisDown
	evm := &countingStrategy{txId: "0xdef"}
	w := f.transferWorker(transfer.NewFactory(evm, nil, nil))

	err := w.Process(ctx, &TransferPayload{TradeId: testTradeId})
	assert.ErrorIs(t, err, redisDown)
	require.Equal(t, 1, evm.calls)
	assert.Empty(t, f.ledger.payments)

	// redelivered while the ledger is still unreachable
	f.producer.err = nil
	require.NoError(t, w.Process(ctx, &TransferPayload{TradeId: testTradeId}))
	assert.Equal(t, 1, evm.calls)
	require.Len(t, f.producer.submits, 1)
	assert.Equal(t, "0xdef", f.producer.submits[0].PaymentTxId)

	// redelivered once redis is back, the ledger is backfilled
	f.ledger.err = nil
	require.NoError(t, w.Process(ctx, &TransferPayload{TradeId: testTradeId}))
	assert.Equal(t, 1, evm.calls)
	assert.Len(t, f.producer.submits, 2)
	assert.Equal(t, "0xdef", f.ledger.payments[testTradeId])
}

func TestTransferUnpaidWithLedgerDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.trades.Insert(ctx, testTradeId, state.TradeSettling))
	f.ledger.err = errors.New("redis down")
	evm := &countingStrategy{txId: "0xdef"}

	// the trade store says unpaid, so paying is safe
	require.NoError(t, f.transferWorker(transfer.NewFactory(evm, nil, nil)).
		Process(ctx, &TransferPayload{TradeId: testTradeId}))
	assert.Equal(t, 1, evm.calls)
	require.Len(t, f.producer.submits, 1)
}

func TestTransferUnknownTradeWithLedgerDown(t *testing.T) {
	f := newFixture(t)
	f.ledger.err = errors.New("redis down")
	evm := &countingStrategy{txId: "0xdef"}

	require.NoError(t, f.transferWorker(transfer.NewFactory(evm, nil, nil)).
		Process(context.Background(), &TransferPayload{TradeId: testTradeId}))
	assert.Zero(t, evm.calls)
	require.Len(t, f.producer.transfers, 1)
	assert.Equal(t, 1, f.producer.transfers[0].payload.RetryCount)
}

func TestTransferRetriesThenFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.trades.Insert(ctx, testTradeId, state.TradeSettling))
	rpcDown := errors.New("rpc timeout")
	evm := &countingStrategy{err: rpcDown}
	w := f.transferWorker(transfer.NewFactory(evm, nil, nil))

	payload := &TransferPayload{TradeId: testTradeId}
	for attempt := 0; attempt < 2; attempt++ {
		require.NoError(t, w.Process(ctx, payload))
		require.Len(t, f.producer.transfers, attempt+1)
		next := f.producer.transfers[attempt]
		assert.Equal(t, attempt+1, next.payload.RetryCount)
		assert.Equal(t, 30*time.Second, next.delay)
		payload = next.payload
	}

	err := w.Process(ctx, payload)
	require.Error(t, err)
	assert.ErrorIs(t, err, rpcDown)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 3, evm.calls)
	assert.Len(t, f.producer.transfers, 2)
	assert.Empty(t, f.producer.submits)

	trade, err := f.trades.Get(ctx, testTradeId)
	require.NoError(t, err)
	assert.Equal(t, state.TradeFailed, trade.Status)
	assert.Contains(t, trade.FailureReason, "rpc timeout")
}

func TestTransferConfigErrorIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.router.toChain = [3][]byte{[]byte("somewhere"), []byte("bitcoin"), []byte("native")}

	// no btc strategy registered
	err := f.transferWorker(transfer.NewFactory(&countingStrategy{}, nil, nil)).
		Process(context.Background(), &TransferPayload{TradeId: testTradeId})
	assert.ErrorIs(t, err, transfer.ErrUnsupportedNetworkType)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, f.producer.transfers)
}

func TestTransferUnknownToken(t *testing.T) {
	f := newFixture(t)
	f.router.toChain = [3][]byte{[]byte(testReceiver.Hex()), []byte("ethereum_sepolia"), []byte("0x1c7d4b196cb0c7b01d743fbc6116a902379c7238")}

	err := f.transferWorker(transfer.NewFactory(&countingStrategy{}, nil, nil)).
		Process(context.Background(), &TransferPayload{TradeId: testTradeId})
	assert.ErrorIs(t, err, state.ErrTokenNotFound)
}

func TestTransferSyncedErc20(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	usdc := "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
	f.router.toChain = [3][]byte{[]byte(testReceiver.Hex()), []byte("ethereum_sepolia"), []byte(strings.ToLower(usdc))}
	evm := &countingStrategy{txId: "0xdef"}
	w := f.transferWorker(transfer.NewFactory(evm, nil, nil))

	err := w.Process(ctx, &TransferPayload{TradeId: testTradeId})
	assert.ErrorIs(t, err, state.ErrTokenNotFound)
	assert.Zero(t, evm.calls)

	backend := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte(`{"data":{"tokens":[{"token_id":"USDC","network_id":"ethereum_sepolia","network_type":"EVM",
			"token_symbol":"USDC","token_address":"` + usdc + `","token_decimals":6}]},"trace_id":"t"}`))
	}))
	defer backend.Close()
	_, err = tokensync.New(tokensync.Config{}, solver.NewClient(backend.URL, time.Second), f.tokens).Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, w.Process(ctx, &TransferPayload{TradeId: testTradeId}))
	require.Equal(t, 1, evm.calls)
	assert.False(t, evm.params.Token.IsNative())
	assert.Equal(t, "USDC", evm.params.Token.TokenSymbol)
	assert.Equal(t, 6, evm.params.Token.TokenDecimals)
	assert.Len(t, f.producer.submits, 1)
}

func TestTransferNetworkMismatchIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.router.toChain = [3][]byte{[]byte("tb1qsomeone"), []byte("bitcoin_testnet"), []byte("native")}
	btc := &countingStrategy{err: fmt.Errorf("wallet on mainnet: %w", transfer.ErrNetworkMismatch)}

	err := f.transferWorker(transfer.NewFactory(nil, btc, nil)).
		Process(context.Background(), &TransferPayload{TradeId: testTradeId})
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 1, btc.calls)
	assert.Empty(t, f.producer.transfers)
}

func newSubmitFixture(t *testing.T, f *fixture) (*SubmitWorker, *ethcommon.Address) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	f.router.signer = ethcommon.HexToAddress("0x00000000000000000000000000000000005194e7")
	f.router.domain = signature.DefaultDomain(big.NewInt(11155111), f.router.signer)
	addr := crypto.PubkeyToAddress(key.PublicKey)
	return NewSubmitWorker(testPmmId, key, f.router, nil, f.trades), &addr
}

func TestSignedAtFreshness(t *testing.T) {
	f := newFixture(t)
	w, pmm := newSubmitFixture(t, f)
	ctx := context.Background()
	p := &SubmitPayload{TradeId: testTradeId, PaymentTxId: "0xdef"}

	a, err := w.Sign(ctx, p, 1_700_000_000)
	require.NoError(t, err)
	b, err := w.Sign(ctx, p, 1_700_000_001)
	require.NoError(t, err)
	assert.NotEqual(t, a.Signature, b.Signature)

	// an old signature does not verify against the new signedAt
	hash, err := signature.MakePaymentHash([][32]byte{ethcommon.HexToHash(testTradeId)},
		1_700_000_001, big.NewInt(0), signature.SettlementTxBytes("0xdef"))
	require.NoError(t, err)
	recovered, err := signature.RecoverMakePayment(f.router.domain, hash, hexutil.MustDecode(a.Signature))
	require.NoError(t, err)
	assert.NotEqual(t, *pmm, recovered)

	recovered, err = signature.RecoverMakePayment(f.router.domain, hash, hexutil.MustDecode(b.Signature))
	require.NoError(t, err)
	assert.Equal(t, *pmm, recovered)
}

func TestSubmitFailurePropagates(t *testing.T) {
	f := newFixture(t)
	w, _ := newSubmitFixture(t, f)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	w.solver = solver.NewClient(srv.URL, time.Second)

	err := w.Process(context.Background(), &SubmitPayload{TradeId: testTradeId, PaymentTxId: "0xdef"})
	assert.ErrorIs(t, err, solver.ErrBadStatus)
}

func TestSignalPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.trades, f.producer)

	err := svc.SignalPayment(ctx, testTradeId)
	assert.ErrorIs(t, err, state.ErrTradeNotFound)

	require.NoError(t, svc.CommitTrade(ctx, testTradeId))
	require.NoError(t, svc.SignalPayment(ctx, testTradeId))
	require.Len(t, f.producer.transfers, 1)
	assert.Equal(t, 0, f.producer.transfers[0].payload.RetryCount)
	assert.Zero(t, f.producer.transfers[0].delay)

	err = svc.SignalPayment(ctx, testTradeId)
	assert.ErrorIs(t, err, ErrTradeNotCommitted)

	// enqueue failure leaves the trade committed
	other := "0xabc0000000000000000000000000000000000000000000000000000000000002"
	require.NoError(t, svc.CommitTrade(ctx, other))
	f.producer.err = errors.New("redis down")
	assert.Error(t, svc.SignalPayment(ctx, other))
	trade, err := f.trades.Get(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, state.TradeCommitted, trade.Status)
}

func TestTaskOptions(t *testing.T) {
	task, err := newTransferTask(&TransferPayload{TradeId: testTradeId, RetryCount: 2}, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeTransfer, task.Type())
	assert.JSONEq(t, `{"tradeId":"`+testTradeId+`","retryCount":2}`, string(task.Payload()))

	task, err = newSubmitTask(&SubmitPayload{
		TradeId:     testTradeId,
		PaymentTxId: "0xdef",
		Amount:      common.NewBigInt(new(big.Int).Lsh(big.NewInt(1), 200)),
	}, 25)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeSubmit, task.Type())

	p, err := decodeSubmit(task.Payload())
	require.NoError(t, err)
	assert.Equal(t, 201, p.Amount.BitLen())

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(task.Payload(), &raw))
	assert.Contains(t, raw["amount"], "$bigint")

	_, err = decodeTransfer([]byte(`{"retryCount":1}`))
	assert.ErrorIs(t, err, ErrBadPayload)

	badId := "0x" + strings.Repeat("zz", 32)
	_, err = decodeTransfer([]byte(`{"tradeId":"` + badId + `"}`))
	assert.ErrorIs(t, err, ErrBadPayload)
	assert.ErrorIs(t, err, state.ErrInvalidTradeId)
	_, err = decodeSubmit([]byte(`{"tradeId":"` + badId + `","paymentTxId":"0xdef"}`))
	assert.ErrorIs(t, err, ErrBadPayload)
}

// trade 0xabc.. committed, paid on an evm chain, attestation accepted
func TestEndToEndEvm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sim := etherman.NewSimulatedChain(etherman.GenPrivateKeys(2))
	defer sim.Backend.Close()
	chain, err := etherman.NewEvmChain(ctx, sim.Client(), &etherman.ChainConfig{
		NetworkId:      "ethereum_sepolia",
		PaymentAddress: sim.PaymentAddress,
	}, sim.Keys[0])
	require.NoError(t, err)

	evm := transfer.NewEvmStrategy(func(context.Context, string) (transfer.EvmPayer, error) {
		return chain, nil
	}, f.router, nil)

	var submitted solver.SubmitSettlementRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&submitted))
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer srv.Close()

	svc := NewService(f.trades, f.producer)
	require.NoError(t, svc.CommitTrade(ctx, testTradeId))
	require.NoError(t, svc.SignalPayment(ctx, testTradeId))
	require.Len(t, f.producer.transfers, 1)

	tw := f.transferWorker(transfer.NewFactory(evm, nil, nil))
	require.NoError(t, tw.Process(ctx, f.producer.transfers[0].payload))
	require.Len(t, f.producer.submits, 1)
	sim.Backend.Commit()

	paymentTx := f.producer.submits[0].PaymentTxId
	receipt, err := sim.Backend.Client().TransactionReceipt(ctx, ethcommon.HexToHash(paymentTx))
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)

	sw, pmm := newSubmitFixture(t, f)
	sw.solver = solver.NewClient(srv.URL, time.Second)
	sw.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	require.NoError(t, sw.Process(ctx, f.producer.submits[0]))

	assert.Equal(t, []string{testTradeId}, submitted.TradeIds)
	assert.Equal(t, testPmmId, submitted.PmmId)
	assert.Equal(t, paymentTx, submitted.SettlementTx)
	assert.Equal(t, int64(1_700_000_000), submitted.SignedAt)

	hash, err := signature.MakePaymentHash([][32]byte{ethcommon.HexToHash(testTradeId)},
		1_700_000_000, big.NewInt(0), signature.SettlementTxBytes(paymentTx))
	require.NoError(t, err)
	recovered, err := signature.RecoverMakePayment(f.router.domain, hash, hexutil.MustDecode(submitted.Signature))
	require.NoError(t, err)
	assert.Equal(t, *pmm, recovered)

	trade, err := f.trades.Get(ctx, testTradeId)
	require.NoError(t, err)
	assert.Equal(t, state.TradeSubmitted, trade.Status)
}
