package solman

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	mu sync.Mutex

	height      uint64
	heightStep  uint64
	lamports    uint64
	tokenAmount string
	existing    map[solana.PublicKey]bool

	sendErrs []error
	status   *rpc.SignatureStatusesResult
	sent     []*solana.Transaction
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context, _ rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{
		Blockhash:            solana.Hash(sha256.Sum256([]byte("blockhash"))),
		LastValidBlockHeight: f.height + BlockhashTTL,
	}}, nil
}

func (f *fakeRPC) GetBlockHeight(ctx context.Context, _ rpc.CommitmentType) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.height += f.heightStep
	return f.height, nil
}

func (f *fakeRPC) GetBalance(ctx context.Context, _ solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return &rpc.GetBalanceResult{Value: f.lamports}, nil
}

func (f *fakeRPC) GetTokenAccountBalance(ctx context.Context, _ solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	if f.tokenAmount == "" {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{Amount: f.tokenAmount}}, nil
}

func (f *fakeRPC) GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, _ *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error) {
	if !f.existing[account] {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{}}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return solana.Signature{}, err
		}
	}
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(ctx context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	status := f.status
	if status == nil {
		status = &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{status}}, nil
}

func newTestSolman(t *testing.T, f *fakeRPC) *Solman {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	program := solana.NewWallet().PublicKey()

	s, err := NewSolmanWithRPC(f, &Config{
		ProgramId:  program.String(),
		PrivateKey: key.String(),
		MaxRetry:   3,
	})
	require.NoError(t, err)
	s.retryDelay = time.Millisecond
	s.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return s
}

func TestPdaDeterministic(t *testing.T) {
	program := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	p1, err := ProtocolPda(program)
	require.NoError(t, err)
	p2, _ := ProtocolPda(program)
	assert.Equal(t, p1, p2)

	native, err := WhitelistPda(program, nil)
	require.NoError(t, err)
	wsol := solana.SolMint
	viaMint, _ := WhitelistPda(program, &wsol)
	assert.Equal(t, native, viaMint)
	spl, _ := WhitelistPda(program, &mint)
	assert.NotEqual(t, native, spl)

	seeds := &ReceiptSeeds{
		TradeId: [32]byte{1},
		From:    solana.NewWallet().PublicKey(),
		To:      solana.NewWallet().PublicKey(),
		Amount:  10,
	}
	r1, err := PaymentReceiptPda(program, seeds)
	require.NoError(t, err)
	seeds.Amount = 11
	r2, _ := PaymentReceiptPda(program, seeds)
	assert.NotEqual(t, r1, r2)
}

func TestPaymentArgsLayout(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	args := &PaymentArgs{
		TradeId:  [32]byte{0xaa, 31: 0xbb},
		Amount:   1_000,
		TotalFee: 5,
		Deadline: 1_700_003_600,
	}

	data, err := args.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+32+1+8+8+8)
	sum := sha256.Sum256([]byte("global:payment"))
	assert.Equal(t, sum[:8], data[:8])
	assert.Equal(t, args.TradeId[:], data[8:40])
	assert.Equal(t, byte(0), data[40])
	assert.Equal(t, uint64(1_000), binary.LittleEndian.Uint64(data[41:49]))
	assert.Equal(t, uint64(5), binary.LittleEndian.Uint64(data[49:57]))
	assert.Equal(t, int64(1_700_003_600), int64(binary.LittleEndian.Uint64(data[57:65])))

	args.Token = &mint
	data, err = args.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+32+1+32+8+8+8)
	assert.Equal(t, byte(1), data[40])
	assert.Equal(t, mint[:], data[41:73])
}

func TestBuildNativePayment(t *testing.T) {
	s := newTestSolman(t, &fakeRPC{})
	to := solana.NewWallet().PublicKey()

	ixs, err := s.BuildPayment(context.Background(), &Payment{
		TradeId:  [32]byte{7},
		ToUser:   to,
		Amount:   big.NewInt(1_000_000),
		TotalFee: big.NewInt(100),
	})
	require.NoError(t, err)
	require.Len(t, ixs, 1)

	ix := ixs[0]
	assert.Equal(t, s.ProgramId(), ix.ProgramID())
	accounts := ix.Accounts()
	require.Len(t, accounts, 6)
	assert.Equal(t, s.Address(), accounts[0].PublicKey)
	assert.True(t, accounts[0].IsSigner)
	assert.Equal(t, to, accounts[1].PublicKey)
	assert.Equal(t, solana.SystemProgramID, accounts[5].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	deadline := int64(binary.LittleEndian.Uint64(data[len(data)-8:]))
	assert.Equal(t, int64(1_700_000_000+3600), deadline)
}

func TestBuildTokenPaymentCreatesMissingAccounts(t *testing.T) {
	f := &fakeRPC{existing: map[solana.PublicKey]bool{}}
	s := newTestSolman(t, f)
	to := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	toAta, _, err := solana.FindAssociatedTokenAddress(to, mint)
	require.NoError(t, err)
	f.existing[toAta] = true

	ixs, err := s.BuildPayment(context.Background(), &Payment{
		TradeId:  [32]byte{7},
		ToUser:   to,
		Token:    &mint,
		Amount:   big.NewInt(42),
		TotalFee: big.NewInt(1),
	})
	require.NoError(t, err)
	// protocol ata missing, destination present
	require.Len(t, ixs, 2)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, ixs[0].ProgramID())

	accounts := ixs[1].Accounts()
	require.Len(t, accounts, 11)
	assert.Equal(t, solana.TokenProgramID, accounts[6].PublicKey)
	assert.Equal(t, mint, accounts[7].PublicKey)
	assert.Equal(t, toAta, accounts[9].PublicKey)
	assert.True(t, accounts[9].IsWritable)
}

func TestBuildPaymentRejectsOverflow(t *testing.T) {
	s := newTestSolman(t, &fakeRPC{})
	tooBig := new(big.Int).Lsh(big.NewInt(1), 64)

	_, err := s.BuildPayment(context.Background(), &Payment{
		ToUser: solana.NewWallet().PublicKey(),
		Amount: tooBig,
	})
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestSendWithRetry(t *testing.T) {
	f := &fakeRPC{sendErrs: []error{errors.New("node is behind"), nil}}
	s := newTestSolman(t, f)

	ixs, err := s.BuildPayment(context.Background(), &Payment{
		ToUser: solana.NewWallet().PublicKey(),
		Amount: big.NewInt(1),
	})
	require.NoError(t, err)

	sig, err := s.SendWithRetry(context.Background(), ixs)
	require.NoError(t, err)
	assert.Len(t, f.sent, 2)
	assert.Equal(t, f.sent[1].Signatures[0], sig)
}

func TestSendWithRetryGivesUp(t *testing.T) {
	down := errors.New("down")
	f := &fakeRPC{sendErrs: []error{down, down, down, down}}
	s := newTestSolman(t, f)

	ixs, err := s.BuildPayment(context.Background(), &Payment{
		ToUser: solana.NewWallet().PublicKey(),
		Amount: big.NewInt(1),
	})
	require.NoError(t, err)

	_, err = s.SendWithRetry(context.Background(), ixs)
	assert.ErrorIs(t, err, down)
	assert.Len(t, f.sent, 3)
}

func TestSendWithRetryStopsOnChainFailure(t *testing.T) {
	f := &fakeRPC{status: &rpc.SignatureStatusesResult{Err: map[string]interface{}{"InstructionError": 0}}}
	s := newTestSolman(t, f)

	ixs, err := s.BuildPayment(context.Background(), &Payment{
		ToUser: solana.NewWallet().PublicKey(),
		Amount: big.NewInt(1),
	})
	require.NoError(t, err)

	_, err = s.SendWithRetry(context.Background(), ixs)
	assert.ErrorIs(t, err, ErrTxFailed)
	assert.Len(t, f.sent, 1)
}

func TestSendWithRetryExpires(t *testing.T) {
	f := &fakeRPC{heightStep: BlockhashTTL + 1}
	s := newTestSolman(t, f)

	_, err := s.SendWithRetry(context.Background(), []solana.Instruction{})
	assert.ErrorIs(t, err, ErrBlockhashExpired)
	assert.Empty(t, f.sent)
}

func TestBalances(t *testing.T) {
	f := &fakeRPC{lamports: 5_000}
	s := newTestSolman(t, f)
	mint := solana.NewWallet().PublicKey()

	v, err := s.Balance(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), v)

	v, err = s.Balance(context.Background(), &mint)
	require.NoError(t, err)
	assert.Zero(t, v)

	f.tokenAmount = "123456"
	v, err = s.Balance(context.Background(), &mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), v)
}

func TestParseToken(t *testing.T) {
	tok, err := ParseToken("native")
	require.NoError(t, err)
	assert.Nil(t, tok)

	mint := solana.NewWallet().PublicKey()
	tok, err = ParseToken(mint.String())
	require.NoError(t, err)
	assert.Equal(t, mint, *tok)

	_, err = ParseToken("not-base58-!!")
	assert.Error(t, err)
}
