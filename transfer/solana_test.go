package transfer

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/pmm-go/solman"
	"github.com/TEENet-io/pmm-go/state"
)

type fakeSolanaPayer struct {
	balance uint64
	asked   *solana.PublicKey
	payErr  error
	paid    *solman.Payment
}

func (f *fakeSolanaPayer) Address() solana.PublicKey {
	return solana.PublicKey{1}
}

func (f *fakeSolanaPayer) Balance(_ context.Context, token *solana.PublicKey) (uint64, error) {
	f.asked = token
	return f.balance, nil
}

func (f *fakeSolanaPayer) Pay(_ context.Context, p *solman.Payment) (solana.Signature, error) {
	if f.payErr != nil {
		return solana.Signature{}, f.payErr
	}
	f.paid = p
	return solana.Signature{9}, nil
}

func solanaParams(to, token string, amount int64) *TransferParams {
	return &TransferParams{
		ToAddress: to,
		Amount:    big.NewInt(amount),
		TradeId:   testTradeId,
		Token: &state.Token{
			NetworkId:     "solana_devnet",
			NetworkType:   state.NetworkSolana,
			TokenAddress:  token,
			TokenSymbol:   "SOL",
			TokenDecimals: 9,
		},
	}
}

func TestSolanaNativeTransfer(t *testing.T) {
	payer := &fakeSolanaPayer{balance: 5_000_000}
	s := NewSolanaStrategy(payer, &staticFees{total: big.NewInt(25)}, &recordSink{})
	to := solana.NewWallet().PublicKey()

	sig, err := s.Transfer(context.Background(), solanaParams(to.String(), "native", 1_000_000))
	require.NoError(t, err)
	assert.Equal(t, solana.Signature{9}.String(), sig)

	require.NotNil(t, payer.paid)
	assert.Nil(t, payer.asked)
	assert.Nil(t, payer.paid.Token)
	assert.Equal(t, to, payer.paid.ToUser)
	assert.Equal(t, int64(25), payer.paid.TotalFee.Int64())
}

func TestSolanaTokenTransfer(t *testing.T) {
	payer := &fakeSolanaPayer{balance: 100}
	s := NewSolanaStrategy(payer, &staticFees{total: big.NewInt(0)}, &recordSink{})
	mint := solana.NewWallet().PublicKey()

	_, err := s.Transfer(context.Background(), solanaParams(solana.NewWallet().PublicKey().String(), mint.String(), 100))
	require.NoError(t, err)
	require.NotNil(t, payer.asked)
	assert.Equal(t, mint, *payer.asked)
	assert.Equal(t, mint, *payer.paid.Token)
}

func TestSolanaInsufficientBalance(t *testing.T) {
	payer := &fakeSolanaPayer{balance: 10}
	sink := &recordSink{}
	s := NewSolanaStrategy(payer, &staticFees{total: big.NewInt(0)}, sink)

	_, err := s.Transfer(context.Background(), solanaParams(solana.NewWallet().PublicKey().String(), "native", 11))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Nil(t, payer.paid)
	assert.Len(t, sink.msgs, 1)
}

func TestSolanaFailures(t *testing.T) {
	to := solana.NewWallet().PublicKey().String()

	payer := &fakeSolanaPayer{balance: 100, payErr: solman.ErrTxFailed}
	s := NewSolanaStrategy(payer, &staticFees{total: big.NewInt(0)}, &recordSink{})
	_, err := s.Transfer(context.Background(), solanaParams(to, "native", 1))
	assert.ErrorIs(t, err, ErrContractReverted)

	payer.payErr = errors.New("blockhash not found")
	_, err = s.Transfer(context.Background(), solanaParams(to, "native", 1))
	assert.ErrorIs(t, err, ErrBroadcastFailed)

	_, err = s.Transfer(context.Background(), solanaParams("0xnotbase58", "native", 1))
	assert.Error(t, err)
}
