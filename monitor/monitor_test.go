package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPrices map[string]decimal.Decimal

func (p staticPrices) USD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	price, ok := p[symbol]
	if !ok {
		return decimal.Zero, errors.New("no price")
	}
	return price, nil
}

type fakePool struct {
	sats int64
	err  error
}

func (f *fakePool) Balance(ctx context.Context, address string) (int64, error) {
	return f.sats, f.err
}

type fakeSol struct {
	lamports uint64
	err      error
}

func (f *fakeSol) Address() solana.PublicKey {
	return solana.SystemProgramID
}

func (f *fakeSol) NativeBalance(ctx context.Context) (uint64, error) {
	return f.lamports, f.err
}

type recordSink struct {
	msgs []string
}

func (r *recordSink) Send(ctx context.Context, msg string) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

var prices = staticPrices{
	"BTC": decimal.NewFromInt(60_000),
	"SOL": decimal.NewFromInt(150),
}

func TestBtcAboveThreshold(t *testing.T) {
	sink := &recordSink{}
	m := New(Config{}, prices, sink)

	// 0.05 BTC
	usd, err := m.Check(context.Background(), BtcAsset(&fakePool{sats: 5_000_000}, "bc1qexample"))
	require.NoError(t, err)
	assert.Equal(t, "3000.00", usd.StringFixed(2))
	assert.Empty(t, sink.msgs)
}

func TestBtcBelowThreshold(t *testing.T) {
	sink := &recordSink{}
	m := New(Config{MinBalanceUsd: 1000}, prices, sink)

	usd, err := m.Check(context.Background(), BtcAsset(&fakePool{sats: 1_000_000}, "bc1qexample"))
	require.NoError(t, err)
	assert.Equal(t, "600.00", usd.StringFixed(2))
	require.Len(t, sink.msgs, 1)
	assert.Contains(t, sink.msgs[0], "BTC Balance Alert")
	assert.Contains(t, sink.msgs[0], "$600.00 (0.01 BTC)")
	assert.Contains(t, sink.msgs[0], "bc1qexample")
}

func TestBalanceFailureCountsAsEmpty(t *testing.T) {
	sink := &recordSink{}
	m := New(Config{}, prices, sink)

	usd, err := m.Check(context.Background(), BtcAsset(&fakePool{err: errors.New("both explorers down")}, "bc1qexample"))
	require.NoError(t, err)
	assert.True(t, usd.IsZero())
	assert.Len(t, sink.msgs, 1)
}

func TestPriceFailureSkipsAlert(t *testing.T) {
	sink := &recordSink{}
	m := New(Config{}, staticPrices{}, sink)

	_, err := m.Check(context.Background(), SolAsset(&fakeSol{lamports: 1}))
	assert.Error(t, err)
	assert.Empty(t, sink.msgs)
}

func TestSolBalance(t *testing.T) {
	sink := &recordSink{}
	m := New(Config{MinBalanceUsd: 1000}, prices, sink)

	// 10 SOL
	usd, err := m.Check(context.Background(), SolAsset(&fakeSol{lamports: 10_000_000_000}))
	require.NoError(t, err)
	assert.Equal(t, "1500.00", usd.StringFixed(2))
	assert.Empty(t, sink.msgs)

	// 2.5 SOL
	_, err = m.Check(context.Background(), SolAsset(&fakeSol{lamports: 2_500_000_000}))
	require.NoError(t, err)
	require.Len(t, sink.msgs, 1)
	assert.Contains(t, sink.msgs[0], "(2.5 SOL)")
	assert.Contains(t, sink.msgs[0], solana.SystemProgramID.String())
}

func TestStartRejectsBadSchedule(t *testing.T) {
	m := New(Config{Schedule: "every now and then"}, prices, nil, SolAsset(&fakeSol{}))
	assert.Error(t, m.Start())
}
