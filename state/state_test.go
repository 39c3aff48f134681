package state

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTradeId = "0xABC0000000000000000000000000000000000000000000000000000000000001"

func newTestDB(t *testing.T) (*sql.DB, func()) {
	file := filepath.Join(t.TempDir(), "state.db")
	db, err := sql.Open("sqlite3", file)
	require.NoError(t, err)

	return db, func() {
		db.Close()
		os.Remove(file)
	}
}

func TestTradeLifecycle(t *testing.T) {
	db, close := newTestDB(t)
	defer close()
	ctx := context.Background()

	trades, err := NewTradeDB(db)
	require.NoError(t, err)
	defer trades.Close()

	require.NoError(t, trades.Insert(ctx, testTradeId, TradeCommitted))

	trade, err := trades.Get(ctx, testTradeId)
	require.NoError(t, err)
	assert.Equal(t, NormalizeTradeId(testTradeId), trade.TradeId)
	assert.Equal(t, TradeCommitted, trade.Status)
	assert.Empty(t, trade.PaymentTxId)

	require.NoError(t, trades.TransitionStatus(ctx, testTradeId, TradeCommitted, TradeSettling))
	err = trades.TransitionStatus(ctx, testTradeId, TradeCommitted, TradeSettling)
	assert.ErrorIs(t, err, ErrTradeStatusChanged)

	require.NoError(t, trades.RecordPayment(ctx, testTradeId, "0xdef"))
	trade, err = trades.Get(ctx, testTradeId)
	require.NoError(t, err)
	assert.Equal(t, TradePaymentSent, trade.Status)
	assert.Equal(t, "0xdef", trade.PaymentTxId)

	require.NoError(t, trades.UpdateStatus(ctx, testTradeId, TradeSubmitted))
	submitted, err := trades.GetByStatus(ctx, TradeSubmitted)
	require.NoError(t, err)
	assert.Len(t, submitted, 1)
}

func TestTradeFailureAndMissing(t *testing.T) {
	db, close := newTestDB(t)
	defer close()
	ctx := context.Background()

	trades, err := NewTradeDB(db)
	require.NoError(t, err)

	_, err = trades.Get(ctx, testTradeId)
	assert.ErrorIs(t, err, ErrTradeNotFound)
	assert.ErrorIs(t, trades.UpdateStatus(ctx, testTradeId, TradeFailed), ErrTradeNotFound)

	require.NoError(t, trades.Insert(ctx, testTradeId, TradeSettling))
	require.NoError(t, trades.RecordFailure(ctx, testTradeId, "insufficient balance"))
	trade, err := trades.Get(ctx, testTradeId)
	require.NoError(t, err)
	assert.Equal(t, TradeFailed, trade.Status)
	assert.Equal(t, "insufficient balance", trade.FailureReason)

	// status outside the allowed set is rejected by the schema
	assert.Error(t, trades.UpdateStatus(ctx, testTradeId, TradeStatus("LOST")))
}

func TestTokenRegistry(t *testing.T) {
	db, close := newTestDB(t)
	defer close()
	ctx := context.Background()

	tokens, err := NewTokenDB(db)
	require.NoError(t, err)
	defer tokens.Close()

	for _, tk := range DefaultTokens() {
		require.NoError(t, tokens.Upsert(ctx, tk))
	}
	usdc := &Token{
		NetworkId:     "ethereum",
		NetworkType:   "evm",
		TokenAddress:  "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		TokenSymbol:   "USDC",
		TokenDecimals: 6,
	}
	require.NoError(t, tokens.Upsert(ctx, usdc))

	got, err := tokens.GetToken(ctx, "ethereum", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	require.NoError(t, err)
	assert.Equal(t, NetworkEVM, got.NetworkType)
	assert.Equal(t, 6, got.TokenDecimals)
	assert.False(t, got.IsNative())

	btc, err := tokens.GetToken(ctx, "bitcoin_testnet", "native")
	require.NoError(t, err)
	assert.Equal(t, NetworkTBTC, btc.NetworkType)
	assert.True(t, btc.IsNative())

	_, err = tokens.GetToken(ctx, "bitcoin", "0x00")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	all, err := tokens.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(DefaultTokens())+1)
}

func TestParseTradeId(t *testing.T) {
	id, err := ParseTradeId("  0xABC0000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0xabc0000000000000000000000000000000000000000000000000000000000001", id)

	id, err = ParseTradeId("abc0000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0xabc0000000000000000000000000000000000000000000000000000000000001", id)

	for _, bad := range []string{
		"0x" + strings.Repeat("zz", 32),
		"0xabc2",
		"0x" + strings.Repeat("ab", 33),
		"",
	} {
		_, err := ParseTradeId(bad)
		assert.ErrorIs(t, err, ErrInvalidTradeId, bad)
	}
}
