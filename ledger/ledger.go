// Package ledger remembers which payment settled which trade, so that a
// transfer job delivered twice does not pay twice.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TEENet-io/pmm-go/state"
)

const (
	DefaultTTL = 30 * 24 * time.Hour
	keyPrefix  = "pmm:payment:"
)

type Ledger struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func New(rdb redis.Cmdable, ttl time.Duration) *Ledger {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ledger{rdb: rdb, ttl: ttl}
}

func key(tradeId string) string {
	return keyPrefix + state.NormalizeTradeId(tradeId)
}

// Record stores the payment of tradeId unless one is already recorded.
// It reports whether this call wrote it.
func (l *Ledger) Record(ctx context.Context, tradeId, paymentTxId string) (bool, error) {
	return l.rdb.SetNX(ctx, key(tradeId), paymentTxId, l.ttl).Result()
}

// Lookup returns the recorded payment of tradeId, if any.
func (l *Ledger) Lookup(ctx context.Context, tradeId string) (string, bool, error) {
	txId, err := l.rdb.Get(ctx, key(tradeId)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return txId, true, nil
}
