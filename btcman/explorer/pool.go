package explorer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/TEENet-io/pmm-go/btcman/utxo"
	"github.com/TEENet-io/pmm-go/common"
	"github.com/TEENet-io/pmm-go/metrics"

	logger "github.com/sirupsen/logrus"
)

const (
	FeeMargin       = 1.125
	DefaultAttempts = 3
	DefaultDelay    = 5 * time.Second
)

var (
	ErrNoBalance = errors.New("no provider reported a positive balance")
)

type Named interface {
	Name() string
}

type UTXOSource interface {
	Named
	GetUTXOs(ctx context.Context, address string) ([]utxo.ExplorerUTXO, error)
	AddressBalance(ctx context.Context, address string) (int64, error)
}

type FeeSource interface {
	Named
	FeeEstimates(ctx context.Context) (map[string]float64, error)
}

type Broadcaster interface {
	Named
	Broadcast(ctx context.Context, rawTx string) (string, error)
}

type Config struct {
	Timeout    time.Duration // per provider call
	Attempts   int
	RetryDelay time.Duration
	MaxFeeRate float64 // sat/vB
}

// Pool fans every request out to redundant providers. The first provider
// to succeed wins and late answers are dropped.
type Pool struct {
	cfg          Config
	sources      []UTXOSource
	feeSources   []FeeSource
	broadcasters []Broadcaster
}

func NewPool(cfg Config, providers ...Named) *Pool {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = DefaultDelay
	}

	p := &Pool{cfg: cfg}
	for _, provider := range providers {
		p.Add(provider)
	}
	return p
}

// Add registers provider for every role it implements.
func (p *Pool) Add(provider Named) {
	if s, ok := provider.(UTXOSource); ok {
		p.sources = append(p.sources, s)
	}
	if s, ok := provider.(FeeSource); ok {
		p.feeSources = append(p.feeSources, s)
	}
	if s, ok := provider.(Broadcaster); ok {
		p.broadcasters = append(p.broadcasters, s)
	}
}

func (p *Pool) MaxFeeRate() float64 {
	return p.cfg.MaxFeeRate
}

func (p *Pool) GetUTXOs(ctx context.Context, address string) ([]utxo.ExplorerUTXO, error) {
	fns := make([]func(context.Context) ([]utxo.ExplorerUTXO, error), 0, len(p.sources))
	for _, s := range p.sources {
		s := s
		fns = append(fns, func(ctx context.Context) ([]utxo.ExplorerUTXO, error) {
			out, err := s.GetUTXOs(ctx, address)
			return out, p.observe(s, "utxo", err)
		})
	}

	var out []utxo.ExplorerUTXO
	attempt := 0
	err := common.Retry(ctx, p.cfg.Attempts, p.cfg.RetryDelay, func() error {
		attempt++
		var err error
		out, err = common.Race(ctx, p.cfg.Timeout, fns...)
		if err != nil {
			logger.WithFields(logger.Fields{
				"address": address,
				"attempt": fmt.Sprintf("%d/%d", attempt, p.cfg.Attempts),
			}).Warnf("failed to fetch utxos: %v", err)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch utxos: %w", err)
	}
	return out, nil
}

// FeeRate returns the estimate of the quickest confirmation target with
// FeeMargin applied, capped at the configured maximum. The maximum is also
// the fallback when no provider answers.
func (p *Pool) FeeRate(ctx context.Context) float64 {
	fns := make([]func(context.Context) (float64, error), 0, len(p.feeSources))
	for _, s := range p.feeSources {
		s := s
		fns = append(fns, func(ctx context.Context) (float64, error) {
			estimates, err := s.FeeEstimates(ctx)
			if p.observe(s, "fee", err) != nil {
				return 0, err
			}
			return QuickestFeeRate(estimates, p.cfg.MaxFeeRate), nil
		})
	}

	var rate float64
	err := common.Retry(ctx, p.cfg.Attempts, p.cfg.RetryDelay, func() error {
		var err error
		rate, err = common.Race(ctx, p.cfg.Timeout, fns...)
		return err
	})
	if err != nil {
		logger.WithField("maxFeeRate", p.cfg.MaxFeeRate).Warnf("fee rate unavailable, using max: %v", err)
		return p.cfg.MaxFeeRate
	}
	return min(rate, p.cfg.MaxFeeRate)
}

// QuickestFeeRate picks the bucket with the smallest confirmation target.
func QuickestFeeRate(estimates map[string]float64, fallback float64) float64 {
	targets := make([]int, 0, len(estimates))
	for k := range estimates {
		if n, err := strconv.Atoi(k); err == nil {
			targets = append(targets, n)
		}
	}
	if len(targets) == 0 {
		return fallback
	}
	sort.Ints(targets)
	return estimates[strconv.Itoa(targets[0])] * FeeMargin
}

// Balance asks every provider and takes the first positive answer in
// registration order.
func (p *Pool) Balance(ctx context.Context, address string) (int64, error) {
	type answer struct {
		balance int64
		err     error
	}

	var balance int64
	err := common.Retry(ctx, p.cfg.Attempts, p.cfg.RetryDelay, func() error {
		answers := make([]answer, len(p.sources))
		done := make(chan struct{}, len(p.sources))
		for i, s := range p.sources {
			go func(i int, s UTXOSource) {
				callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
				defer cancel()
				b, err := s.AddressBalance(callCtx, address)
				answers[i] = answer{b, p.observe(s, "balance", err)}
				done <- struct{}{}
			}(i, s)
		}
		for range p.sources {
			<-done
		}

		for i, a := range answers {
			if a.err == nil && a.balance > 0 {
				logger.WithFields(logger.Fields{
					"provider": p.sources[i].Name(),
					"address":  address,
				}).Debug("fetched btc balance")
				balance = a.balance
				return nil
			}
		}
		return ErrNoBalance
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (p *Pool) Broadcast(ctx context.Context, rawTx string) (string, error) {
	fns := make([]func(context.Context) (string, error), 0, len(p.broadcasters))
	for _, b := range p.broadcasters {
		b := b
		fns = append(fns, func(ctx context.Context) (string, error) {
			txid, err := b.Broadcast(ctx, rawTx)
			if p.observe(b, "broadcast", err) == nil {
				logger.WithFields(logger.Fields{
					"provider": b.Name(),
					"txid":     txid,
				}).Info("broadcasted transaction")
			}
			return txid, err
		})
	}
	return common.Race(ctx, p.cfg.Timeout, fns...)
}

func (p *Pool) observe(provider Named, op string, err error) error {
	if err != nil {
		metrics.ExplorerFailures.WithLabelValues(provider.Name(), op).Inc()
		logger.WithFields(logger.Fields{
			"provider":  provider.Name(),
			"operation": op,
		}).Debugf("provider call failed: %v", err)
	}
	return err
}
