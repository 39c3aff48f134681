package monitor

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/alert"
	"github.com/TEENet-io/pmm-go/metrics"
)

const (
	DefaultSchedule   = "*/5 * * * *"
	DefaultMinBalance = 1000
	checkTimeout      = 2 * time.Minute
	btcDecimals       = 8
	solDecimals       = 9
)

type PriceFeed interface {
	USD(ctx context.Context, symbol string) (decimal.Decimal, error)
}

type BtcBalancer interface {
	Balance(ctx context.Context, address string) (int64, error)
}

type SolBalancer interface {
	Address() solana.PublicKey
	NativeBalance(ctx context.Context) (uint64, error)
}

// Asset is one wallet the monitor watches. Balance is in whole coins.
type Asset struct {
	Symbol  string
	Address string
	Balance func(ctx context.Context) (decimal.Decimal, error)
}

func BtcAsset(pool BtcBalancer, address string) Asset {
	return Asset{
		Symbol:  "BTC",
		Address: address,
		Balance: func(ctx context.Context) (decimal.Decimal, error) {
			sats, err := pool.Balance(ctx, address)
			if err != nil {
				return decimal.Zero, err
			}
			return decimal.New(sats, -btcDecimals), nil
		},
	}
}

func SolAsset(sol SolBalancer) Asset {
	return Asset{
		Symbol:  "SOL",
		Address: sol.Address().String(),
		Balance: func(ctx context.Context) (decimal.Decimal, error) {
			lamports, err := sol.NativeBalance(ctx)
			if err != nil {
				return decimal.Zero, err
			}
			return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -solDecimals), nil
		},
	}
}

type Config struct {
	Schedule      string
	MinBalanceUsd float64
}

type Monitor struct {
	cfg    Config
	assets []Asset
	prices PriceFeed
	alerts alert.Sink
	cron   *cron.Cron
}

func New(cfg Config, prices PriceFeed, alerts alert.Sink, assets ...Asset) *Monitor {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.MinBalanceUsd <= 0 {
		cfg.MinBalanceUsd = DefaultMinBalance
	}
	return &Monitor{
		cfg:    cfg,
		assets: assets,
		prices: prices,
		alerts: alerts,
		cron:   cron.New(),
	}
}

// Start schedules one check per asset and starts the cron runner.
func (m *Monitor) Start() error {
	for _, asset := range m.assets {
		asset := asset
		_, err := m.cron.AddFunc(m.cfg.Schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
			defer cancel()

			if _, err := m.Check(ctx, asset); err != nil {
				logger.WithFields(logger.Fields{
					"asset": asset.Symbol,
					"err":   err,
				}).Error("balance check failed")
			}
		})
		if err != nil {
			return fmt.Errorf("schedule %s balance check: %w", asset.Symbol, err)
		}
	}

	m.cron.Start()
	logger.WithFields(logger.Fields{
		"schedule": m.cfg.Schedule,
		"assets":   len(m.assets),
	}).Info("balance monitor started")
	return nil
}

// Stop waits for running checks to finish.
func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
	logger.Info("balance monitor stopped")
}

// Check values the asset in USD and alerts when it is below the threshold.
// A failed balance lookup counts as an empty wallet.
func (m *Monitor) Check(ctx context.Context, asset Asset) (decimal.Decimal, error) {
	log := logger.WithFields(logger.Fields{
		"asset":   asset.Symbol,
		"address": asset.Address,
	})

	price, err := m.prices.USD(ctx, asset.Symbol)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price of %s: %w", asset.Symbol, err)
	}

	balance, err := asset.Balance(ctx)
	if err != nil {
		log.WithField("err", err).Error("failed to fetch balance")
		balance = decimal.Zero
	}

	value := balance.Mul(price)
	metrics.WalletBalanceUsd.WithLabelValues(asset.Symbol).Set(value.InexactFloat64())

	threshold := decimal.NewFromFloat(m.cfg.MinBalanceUsd)
	if value.LessThan(threshold) {
		log.WithFields(logger.Fields{
			"usd":     value.StringFixed(2),
			"balance": balance.String(),
		}).Warn("balance below threshold")
		metrics.BalanceAlerts.WithLabelValues(asset.Symbol).Inc()
		alert.Notify(ctx, m.alerts, fmt.Sprintf(
			"%s Balance Alert\n\nBalance: $%s (%s %s)\nAddress: %s\n\nBalance is below minimum threshold of $%s",
			asset.Symbol, value.StringFixed(2), balance.String(), asset.Symbol, asset.Address, threshold.String(),
		))
	}

	log.WithFields(logger.Fields{
		"usd":     value.StringFixed(2),
		"balance": balance.String(),
	}).Info("balance check completed")
	return value, nil
}
