package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

var (
	// ============================================
	// settlement jobs
	// ============================================
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmm_transfers_total",
			Help: "Transfer attempts by network type and outcome",
		},
		[]string{"network_type", "outcome"},
	)

	TransferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pmm_transfer_duration_seconds",
			Help:    "Time spent inside a transfer strategy",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"network_type"},
	)

	TransferRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmm_transfer_retries_total",
		Help: "Transfer jobs re-enqueued after a failed attempt",
	})

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmm_submissions_total",
			Help: "Settlement submissions to the solver by outcome",
		},
		[]string{"outcome"},
	)

	// ============================================
	// external providers
	// ============================================
	ExplorerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmm_explorer_failures_total",
			Help: "Failed calls to bitcoin explorer providers",
		},
		[]string{"provider", "operation"},
	)

	// ============================================
	// wallets
	// ============================================
	WalletBalanceUsd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pmm_wallet_balance_usd",
			Help: "Last observed wallet balance in USD",
		},
		[]string{"asset"},
	)

	BalanceAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pmm_balance_alerts_total",
			Help: "Low or insufficient balance alerts raised",
		},
		[]string{"asset"},
	)
)
