package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/common"
	"github.com/TEENet-io/pmm-go/config"
	"github.com/TEENet-io/pmm-go/etherman"
	"github.com/TEENet-io/pmm-go/logconfig"
	"github.com/TEENet-io/pmm-go/metrics"
	"github.com/TEENet-io/pmm-go/state"
	"github.com/TEENet-io/pmm-go/transfer"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 30 * time.Second
)

type TokenRegistry interface {
	GetToken(ctx context.Context, networkId, tokenAddress string) (*state.Token, error)
}

type TradeStore interface {
	Insert(ctx context.Context, tradeId string, status state.TradeStatus) error
	Get(ctx context.Context, tradeId string) (*state.Trade, error)
	UpdateStatus(ctx context.Context, tradeId string, status state.TradeStatus) error
	TransitionStatus(ctx context.Context, tradeId string, from, to state.TradeStatus) error
	RecordPayment(ctx context.Context, tradeId string, paymentTxId string) error
	RecordFailure(ctx context.Context, tradeId string, reason string) error
}

type PaymentLedger interface {
	Record(ctx context.Context, tradeId, paymentTxId string) (bool, error)
	Lookup(ctx context.Context, tradeId string) (string, bool, error)
}

type TransferWorkerConfig struct {
	PmmId      string
	MaxRetries int
	RetryDelay time.Duration
	Encoding   transfer.DescriptorEncoding
}

type TransferWorker struct {
	cfg      TransferWorkerConfig
	router   etherman.Router
	tokens   TokenRegistry
	factory  *transfer.Factory
	producer Producer
	trades   TradeStore
	ledger   PaymentLedger
}

func NewTransferWorker(
	cfg TransferWorkerConfig,
	router etherman.Router,
	tokens TokenRegistry,
	factory *transfer.Factory,
	producer Producer,
	trades TradeStore,
	ledger PaymentLedger,
) *TransferWorker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Encoding == "" {
		cfg.Encoding = transfer.EncodingUTF8
	}
	return &TransferWorker{
		cfg:      cfg,
		router:   router,
		tokens:   tokens,
		factory:  factory,
		producer: producer,
		trades:   trades,
		ledger:   ledger,
	}
}

// Process runs one transfer attempt. Failures are re-enqueued with a
// delay until MaxRetries attempts were made; after that, and for
// configuration errors, the returned error skips queue retries.
func (w *TransferWorker) Process(ctx context.Context, p *TransferPayload) error {
	log := logconfig.FromContext(ctx).WithFields(logger.Fields{
		"tradeId":    p.TradeId,
		"retryCount": p.RetryCount,
	})

	networkType, err := w.attempt(ctx, p)
	if err == nil {
		return nil
	}
	if networkType == "" {
		networkType = "unknown"
	}

	log.WithField("err", err).Error("transfer attempt failed")

	if !isTerminal(err) && p.RetryCount < w.cfg.MaxRetries-1 {
		next := &TransferPayload{TradeId: p.TradeId, RetryCount: p.RetryCount + 1}
		if qerr := w.producer.EnqueueTransfer(ctx, next, w.cfg.RetryDelay); qerr != nil {
			return fmt.Errorf("re-enqueue transfer %s: %w", p.TradeId, errors.Join(qerr, err))
		}
		metrics.TransfersTotal.WithLabelValues(networkType, metrics.OutcomeRetry).Inc()
		metrics.TransferRetries.Inc()
		log.WithFields(logger.Fields{
			"next":  next.RetryCount,
			"delay": w.cfg.RetryDelay,
		}).Warn("transfer re-enqueued")
		return nil
	}

	metrics.TransfersTotal.WithLabelValues(networkType, metrics.OutcomeFailed).Inc()
	if ferr := w.trades.RecordFailure(ctx, p.TradeId, err.Error()); ferr != nil && !errors.Is(ferr, state.ErrTradeNotFound) {
		log.WithField("err", ferr).Error("failed to record transfer failure")
	}
	log.Error("transfer failed permanently")
	return fmt.Errorf("transfer %s failed after %d attempts: %w", p.TradeId, p.RetryCount+1, errors.Join(err, asynq.SkipRetry))
}

// configuration problems do not heal with time
func isTerminal(err error) bool {
	return errors.Is(err, transfer.ErrUnsupportedNetworkType) ||
		errors.Is(err, transfer.ErrNetworkMismatch) ||
		errors.Is(err, common.ErrInvalidHex) ||
		errors.Is(err, transfer.ErrInvalidAmount) ||
		errors.Is(err, state.ErrTokenNotFound) ||
		errors.Is(err, config.ErrMissingPaymentAddress) ||
		errors.Is(err, config.ErrMissingRpcUrl)
}

// attempt returns the network type it got to, for metrics.
func (w *TransferWorker) attempt(ctx context.Context, p *TransferPayload) (string, error) {
	log := logconfig.FromContext(ctx).WithField("tradeId", p.TradeId)
	tradeId, err := common.HexStrToBytes32(p.TradeId)
	if err != nil {
		return "", err
	}

	selection, err := w.router.GetPMMSelection(ctx, tradeId)
	if err != nil {
		return "", fmt.Errorf("get pmm selection: %w", err)
	}
	ownId, err := common.StringToBytes32(w.cfg.PmmId)
	if err != nil {
		return "", err
	}
	if selection.PmmInfo.SelectedPMMId != ownId {
		log.WithField("selected", common.Bytes32ToString(selection.PmmInfo.SelectedPMMId)).
			Info("trade settled by another pmm, dropping")
		metrics.TransfersTotal.WithLabelValues("unknown", metrics.OutcomeSkipped).Inc()
		return "", nil
	}

	if txId, found, err := w.recordedPayment(ctx, p.TradeId); err != nil {
		return "", err
	} else if found {
		log.WithField("paymentTxId", txId).Warn("trade already paid, submitting recorded payment")
		return "", w.producer.EnqueueSubmit(ctx, &SubmitPayload{
			TradeId:     p.TradeId,
			PaymentTxId: txId,
			Amount:      common.NewBigInt(selection.PmmInfo.AmountOut),
		})
	}

	data, err := w.router.GetTradeData(ctx, tradeId)
	if err != nil {
		return "", fmt.Errorf("get trade data: %w", err)
	}
	dst := transfer.DecodeDescriptor(data.TradeInfo.ToChain, w.cfg.Encoding)

	token, err := w.tokens.GetToken(ctx, dst.NetworkId, dst.TokenAddress)
	if err != nil {
		return "", err
	}
	networkType := string(token.NetworkType)

	strategy, err := w.factory.Get(networkType)
	if err != nil {
		return networkType, err
	}

	start := time.Now()
	txId, err := strategy.Transfer(ctx, &transfer.TransferParams{
		ToAddress: dst.Address,
		Amount:    selection.PmmInfo.AmountOut,
		Token:     token,
		TradeId:   p.TradeId,
	})
	metrics.TransferDuration.WithLabelValues(networkType).Observe(time.Since(start).Seconds())
	if err != nil {
		return networkType, err
	}

	log.WithFields(logger.Fields{
		"network":     token.NetworkId,
		"paymentTxId": txId,
		"amount":      selection.PmmInfo.AmountOut.String(),
	}).Info("transfer succeeded")
	metrics.TransfersTotal.WithLabelValues(networkType, metrics.OutcomeSuccess).Inc()

	if _, err := w.ledger.Record(ctx, p.TradeId, txId); err != nil {
		log.WithField("err", err).Error("failed to record payment in ledger")
	}
	if err := w.trades.RecordPayment(ctx, p.TradeId, txId); err != nil {
		log.WithField("err", err).Warn("failed to record payment in trade store")
	}

	return networkType, w.producer.EnqueueSubmit(ctx, &SubmitPayload{
		TradeId:     p.TradeId,
		PaymentTxId: txId,
		Amount:      common.NewBigInt(selection.PmmInfo.AmountOut),
	})
}

// recordedPayment looks for an earlier payment of tradeId, first in the
// ledger, then in the trade store. An unreachable ledger only counts as
// unpaid when the trade store answers.
func (w *TransferWorker) recordedPayment(ctx context.Context, tradeId string) (string, bool, error) {
	log := logconfig.FromContext(ctx).WithField("tradeId", tradeId)

	txId, found, ledgerErr := w.ledger.Lookup(ctx, tradeId)
	if ledgerErr == nil && found {
		return txId, true, nil
	}
	if ledgerErr != nil {
		log.WithField("err", ledgerErr).Warn("ledger lookup failed, checking trade store")
	}

	trade, err := w.trades.Get(ctx, tradeId)
	switch {
	case errors.Is(err, state.ErrTradeNotFound):
		if ledgerErr != nil {
			return "", false, fmt.Errorf("ledger lookup: %w", ledgerErr)
		}
	case err != nil:
		return "", false, fmt.Errorf("trade lookup: %w", errors.Join(err, ledgerErr))
	case trade.PaymentTxId != "":
		if _, rerr := w.ledger.Record(ctx, tradeId, trade.PaymentTxId); rerr != nil {
			log.WithField("err", rerr).Warn("failed to backfill ledger")
		}
		return trade.PaymentTxId, true, nil
	}
	return "", false, nil
}
