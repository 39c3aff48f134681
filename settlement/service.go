package settlement

import (
	"context"
	"errors"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/state"
)

var (
	ErrTradeNotCommitted = errors.New("trade is not committed")
)

// Service is the entry point of the pipeline for trades the PMM won.
type Service struct {
	trades   TradeStore
	producer Producer
}

func NewService(trades TradeStore, producer Producer) *Service {
	return &Service{trades: trades, producer: producer}
}

// CommitTrade registers a trade the router committed to this PMM.
func (s *Service) CommitTrade(ctx context.Context, tradeId string) error {
	tradeId, err := state.ParseTradeId(tradeId)
	if err != nil {
		return err
	}
	return s.trades.Insert(ctx, tradeId, state.TradeCommitted)
}

// SignalPayment moves a committed trade to settling and starts its
// transfer job.
func (s *Service) SignalPayment(ctx context.Context, tradeId string) error {
	tradeId, err := state.ParseTradeId(tradeId)
	if err != nil {
		return err
	}

	trade, err := s.trades.Get(ctx, tradeId)
	if err != nil {
		return err
	}
	if trade.Status != state.TradeCommitted {
		return fmt.Errorf("%w: %s is %s", ErrTradeNotCommitted, tradeId, trade.Status)
	}
	if err := s.trades.TransitionStatus(ctx, tradeId, state.TradeCommitted, state.TradeSettling); err != nil {
		return err
	}

	if err := s.producer.EnqueueTransfer(ctx, &TransferPayload{TradeId: tradeId}, 0); err != nil {
		// let the caller signal again
		if rerr := s.trades.TransitionStatus(ctx, tradeId, state.TradeSettling, state.TradeCommitted); rerr != nil {
			logger.WithFields(logger.Fields{
				"tradeId": tradeId,
				"err":     rerr,
			}).Error("failed to roll back trade status")
		}
		return err
	}

	logger.WithField("tradeId", tradeId).Info("payment signalled")
	return nil
}
