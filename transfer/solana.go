package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/gagliardetto/solana-go"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/alert"
	pmmcommon "github.com/TEENet-io/pmm-go/common"
	"github.com/TEENet-io/pmm-go/solman"
)

type SolanaPayer interface {
	Address() solana.PublicKey
	Balance(ctx context.Context, token *solana.PublicKey) (uint64, error)
	Pay(ctx context.Context, p *solman.Payment) (solana.Signature, error)
}

type SolanaStrategy struct {
	payer  SolanaPayer
	fees   FeeReader
	alerts alert.Sink
}

func NewSolanaStrategy(payer SolanaPayer, fees FeeReader, alerts alert.Sink) *SolanaStrategy {
	return &SolanaStrategy{
		payer:  payer,
		fees:   fees,
		alerts: alerts,
	}
}

func (s *SolanaStrategy) Transfer(ctx context.Context, params *TransferParams) (string, error) {
	if err := checkAmount(params); err != nil {
		return "", err
	}
	to, err := solana.PublicKeyFromBase58(params.ToAddress)
	if err != nil {
		return "", newError(params, "validate", fmt.Errorf("invalid receiver %q: %w", params.ToAddress, err))
	}
	token, err := solman.ParseToken(params.Token.TokenAddress)
	if err != nil {
		return "", newError(params, "validate", fmt.Errorf("invalid mint %q: %w", params.Token.TokenAddress, err))
	}

	balance, err := s.payer.Balance(ctx, token)
	if err != nil {
		return "", newError(params, "balance", err)
	}
	if new(big.Int).SetUint64(balance).Cmp(params.Amount) < 0 {
		alert.Notify(ctx, s.alerts, fmt.Sprintf(
			"Insufficient %s balance on %s for trade %s: have %d, need %s (%s)",
			params.Token.TokenSymbol, params.Token.NetworkId, params.TradeId,
			balance, params.Amount, s.payer.Address()))
		return "", newError(params, "balance", ErrInsufficientBalance)
	}

	tradeId, err := pmmcommon.HexStrToBytes32(params.TradeId)
	if err != nil {
		return "", newError(params, "validate", err)
	}
	fee, err := s.fees.GetFeeDetails(ctx, tradeId)
	if err != nil {
		return "", newError(params, "fee details", err)
	}

	sig, err := s.payer.Pay(ctx, &solman.Payment{
		TradeId:  tradeId,
		ToUser:   to,
		Token:    token,
		Amount:   params.Amount,
		TotalFee: fee.TotalAmount,
	})
	if err != nil {
		if errors.Is(err, solman.ErrTxFailed) {
			err = errors.Join(ErrContractReverted, err)
		} else {
			err = errors.Join(ErrBroadcastFailed, err)
		}
		return "", newError(params, "payment", err)
	}

	logger.WithFields(logger.Fields{
		"tradeId":   params.TradeId,
		"network":   params.Token.NetworkId,
		"signature": sig.String(),
	}).Info("solana payment confirmed")

	return sig.String(), nil
}
