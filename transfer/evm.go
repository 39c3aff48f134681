package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/alert"
	pmmcommon "github.com/TEENet-io/pmm-go/common"
	"github.com/TEENet-io/pmm-go/etherman"
)

const EvmPaymentTTL = 30 * time.Minute

// EvmPayer is one chain the PMM pays on.
type EvmPayer interface {
	Address() common.Address
	PaymentAddress() common.Address
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Transaction, error)
	Pay(ctx context.Context, params *etherman.PaymentParams) (*types.Transaction, error)
}

// EvmChains resolves a network id to its payer.
type EvmChains func(ctx context.Context, networkId string) (EvmPayer, error)

// PoolChains serves payers from an etherman.ChainPool.
func PoolChains(pool *etherman.ChainPool) EvmChains {
	return func(ctx context.Context, networkId string) (EvmPayer, error) {
		chain, err := pool.Get(ctx, networkId)
		if err != nil {
			return nil, err
		}
		return chain, nil
	}
}

type FeeReader interface {
	GetFeeDetails(ctx context.Context, tradeId [32]byte) (*etherman.FeeDetails, error)
}

type EvmStrategy struct {
	chains EvmChains
	fees   FeeReader
	alerts alert.Sink
	now    func() time.Time
}

func NewEvmStrategy(chains EvmChains, fees FeeReader, alerts alert.Sink) *EvmStrategy {
	return &EvmStrategy{
		chains: chains,
		fees:   fees,
		alerts: alerts,
		now:    time.Now,
	}
}

func (s *EvmStrategy) Transfer(ctx context.Context, params *TransferParams) (string, error) {
	if err := checkAmount(params); err != nil {
		return "", err
	}
	if !common.IsHexAddress(params.ToAddress) {
		return "", newError(params, "validate", fmt.Errorf("invalid receiver %q", params.ToAddress))
	}

	chain, err := s.chains(ctx, params.Token.NetworkId)
	if err != nil {
		return "", newError(params, "resolve chain", err)
	}

	native := params.Token.IsNative()
	token := common.Address{}
	if !native {
		token = common.HexToAddress(params.Token.TokenAddress)
	}

	if err := s.checkBalance(ctx, chain, params, token); err != nil {
		return "", err
	}
	if !native {
		if err := s.ensureAllowance(ctx, chain, params, token); err != nil {
			return "", err
		}
	}

	tradeId, err := pmmcommon.HexStrToBytes32(params.TradeId)
	if err != nil {
		return "", newError(params, "validate", err)
	}
	fee, err := s.fees.GetFeeDetails(ctx, tradeId)
	if err != nil {
		return "", newError(params, "fee details", err)
	}

	tx, err := chain.Pay(ctx, &etherman.PaymentParams{
		TradeId:  tradeId,
		Token:    token,
		ToUser:   common.HexToAddress(params.ToAddress),
		Amount:   params.Amount,
		TotalFee: fee.TotalAmount,
		Deadline: big.NewInt(s.now().Add(EvmPaymentTTL).Unix()),
	})
	if err != nil {
		logger.WithFields(logger.Fields{
			"tradeId": params.TradeId,
			"network": params.Token.NetworkId,
			"err":     err,
		}).Error("payment reverted")
		return "", newError(params, "payment", errors.Join(ErrContractReverted, err))
	}

	logger.WithFields(logger.Fields{
		"tradeId": params.TradeId,
		"network": params.Token.NetworkId,
		"tx":      tx.Hash().Hex(),
	}).Info("evm payment sent")

	return tx.Hash().Hex(), nil
}

func (s *EvmStrategy) checkBalance(ctx context.Context, chain EvmPayer, params *TransferParams, token common.Address) error {
	var (
		balance *big.Int
		err     error
	)
	if params.Token.IsNative() {
		balance, err = chain.NativeBalance(ctx, chain.Address())
	} else {
		balance, err = chain.BalanceOf(ctx, token, chain.Address())
	}
	if err != nil {
		return newError(params, "balance", err)
	}

	if balance.Cmp(params.Amount) < 0 {
		alert.Notify(ctx, s.alerts, fmt.Sprintf(
			"Insufficient %s balance on %s for trade %s: have %s, need %s",
			params.Token.TokenSymbol, params.Token.NetworkId, params.TradeId, balance, params.Amount))
		return newError(params, "balance", ErrInsufficientBalance)
	}
	return nil
}

// ensureAllowance approves the payment contract for the maximum amount.
// A stale non-zero allowance is reset to zero first, some tokens refuse to
// move between two non-zero allowances.
func (s *EvmStrategy) ensureAllowance(ctx context.Context, chain EvmPayer, params *TransferParams, token common.Address) error {
	spender := chain.PaymentAddress()
	current, err := chain.Allowance(ctx, token, chain.Address(), spender)
	if err != nil {
		return newError(params, "allowance", err)
	}
	if current.Cmp(params.Amount) >= 0 {
		return nil
	}

	if current.Sign() != 0 {
		if _, err := chain.Approve(ctx, token, spender, big.NewInt(0)); err != nil {
			return newError(params, "reset allowance", errors.Join(ErrContractReverted, err))
		}
	}
	if _, err := chain.Approve(ctx, token, spender, math.MaxBig256); err != nil {
		return newError(params, "approve", errors.Join(ErrContractReverted, err))
	}

	updated, err := chain.Allowance(ctx, token, chain.Address(), spender)
	if err != nil {
		return newError(params, "allowance", err)
	}
	if updated.Cmp(params.Amount) < 0 {
		return newError(params, "allowance", fmt.Errorf("allowance %s below required %s", updated, params.Amount))
	}
	return nil
}
