// Package transfer pays the user side of a trade on the destination chain.
// One Strategy exists per network family, the Factory picks it from the
// token's network type.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/TEENet-io/pmm-go/state"
)

var (
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrBroadcastFailed        = errors.New("broadcast failed")
	ErrContractReverted       = errors.New("contract reverted")
	ErrNoUTXO                 = errors.New("no utxo available")
	ErrUnsupportedNetworkType = errors.New("unsupported network type")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrNetworkMismatch        = errors.New("trade network differs from the wallet network")
)

type TransferParams struct {
	ToAddress string
	Amount    *big.Int // smallest unit of Token
	Token     *state.Token
	TradeId   string // 0x prefixed hex
}

// Strategy sends the payment and returns the chain's reference to it.
type Strategy interface {
	Transfer(ctx context.Context, params *TransferParams) (string, error)
}

type TransferError struct {
	TradeID string
	Network string
	Reason  string
	Err     error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s on %s: %s: %v", e.TradeID, e.Network, e.Reason, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func newError(params *TransferParams, reason string, err error) *TransferError {
	network := ""
	if params.Token != nil {
		network = params.Token.NetworkId
	}
	return &TransferError{
		TradeID: params.TradeId,
		Network: network,
		Reason:  reason,
		Err:     err,
	}
}

func checkAmount(params *TransferParams) error {
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return newError(params, "validate", ErrInvalidAmount)
	}
	return nil
}
