package transfer

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/wire"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/alert"
	"github.com/TEENet-io/pmm-go/btcman/assembler"
	"github.com/TEENet-io/pmm-go/btcman/utils"
	"github.com/TEENet-io/pmm-go/btcman/utxo"
	pmmcommon "github.com/TEENet-io/pmm-go/common"
	"github.com/TEENet-io/pmm-go/signature"
)

// BtcExplorer is what the strategy needs from the explorer pool.
type BtcExplorer interface {
	GetUTXOs(ctx context.Context, address string) ([]utxo.ExplorerUTXO, error)
	FeeRate(ctx context.Context) float64
	Broadcast(ctx context.Context, rawTx string) (string, error)
}

type BtcStrategy struct {
	explorer  BtcExplorer
	assembler *assembler.Assembler
	alerts    alert.Sink
}

func NewBtcStrategy(explorer BtcExplorer, ass *assembler.Assembler, alerts alert.Sink) *BtcStrategy {
	return &BtcStrategy{
		explorer:  explorer,
		assembler: ass,
		alerts:    alerts,
	}
}

// checkNetwork refuses trades for a bitcoin network other than the operator's.
func (s *BtcStrategy) checkNetwork(params *TransferParams) error {
	want, err := assembler.ParamsByNetworkId(params.Token.NetworkId)
	if err != nil {
		return newError(params, "validate", errors.Join(ErrNetworkMismatch, err))
	}
	if want.Net != s.assembler.ChainConfig.Net {
		return newError(params, "validate", fmt.Errorf("%w: trade on %s, wallet on %s",
			ErrNetworkMismatch, params.Token.NetworkId, s.assembler.ChainConfig.Name))
	}
	return nil
}

func (s *BtcStrategy) Address() string {
	return s.assembler.Op.Address().EncodeAddress()
}

// Transfer spends every utxo of the operator: the payment, change when
// above dust and an OP_RETURN with the trade ids hash.
func (s *BtcStrategy) Transfer(ctx context.Context, params *TransferParams) (string, error) {
	if err := checkAmount(params); err != nil {
		return "", err
	}
	if err := s.checkNetwork(params); err != nil {
		return "", err
	}
	if !params.Amount.IsInt64() {
		return "", newError(params, "validate", ErrInvalidAmount)
	}
	amount := params.Amount.Int64()
	if _, err := assembler.DecodeAddress(params.ToAddress, s.assembler.ChainConfig); err != nil {
		return "", newError(params, "validate", fmt.Errorf("invalid receiver %q: %w", params.ToAddress, err))
	}

	records, err := s.explorer.GetUTXOs(ctx, s.Address())
	if err != nil {
		return "", newError(params, "utxos", err)
	}
	inputs, err := utxo.FromExplorer(records, s.assembler.Op.PkScript())
	if err != nil {
		if errors.Is(err, utxo.ErrNoUTXO) {
			s.alertShort(ctx, params, 0, amount)
			return "", newError(params, "utxos", errors.Join(ErrNoUTXO, ErrInsufficientBalance))
		}
		return "", newError(params, "utxos", err)
	}

	total := utxo.Total(inputs)
	if total < amount {
		s.alertShort(ctx, params, total, amount)
		return "", newError(params, "balance", ErrInsufficientBalance)
	}

	feeRate := s.explorer.FeeRate(ctx)
	fee := assembler.EstimateFee(assembler.EstimateTxSize(len(inputs), amount), feeRate)
	if total < amount+fee {
		s.alertShort(ctx, params, total, amount+fee)
		return "", newError(params, "balance", ErrInsufficientBalance)
	}

	tradeId, err := pmmcommon.HexStrToBytes32(params.TradeId)
	if err != nil {
		return "", newError(params, "validate", err)
	}
	tradeIdsHash, err := signature.TradeIdsHash([][32]byte{tradeId})
	if err != nil {
		return "", newError(params, "trade ids hash", err)
	}

	tx, err := s.assembler.MakeSettlementTx(params.ToAddress, amount, tradeIdsHash, fee, inputs)
	if err != nil {
		return "", newError(params, "build tx", err)
	}

	rawTx, err := serialize(tx)
	if err != nil {
		return "", newError(params, "serialize", err)
	}

	txId, err := s.explorer.Broadcast(ctx, rawTx)
	if err != nil {
		return "", newError(params, "broadcast", errors.Join(ErrBroadcastFailed, err))
	}
	if txId == "" {
		txId = tx.TxHash().String()
	}

	logger.WithFields(logger.Fields{
		"tradeId": params.TradeId,
		"network": params.Token.NetworkId,
		"txid":    txId,
		"amount":  amount,
		"fee":     fee,
		"feeRate": feeRate,
		"inputs":  len(inputs),
	}).Info("btc payment broadcast")

	return txId, nil
}

func (s *BtcStrategy) alertShort(ctx context.Context, params *TransferParams, have, need int64) {
	alert.Notify(ctx, s.alerts, fmt.Sprintf(
		"Insufficient BTC balance on %s for trade %s: have %s BTC, need %s BTC (%s)",
		params.Token.NetworkId, params.TradeId,
		utils.SatoshiToBtc(have), utils.SatoshiToBtc(need), s.Address()))
}

func serialize(tx *wire.MsgTx) (string, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf.Bytes()), nil
}
