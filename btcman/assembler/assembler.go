package assembler

import (
	"errors"
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"github.com/TEENet-io/pmm-go/btcman/utxo"
)

const (
	DustLimit = 546 // satoshi
	txVersion = 2

	// byte costs used to size the miner fee
	baseTxSize         = 10  // version, locktime, counts
	inputSize          = 107 // outpoint, sequence, key path witness
	p2trOutputSize     = 42  // value + 34 byte script
	opReturnOutputSize = 41  // value + OP_RETURN + 32 bytes
)

var (
	ErrInsufficientFunds = errors.New("inputs do not cover amount and fee")
)

type Assembler struct {
	ChainConfig *chaincfg.Params // which BTC chain it is on. (mainnet, testnet, regtest)
	Op          Operator         // can do unlock/locking script on a btc transaction.
}

// EstimateTxSize is a conservative vsize of a settlement tx spending
// inputCount key path inputs. Payments above the dust limit are counted
// with a change output.
func EstimateTxSize(inputCount int, amount int64) int64 {
	outputCount := int64(1)
	if amount > DustLimit {
		outputCount = 2
	}
	return baseTxSize + inputSize*int64(inputCount) + p2trOutputSize*outputCount + opReturnOutputSize
}

// EstimateFee is ceil(size * feeRate) with feeRate in sat/vB.
func EstimateFee(size int64, feeRate float64) int64 {
	return int64(math.Ceil(float64(size) * feeRate))
}

// Create the outputs of a settlement tx:
// output #1, dst_amount to the receiver.
// output #2, change back to the operator, only when above the dust limit.
// output #3, OP_RETURN carrying the trade ids hash.
func (myAss *Assembler) craftSettlementOutputs(
	tx *wire.MsgTx,
	prevOutputs []*utxo.UTXO,
	dst_addr string,
	dst_amount int64,
	tradeIdsHash [32]byte,
	fee_amount int64,
) (*wire.MsgTx, error) {
	sum := utxo.Total(prevOutputs)
	change_amount := sum - dst_amount - fee_amount
	if change_amount < 0 {
		return nil, fmt.Errorf("%w: sum: %d, dst_amount: %d, fee_amount: %d",
			ErrInsufficientFunds, sum, dst_amount, fee_amount)
	}

	tx, err := AppendPayToAddress(tx, myAss.ChainConfig, dst_addr, dst_amount)
	if err != nil {
		return nil, err
	}

	if change_amount > DustLimit {
		tx, err = AppendPayToAddress(tx, myAss.ChainConfig, myAss.Op.Address().EncodeAddress(), change_amount)
		if err != nil {
			return nil, err
		}
	}

	return AppendOpReturn(tx, tradeIdsHash[:])
}

// Make a signed settlement tx paying dst_amount to dst_addr from all of
// prevOutputs. You need to broadcast the Tx later.
func (myAss *Assembler) MakeSettlementTx(
	dst_addr string,
	dst_amount int64,
	tradeIdsHash [32]byte,
	fee_amount int64,
	prevOutputs []*utxo.UTXO,
) (*wire.MsgTx, error) {
	if len(prevOutputs) == 0 {
		return nil, utxo.ErrNoUTXO
	}

	tx := wire.NewMsgTx(txVersion)

	// Stuff the locking scripts first.
	tx, err := myAss.craftSettlementOutputs(tx, prevOutputs, dst_addr, dst_amount, tradeIdsHash, fee_amount)
	if err != nil {
		return nil, err
	}

	// Stuff the unlocking scripts, secondly.
	return myAss.Op.Unlock(tx, prevOutputs)
}
