package assembler

/*
This file implements the "locking" part of a tx.

Since locking scripts do not require any prior knowledge of private keys,
it is universal to all operators.
*/

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// Add a pay-to-any-type-of-address clause to Tx.
func AppendPayToAddress(tx *wire.MsgTx, dst_chain_cfg *chaincfg.Params, dst_addr string, amount int64) (*wire.MsgTx, error) {
	btcDstAddress, err := btcutil.DecodeAddress(dst_addr, dst_chain_cfg)
	if err != nil {
		return nil, err
	}

	txOutScript, err := txscript.PayToAddrScript(btcDstAddress)
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(wire.NewTxOut(amount, txOutScript))
	return tx, nil
}

// Add a zero value OP_RETURN clause carrying data.
func AppendOpReturn(tx *wire.MsgTx, data []byte) (*wire.MsgTx, error) {
	script, err := txscript.NullDataScript(data)
	if err != nil {
		return nil, err
	}
	tx.AddTxOut(wire.NewTxOut(0, script)) // No value for OP_RETURN
	return tx, nil
}
