// Implements the interface of Operator
// 1) Holds a single local private key.
// 2) Receives on the BIP86 style P2TR address of that key and spends
//    through the key path (no script tree).

package assembler

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/TEENet-io/pmm-go/btcman/utxo"
)

type TaprootOperator struct {
	ChainConfig *chaincfg.Params // which BTC chain it is on. (mainnet, testnet, regtest)
	PrivKey     *btcec.PrivateKey
	P2TR        *btcutil.AddressTaproot
	pkScript    []byte
}

// Recover the operator from a private key string (wallet-import-format).
func NewTaprootOperatorFromWIF(wifStr string, chainConfig *chaincfg.Params) (*TaprootOperator, error) {
	wif, err := DecodeWIF(wifStr)
	if err != nil {
		return nil, err
	}
	return NewTaprootOperator(wif.PrivKey, chainConfig)
}

func NewTaprootOperator(privKey *btcec.PrivateKey, chainConfig *chaincfg.Params) (*TaprootOperator, error) {
	// output key = internal key tweaked with TapTweak(internal key)
	tapKey := txscript.ComputeTaprootKeyNoScript(privKey.PubKey())
	p2trAddr, err := btcutil.NewAddressTaproot(schnorr.SerializePubKey(tapKey), chainConfig)
	if err != nil {
		return nil, err
	}
	pkScript, err := txscript.PayToAddrScript(p2trAddr)
	if err != nil {
		return nil, err
	}
	return &TaprootOperator{chainConfig, privKey, p2trAddr, pkScript}, nil
}

func (op *TaprootOperator) Address() btcutil.Address {
	return op.P2TR
}

func (op *TaprootOperator) PkScript() []byte {
	return op.pkScript
}

// Unlock adds every previous output as an input, then signs each one with
// the tweaked key under SIGHASH_DEFAULT.
// Warning: the outputs of tx must be complete before calling this.
func (op *TaprootOperator) Unlock(tx *wire.MsgTx, prevOutputs []*utxo.UTXO) (*wire.MsgTx, error) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for _, item := range prevOutputs {
		outPoint := wire.NewOutPoint(item.TxHash, item.Vout)
		tx.AddTxIn(wire.NewTxIn(outPoint, nil, nil))
		fetcher.AddPrevOut(*outPoint, wire.NewTxOut(item.Amount, item.PkScript))
	}

	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for idx, item := range prevOutputs {
		witness, err := txscript.TaprootWitnessSignature(
			tx, sigHashes, idx, item.Amount, item.PkScript, txscript.SigHashDefault, op.PrivKey,
		)
		if err != nil {
			return nil, err
		}
		tx.TxIn[idx].Witness = witness
	}
	return tx, nil
}
