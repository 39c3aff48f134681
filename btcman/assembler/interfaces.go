/*
Operator is the key holder a tx assembler signs with.

Remember:
Always create the "lock" part firstly on Tx, then create the "unlock" part on Tx.
Taproot sighashes commit to every output, so signing before the outputs
are final produces invalid witnesses.
*/
package assembler

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"

	"github.com/TEENet-io/pmm-go/btcman/utxo"
)

type Operator interface {
	// Address funds are received on and change is returned to.
	Address() btcutil.Address
	// PkScript locking the operator's outputs.
	PkScript() []byte
	// Given a list of UTXO(s), add them as inputs of tx and produce a valid
	// witness for each.
	Unlock(tx *wire.MsgTx, prevOutputs []*utxo.UTXO) (*wire.MsgTx, error)
}
