/*
This file contains low-level custom data structures used accross the program related to bitcoin.
  - UTXO, the unspent transaction output we spend from.
  - ExplorerUTXO, the same output as an Esplora explorer reports it.
*/
package utxo

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Represents the unspent transaction output (UTXO)
// in our program
type UTXO struct {
	TxID     string          // Identifier, human readable
	TxHash   *chainhash.Hash // Identifier, used for tx search
	Vout     uint32          // exact index of the Tx's outputs to be spent
	Amount   int64           // in satoshi
	PkScript []byte          // Locking Script itself
}

// Return a human-readable amount in BTC
// eg. 1e8 (satoshi) = 1.0 (BTC)
func (u *UTXO) AmountHuman() float64 {
	return float64(u.Amount) / 1e8
}

type ExplorerStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
	BlockTime   int64  `json:"block_time"`
}

// Element of GET /address/:addr/utxo
type ExplorerUTXO struct {
	TxID   string         `json:"txid"`
	Vout   uint32         `json:"vout"`
	Value  int64          `json:"value"`
	Status ExplorerStatus `json:"status"`
}

// ToUTXO attaches the locking script, which the explorer does not report.
// Every output of our own address carries the same script.
func (e *ExplorerUTXO) ToUTXO(pkScript []byte) (*UTXO, error) {
	hash, err := chainhash.NewHashFromStr(e.TxID)
	if err != nil {
		return nil, err
	}
	return &UTXO{
		TxID:     e.TxID,
		TxHash:   hash,
		Vout:     e.Vout,
		Amount:   e.Value,
		PkScript: pkScript,
	}, nil
}
