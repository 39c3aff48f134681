/*
This file contains operations on UTXO lists.
*/
package utxo

import (
	"errors"
)

var (
	ErrNoUTXO = errors.New("no utxo available")
)

// Total value of the outputs in satoshi.
func Total(inputs []*UTXO) int64 {
	var sum int64
	for _, item := range inputs {
		sum += item.Amount
	}
	return sum
}

// FromExplorer converts an explorer listing. An empty listing is ErrNoUTXO.
func FromExplorer(records []ExplorerUTXO, pkScript []byte) ([]*UTXO, error) {
	if len(records) == 0 {
		return nil, ErrNoUTXO
	}
	out := make([]*UTXO, 0, len(records))
	for i := range records {
		u, err := records[i].ToUTXO(pkScript)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}
