package utxo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTxId = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

func TestFromExplorer(t *testing.T) {
	script := []byte{0x51, 0x20}
	utxos, err := FromExplorer([]ExplorerUTXO{
		{TxID: testTxId, Vout: 0, Value: 40_000},
		{TxID: testTxId, Vout: 1, Value: 20_000},
	}, script)
	require.NoError(t, err)
	require.Len(t, utxos, 2)

	assert.Equal(t, int64(60_000), Total(utxos))
	assert.Equal(t, testTxId, utxos[1].TxHash.String())
	assert.Equal(t, uint32(1), utxos[1].Vout)
	assert.Equal(t, script, utxos[0].PkScript)
	assert.Equal(t, 0.0004, utxos[0].AmountHuman())
}

func TestFromExplorerErrors(t *testing.T) {
	_, err := FromExplorer(nil, nil)
	assert.ErrorIs(t, err, ErrNoUTXO)

	_, err = FromExplorer([]ExplorerUTXO{{TxID: "zz"}}, nil)
	assert.Error(t, err)
}
