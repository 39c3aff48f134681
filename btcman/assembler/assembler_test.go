package assembler

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TEENet-io/pmm-go/btcman/utxo"
)

const REGTEST_PRIV = "cUcHsdBfXphhqLayGuxULxJeABDX74kMtL2gdfyUMVeke3ZJsKQ6"

var REGTEST_RECEIVER = func() string {
	sk, _ := btcec.NewPrivateKey()
	addr, _ := btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(sk.PubKey().SerializeCompressed()), &chaincfg.RegressionNetParams)
	return addr.EncodeAddress()
}()

var testTradeIdsHash = [32]byte{0xde, 0xad, 0xbe, 0xef}

func newTestAssembler(t *testing.T) *Assembler {
	op, err := NewTaprootOperatorFromWIF(REGTEST_PRIV, &chaincfg.RegressionNetParams)
	require.NoError(t, err)
	return &Assembler{ChainConfig: &chaincfg.RegressionNetParams, Op: op}
}

func fundOperator(op Operator, amounts ...int64) []*utxo.UTXO {
	out := make([]*utxo.UTXO, len(amounts))
	for i, amount := range amounts {
		hash := chainhash.Hash{byte(i + 1)}
		out[i] = &utxo.UTXO{
			TxID:     hash.String(),
			TxHash:   &hash,
			Vout:     uint32(i),
			Amount:   amount,
			PkScript: op.PkScript(),
		}
	}
	return out
}

func verifyInputs(t *testing.T, tx *wire.MsgTx, prevOutputs []*utxo.UTXO) {
	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, u := range prevOutputs {
		fetcher.AddPrevOut(tx.TxIn[i].PreviousOutPoint, wire.NewTxOut(u.Amount, u.PkScript))
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	for i, u := range prevOutputs {
		vm, err := txscript.NewEngine(u.PkScript, tx, i, txscript.StandardVerifyFlags, nil, sigHashes, u.Amount, fetcher)
		require.NoError(t, err)
		require.NoError(t, vm.Execute(), "input %d", i)
	}
}

func TestTaprootOperatorAddress(t *testing.T) {
	for _, params := range []*chaincfg.Params{&chaincfg.RegressionNetParams, &chaincfg.TestNet3Params} {
		op, err := NewTaprootOperatorFromWIF(REGTEST_PRIV, params)
		require.NoError(t, err)

		decoded, err := DecodeAddress(op.Address().EncodeAddress(), params)
		require.NoError(t, err)
		assert.Equal(t, op.P2TR.EncodeAddress(), decoded.EncodeAddress())
		assert.True(t, txscript.IsPayToTaproot(op.PkScript()))
	}
}

func TestEstimates(t *testing.T) {
	assert.Equal(t, int64(349), EstimateTxSize(2, 50_000))
	assert.Equal(t, int64(10+107+42+41), EstimateTxSize(1, DustLimit))
	assert.Equal(t, int64(1047), EstimateFee(349, 3))
	assert.Equal(t, int64(393), EstimateFee(349, 1.125))
}

// 50,000 sats out of 60,000 at 3 sat/vB
func TestMakeSettlementTx(t *testing.T) {
	ass := newTestAssembler(t)
	prev := fundOperator(ass.Op, 40_000, 20_000)

	fee := EstimateFee(EstimateTxSize(len(prev), 50_000), 3)
	tx, err := ass.MakeSettlementTx(REGTEST_RECEIVER, 50_000, testTradeIdsHash, fee, prev)
	require.NoError(t, err)

	require.Len(t, tx.TxIn, 2)
	require.Len(t, tx.TxOut, 3)
	assert.Equal(t, int64(50_000), tx.TxOut[0].Value)
	assert.Equal(t, int64(8_953), tx.TxOut[1].Value)
	assert.Equal(t, ass.Op.PkScript(), tx.TxOut[1].PkScript)

	opReturn := tx.TxOut[2]
	assert.Equal(t, int64(0), opReturn.Value)
	assert.True(t, txscript.IsNullData(opReturn.PkScript))
	pushes, err := txscript.PushedData(opReturn.PkScript)
	require.NoError(t, err)
	require.Len(t, pushes, 1)
	assert.Equal(t, testTradeIdsHash[:], pushes[0])

	verifyInputs(t, tx, prev)
}

func TestChangeDustBoundary(t *testing.T) {
	ass := newTestAssembler(t)
	const amount, fee = 10_000, 500

	cases := []struct {
		change  int64
		outputs int
	}{
		{change: 0, outputs: 2},
		{change: 546, outputs: 2},
		{change: 547, outputs: 3},
	}
	for _, c := range cases {
		prev := fundOperator(ass.Op, amount+fee+c.change)
		tx, err := ass.MakeSettlementTx(REGTEST_RECEIVER, amount, testTradeIdsHash, fee, prev)
		require.NoError(t, err)
		assert.Len(t, tx.TxOut, c.outputs, "change %d", c.change)
		assert.Equal(t, int64(0), tx.TxOut[len(tx.TxOut)-1].Value)
	}
}

func TestMakeSettlementTxInsufficient(t *testing.T) {
	ass := newTestAssembler(t)

	_, err := ass.MakeSettlementTx(REGTEST_RECEIVER, 10_000, testTradeIdsHash, 500, fundOperator(ass.Op, 10_499))
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = ass.MakeSettlementTx(REGTEST_RECEIVER, 10_000, testTradeIdsHash, 500, nil)
	assert.ErrorIs(t, err, utxo.ErrNoUTXO)
}

func TestParams(t *testing.T) {
	p, err := ParamsByNetworkId("bitcoin_testnet")
	require.NoError(t, err)
	assert.Equal(t, chaincfg.TestNet3Params.Name, p.Name)

	_, err = ParamsByName("signet")
	assert.ErrorIs(t, err, ErrUnknownNetwork)
}
