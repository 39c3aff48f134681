package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
)

// confirmation target asked from estimatesmartfee
const feeTarget = 1

var (
	ErrNoFeeEstimate = errors.New("node has no fee estimate")
)

type RpcClientConfig struct {
	ServerAddr string // ip address of server
	Port       string // port of server
	Username   string
	Pwd        string
}

// Wrapper of btc rpc client. It joins the explorer pool as a fee source
// and a broadcaster.
type RpcClient struct {
	ServerAddr string // ip address of server
	Port       string // port of server
	client     *rpcclient.Client
}

// Create a new RPC client which
// contains several useful functions
// to interact with bitcoin node.
func NewRpcClient(rcc *RpcClientConfig) (*RpcClient, error) {
	// Connect to the bitcoin node using HTTP
	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         rcc.ServerAddr + ":" + rcc.Port,
		User:         rcc.Username,
		Pass:         rcc.Pwd,
		HTTPPostMode: true, // original bitcoin only supports HTTP POST mode
		DisableTLS:   true, // original bitcoin does not support TLS
	}, nil)

	if err != nil {
		return nil, err
	}

	return &RpcClient{rcc.ServerAddr, rcc.Port, client}, nil
}

// Close the rpc client
func (r *RpcClient) Close() {
	r.client.Shutdown()
}

func (r *RpcClient) Name() string {
	return "bitcoind"
}

// FeeEstimates reports the node's smart fee for the next block, keyed the
// way explorers key their buckets.
// rpcclient has no context support, the call is bounded by the client.
func (r *RpcClient) FeeEstimates(ctx context.Context) (map[string]float64, error) {
	mode := btcjson.EstimateModeConservative
	res, err := r.client.EstimateSmartFee(feeTarget, &mode)
	if err != nil {
		return nil, err
	}
	if res.FeeRate == nil {
		return nil, ErrNoFeeEstimate
	}
	return map[string]float64{
		strconv.Itoa(feeTarget): BtcPerKvbToSatPerVb(*res.FeeRate),
	}, nil
}

// Broadcast decodes the hex tx and sends it through sendrawtransaction.
func (r *RpcClient) Broadcast(ctx context.Context, rawTx string) (string, error) {
	tx, err := DecodeRawTx(rawTx)
	if err != nil {
		return "", err
	}
	hash, err := r.SendRawTx(tx)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// Send raw transaction to bitcoin network.
func (r *RpcClient) SendRawTx(tx *wire.MsgTx) (*chainhash.Hash, error) {
	// Explanation on allowHighFees=true
	// It is a protection.
	// if bitcoin node thinks your fee is too high (maybe due to program mistakes) it can reject you.
	// false = may reject; true = accept it anyway
	return r.client.SendRawTransaction(tx, true)
}

// BTC/kvB as reported by the node to sat/vB.
func BtcPerKvbToSatPerVb(rate float64) float64 {
	return rate * 1e8 / 1000
}

func DecodeRawTx(rawTx string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawTx)
	if err != nil {
		return nil, err
	}
	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return tx, nil
}
