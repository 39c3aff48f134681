package assembler

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/chaincfg"
)

var (
	ErrUnknownNetwork = errors.New("unknown bitcoin network")
)

// DecodeWIF decodes a string private key to *btcutil.WIF
func DecodeWIF(privKeyStr string) (*btcutil.WIF, error) {
	decoded := base58.Decode(privKeyStr)
	if len(decoded) == 0 {
		return nil, errors.New("invalid private key string (cannot pass base58 decode)")
	}

	return btcutil.DecodeWIF(privKeyStr)
}

// Decode Address decodes a string address to btcutil.Address
func DecodeAddress(addressStr string, network *chaincfg.Params) (btcutil.Address, error) {
	return btcutil.DecodeAddress(addressStr, network)
}

// ParamsByName maps mainnet, testnet and regtest to chain params.
func ParamsByName(name string) (*chaincfg.Params, error) {
	switch name {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, name)
}

// ParamsByNetworkId maps the router's bitcoin network ids to chain params.
func ParamsByNetworkId(networkId string) (*chaincfg.Params, error) {
	switch networkId {
	case "bitcoin":
		return &chaincfg.MainNetParams, nil
	case "bitcoin_testnet":
		return &chaincfg.TestNet3Params, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownNetwork, networkId)
}
