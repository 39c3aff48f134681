package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedEnvironment = errors.New("unsupported environment")
	ErrMissingPaymentAddress  = errors.New("no payment contract address for network")
	ErrMissingRpcUrl          = errors.New("no rpc url for network")
)

type Environment string

const (
	Dev        Environment = "dev"
	Staging    Environment = "staging"
	Prelive    Environment = "prelive"
	Production Environment = "production"
)

// Keep the configuration's fields as "text" as possible.
// Values are converted by the clients built from them.
type EnvironmentConfig struct {
	Env Environment

	SolverUrl     string // base url of the solver backend
	RouterRpcUrl  string // json rpc of the chain hosting the router
	RouterAddress string

	PaymentAddressMap map[string]string // network id -> payment contract
	EvmRpcMap         map[string]string // network id -> json rpc

	SolanaRpcUrl string
}

var environments = map[Environment]EnvironmentConfig{
	Dev: {
		SolverUrl:     "https://api-dev.bitdex.xyz",
		RouterRpcUrl:  "https://rpc-bitfi-p00c4t1rul.t.conduit.xyz",
		RouterAddress: "0x193501E5F72a42DACCF8Eb1C4AB37561c213309D",
		PaymentAddressMap: map[string]string{
			"ethereum_sepolia": "0x1d8b58438D5Ccc8Fcb4b738C89078f7b4168C9c0",
		},
		EvmRpcMap: map[string]string{
			"ethereum_sepolia": "https://ethereum-sepolia.blockpi.network/v1/rpc/public",
			"base_sepolia":     "https://base-sepolia.blockpi.network/v1/rpc/public",
		},
		SolanaRpcUrl: "https://api.devnet.solana.com",
	},
	Staging: {
		SolverUrl:     "https://api-stg.bitdex.xyz",
		RouterRpcUrl:  "https://rpc-bitfi-p00c4t1rul.t.conduit.xyz",
		RouterAddress: "0x193501E5F72a42DACCF8Eb1C4AB37561c213309D",
		PaymentAddressMap: map[string]string{
			"ethereum_sepolia": "0x7387DcCfE2f1D5F80b4ECDF91eF58541517e90D2",
		},
		EvmRpcMap: map[string]string{
			"ethereum_sepolia": "https://ethereum-sepolia.blockpi.network/v1/rpc/public",
			"base_sepolia":     "https://base-sepolia.blockpi.network/v1/rpc/public",
		},
		SolanaRpcUrl: "https://api.devnet.solana.com",
	},
	Prelive: {
		SolverUrl:     "https://pre-api.optimex.xyz",
		RouterRpcUrl:  "https://rpc.optimex.xyz",
		RouterAddress: "0xcceAb862dD41f6691d81Cc016216Cd45d7BD6D4A",
		PaymentAddressMap: map[string]string{
			"ethereum": "0x0A497AC4261E37FA4062762C23Cf3cB642C839b8",
		},
		EvmRpcMap: map[string]string{
			"ethereum": "https://ethereum.blockpi.network/v1/rpc/public",
		},
		SolanaRpcUrl: "https://api.mainnet-beta.solana.com",
	},
	Production: {
		SolverUrl:     "https://api.optimex.xyz",
		RouterRpcUrl:  "https://rpc.optimex.xyz",
		RouterAddress: "0xcceAb862dD41f6691d81Cc016216Cd45d7BD6D4A",
		PaymentAddressMap: map[string]string{
			"ethereum": "0x0A497AC4261E37FA4062762C23Cf3cB642C839b8",
		},
		EvmRpcMap: map[string]string{
			"ethereum": "https://ethereum.blockpi.network/v1/rpc/public",
		},
		SolanaRpcUrl: "https://api.mainnet-beta.solana.com",
	},
}

// Lookup returns a copy of the built-in settings of env.
func Lookup(env string) (EnvironmentConfig, error) {
	e := Environment(strings.ToLower(env))
	cfg, ok := environments[e]
	if !ok {
		return EnvironmentConfig{}, fmt.Errorf("%w: %s", ErrUnsupportedEnvironment, env)
	}
	cfg.Env = e
	cfg.PaymentAddressMap = cloneMap(cfg.PaymentAddressMap)
	cfg.EvmRpcMap = cloneMap(cfg.EvmRpcMap)
	return cfg, nil
}

func (c *EnvironmentConfig) PaymentAddress(networkId string) (string, error) {
	addr, ok := c.PaymentAddressMap[networkId]
	if !ok || addr == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingPaymentAddress, networkId)
	}
	return addr, nil
}

func (c *EnvironmentConfig) EvmRpcUrl(networkId string) (string, error) {
	url, ok := c.EvmRpcMap[networkId]
	if !ok || url == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingRpcUrl, networkId)
	}
	return url, nil
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
