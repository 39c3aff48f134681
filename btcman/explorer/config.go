package explorer

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedNetwork = errors.New("unsupported bitcoin network")
)

const (
	blockstreamMainnet = "https://blockstream.info/api"
	blockstreamTestnet = "https://blockstream.info/testnet/api"
	mempoolMainnet     = "https://mempool.space/api"
	mempoolTestnet     = "https://mempool.space/testnet/api"
)

// DefaultProviders returns the public explorers serving network
// ("mainnet" or "testnet"), mempool.space first.
func DefaultProviders(network string, timeout time.Duration) ([]Named, error) {
	switch network {
	case "mainnet":
		return []Named{
			NewEsplora("mempool", mempoolMainnet, timeout),
			NewEsplora("blockstream", blockstreamMainnet, timeout),
		}, nil
	case "testnet":
		return []Named{
			NewEsplora("mempool", mempoolTestnet, timeout),
			NewEsplora("blockstream", blockstreamTestnet, timeout),
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
}
