package transfer

import (
	"fmt"
	"strings"

	"github.com/TEENet-io/pmm-go/state"
)

type Factory struct {
	strategies map[state.NetworkType]Strategy
}

// NewFactory maps network types to strategies. BTC and TBTC share one
// strategy. A nil strategy leaves its network types unsupported.
func NewFactory(evm, btc, solana Strategy) *Factory {
	f := &Factory{strategies: map[state.NetworkType]Strategy{}}
	if evm != nil {
		f.strategies[state.NetworkEVM] = evm
	}
	if btc != nil {
		f.strategies[state.NetworkBTC] = btc
		f.strategies[state.NetworkTBTC] = btc
	}
	if solana != nil {
		f.strategies[state.NetworkSolana] = solana
	}
	return f
}

func (f *Factory) Get(networkType string) (Strategy, error) {
	key := state.NetworkType(strings.ToUpper(strings.TrimSpace(networkType)))
	s, ok := f.strategies[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedNetworkType, networkType)
	}
	return s, nil
}
