package etherman

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"time"

	"github.com/TEENet-io/pmm-go/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	logger "github.com/sirupsen/logrus"
)

type DialFunc func(ctx context.Context, cfg *ChainConfig, key *ecdsa.PrivateKey) (*EvmChain, error)

// ChainPool keeps one EvmChain per destination network. Connections are
// opened on first use and dropped whenever the environment changes.
type ChainPool struct {
	mu     sync.Mutex
	handle *config.Handle
	key    *ecdsa.PrivateKey
	dial   DialFunc
	chains map[string]*EvmChain

	unsubscribe func()
}

func NewChainPool(handle *config.Handle, key *ecdsa.PrivateKey) *ChainPool {
	return NewChainPoolWithDialer(handle, key, DialEvmChain)
}

func NewChainPoolWithDialer(handle *config.Handle, key *ecdsa.PrivateKey, dial DialFunc) *ChainPool {
	p := &ChainPool{
		handle: handle,
		key:    key,
		dial:   dial,
		chains: make(map[string]*EvmChain),
	}
	p.unsubscribe = handle.Subscribe(func(config.EnvironmentConfig) {
		p.Reset()
	})
	return p
}

func (p *ChainPool) Get(ctx context.Context, networkId string) (*EvmChain, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if chain, ok := p.chains[networkId]; ok {
		return chain, nil
	}

	env := p.handle.Get()
	url, err := env.EvmRpcUrl(networkId)
	if err != nil {
		return nil, err
	}
	payment, err := env.PaymentAddress(networkId)
	if err != nil {
		return nil, err
	}

	chain, err := p.dial(ctx, &ChainConfig{
		NetworkId:      networkId,
		URL:            url,
		PaymentAddress: common.HexToAddress(payment),
	}, p.key)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"network": networkId,
		"payment": payment,
		"from":    chain.Address().Hex(),
	}).Debug("evm chain connected")

	p.chains[networkId] = chain
	return chain, nil
}

// Address of the PMM account, the same on every EVM network.
func (p *ChainPool) Address() common.Address {
	return crypto.PubkeyToAddress(p.key.PublicKey)
}

func (p *ChainPool) Reset() {
	p.mu.Lock()
	chains := p.chains
	p.chains = make(map[string]*EvmChain)
	p.mu.Unlock()

	if len(chains) == 0 {
		return
	}
	// in-flight payments may still hold a chain
	time.AfterFunc(closeGrace, func() {
		for _, chain := range chains {
			chain.Close()
		}
	})
}

func (p *ChainPool) Close() {
	p.unsubscribe()

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, chain := range p.chains {
		chain.Close()
	}
	p.chains = make(map[string]*EvmChain)
}
