package etherman

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TEENet-io/pmm-go/config"
	ethcommon "github.com/ethereum/go-ethereum/common"

	logger "github.com/sirupsen/logrus"
)

// how long a replaced client stays open for calls already holding it
const closeGrace = 30 * time.Second

// Router is the read surface of the router and its signer contract.
type Router interface {
	GetPMMSelection(ctx context.Context, tradeId [32]byte) (*PMMSelection, error)
	GetTradeData(ctx context.Context, tradeId [32]byte) (*TradeData, error)
	GetFeeDetails(ctx context.Context, tradeId [32]byte) (*FeeDetails, error)
	GetSigner(ctx context.Context) (ethcommon.Address, error)
	GetEIP712Domain(ctx context.Context, signer ethcommon.Address) (*EIP712Domain, error)
}

// RouterHandle is a Router that follows the environment: every switch
// dials the new router chain and swaps the active Etherman.
type RouterHandle struct {
	current atomic.Pointer[Etherman]
	dial    func(*Config) (*Etherman, error)

	mu          sync.Mutex
	unsubscribe func()
}

func NewRouterHandle(handle *config.Handle) (*RouterHandle, error) {
	return NewRouterHandleWithDialer(handle, NewEtherman)
}

func NewRouterHandleWithDialer(handle *config.Handle, dial func(*Config) (*Etherman, error)) (*RouterHandle, error) {
	r := &RouterHandle{dial: dial}

	e, err := dial(routerConfig(handle.Get()))
	if err != nil {
		return nil, err
	}
	r.current.Store(e)

	r.unsubscribe = handle.Subscribe(r.onEnvironment)
	return r, nil
}

func routerConfig(env config.EnvironmentConfig) *Config {
	return &Config{
		URL:           env.RouterRpcUrl,
		RouterAddress: ethcommon.HexToAddress(env.RouterAddress),
	}
}

func (r *RouterHandle) onEnvironment(env config.EnvironmentConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.dial(routerConfig(env))
	if err != nil {
		// keep serving from the previous router
		logger.WithFields(logger.Fields{
			"env": env.Env,
			"url": env.RouterRpcUrl,
		}).Errorf("failed to dial router chain: %v", err)
		return
	}

	old := r.current.Swap(e)
	logger.WithFields(logger.Fields{
		"env":    env.Env,
		"router": env.RouterAddress,
	}).Info("router client rebuilt")

	if old != nil {
		time.AfterFunc(closeGrace, old.Close)
	}
}

func (r *RouterHandle) Current() *Etherman {
	return r.current.Load()
}

func (r *RouterHandle) Close() {
	r.unsubscribe()
	if e := r.current.Load(); e != nil {
		e.Close()
	}
}

func (r *RouterHandle) GetPMMSelection(ctx context.Context, tradeId [32]byte) (*PMMSelection, error) {
	return r.Current().GetPMMSelection(ctx, tradeId)
}

func (r *RouterHandle) GetTradeData(ctx context.Context, tradeId [32]byte) (*TradeData, error) {
	return r.Current().GetTradeData(ctx, tradeId)
}

func (r *RouterHandle) GetFeeDetails(ctx context.Context, tradeId [32]byte) (*FeeDetails, error) {
	return r.Current().GetFeeDetails(ctx, tradeId)
}

func (r *RouterHandle) GetSigner(ctx context.Context) (ethcommon.Address, error) {
	return r.Current().GetSigner(ctx)
}

func (r *RouterHandle) GetEIP712Domain(ctx context.Context, signer ethcommon.Address) (*EIP712Domain, error) {
	return r.Current().GetEIP712Domain(ctx, signer)
}
