package etherman

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrUnexpectedOutput = errors.New("unexpected contract output")
)

type EthereumClient interface {
	ethereum.ChainReader
	ethereum.ChainStateReader
	ethereum.ChainIDReader
	ethereum.ContractCaller
	ethereum.GasEstimator
	ethereum.GasPricer
	ethereum.LogFilterer
	ethereum.TransactionReader
	ethereum.TransactionSender

	bind.DeployBackend
	bind.ContractBackend
}

// Etherman reads the router (and the signer contract it names) on the
// chain hosting the settlement protocol.
type Etherman struct {
	ethClient     EthereumClient
	closer        func()
	routerAddress ethcommon.Address
	router        *bind.BoundContract
}

func NewEtherman(cfg *Config) (*Etherman, error) {
	ethClient, err := ethclient.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	e := NewEthermanWithClient(ethClient, cfg.RouterAddress)
	e.closer = ethClient.Close
	return e, nil
}

func NewEthermanWithClient(client EthereumClient, routerAddress ethcommon.Address) *Etherman {
	return &Etherman{
		ethClient:     client,
		routerAddress: routerAddress,
		router:        bind.NewBoundContract(routerAddress, routerABI, client, client, client),
	}
}

func (etherman *Etherman) Close() {
	if etherman.closer != nil {
		etherman.closer()
	}
}

func (etherman *Etherman) RouterAddress() ethcommon.Address {
	return etherman.routerAddress
}

func (etherman *Etherman) GetPMMSelection(ctx context.Context, tradeId [32]byte) (*PMMSelection, error) {
	out, err := etherman.callRouter(ctx, "getPMMSelection", tradeId)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(PMMSelection)).(*PMMSelection), nil
}

func (etherman *Etherman) GetTradeData(ctx context.Context, tradeId [32]byte) (*TradeData, error) {
	out, err := etherman.callRouter(ctx, "getTradeData", tradeId)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(TradeData)).(*TradeData), nil
}

func (etherman *Etherman) GetFeeDetails(ctx context.Context, tradeId [32]byte) (*FeeDetails, error) {
	out, err := etherman.callRouter(ctx, "getFeeDetails", tradeId)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(FeeDetails)).(*FeeDetails), nil
}

// GetSigner returns the address of the contract holding the EIP-712 domain
// settlement attestations are signed under.
func (etherman *Etherman) GetSigner(ctx context.Context) (ethcommon.Address, error) {
	out, err := etherman.callRouter(ctx, "SIGNER")
	if err != nil {
		return ethcommon.Address{}, err
	}
	addr, ok := out[0].(ethcommon.Address)
	if !ok {
		return ethcommon.Address{}, fmt.Errorf("%w: SIGNER %T", ErrUnexpectedOutput, out[0])
	}
	return addr, nil
}

func (etherman *Etherman) GetEIP712Domain(ctx context.Context, signer ethcommon.Address) (*EIP712Domain, error) {
	contract := bind.NewBoundContract(signer, signerABI, etherman.ethClient, etherman.ethClient, etherman.ethClient)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "eip712Domain"); err != nil {
		return nil, fmt.Errorf("eip712Domain: %w", err)
	}
	if len(out) != 7 {
		return nil, fmt.Errorf("%w: eip712Domain returned %d values", ErrUnexpectedOutput, len(out))
	}

	domain := &EIP712Domain{}
	var ok bool
	if domain.Name, ok = out[1].(string); !ok {
		return nil, fmt.Errorf("%w: name %T", ErrUnexpectedOutput, out[1])
	}
	if domain.Version, ok = out[2].(string); !ok {
		return nil, fmt.Errorf("%w: version %T", ErrUnexpectedOutput, out[2])
	}
	if domain.ChainId, ok = out[3].(*big.Int); !ok {
		return nil, fmt.Errorf("%w: chainId %T", ErrUnexpectedOutput, out[3])
	}
	if domain.VerifyingContract, ok = out[4].(ethcommon.Address); !ok {
		return nil, fmt.Errorf("%w: verifyingContract %T", ErrUnexpectedOutput, out[4])
	}
	return domain, nil
}

func (etherman *Etherman) callRouter(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := etherman.router.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("router %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: router %s returned nothing", ErrUnexpectedOutput, method)
	}
	return out, nil
}
