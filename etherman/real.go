package etherman

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	logger "github.com/sirupsen/logrus"
)

var (
	ErrTxFailed = errors.New("transaction reverted on chain")
)

// EvmChain is a destination chain the PMM pays on: a connection, the PMM
// account and the payment contract of that network.
type EvmChain struct {
	NetworkId string

	client         EthereumClient
	closer         func()
	chainId        *big.Int
	key            *ecdsa.PrivateKey
	from           common.Address
	paymentAddress common.Address
	payment        *bind.BoundContract
}

func DialEvmChain(ctx context.Context, cfg *ChainConfig, key *ecdsa.PrivateKey) (*EvmChain, error) {
	client, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}

	chain, err := NewEvmChain(ctx, client, cfg, key)
	if err != nil {
		client.Close()
		return nil, err
	}
	chain.closer = client.Close
	return chain, nil
}

func NewEvmChain(ctx context.Context, client EthereumClient, cfg *ChainConfig, key *ecdsa.PrivateKey) (*EvmChain, error) {
	chainId, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id of %s: %w", cfg.NetworkId, err)
	}

	return &EvmChain{
		NetworkId:      cfg.NetworkId,
		client:         client,
		chainId:        chainId,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		paymentAddress: cfg.PaymentAddress,
		payment:        bind.NewBoundContract(cfg.PaymentAddress, paymentABI, client, client, client),
	}, nil
}

func (c *EvmChain) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Address of the PMM account on this chain.
func (c *EvmChain) Address() common.Address {
	return c.from
}

func (c *EvmChain) PaymentAddress() common.Address {
	return c.paymentAddress
}

func (c *EvmChain) ChainId() *big.Int {
	return new(big.Int).Set(c.chainId)
}

func (c *EvmChain) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.client.BalanceAt(ctx, owner, nil)
}

func (c *EvmChain) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, "balanceOf", owner)
}

func (c *EvmChain) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, "allowance", owner, spender)
}

// Approve sends approve(spender, amount) and waits for it to be mined.
func (c *EvmChain) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	opts, err := c.transactOpts(ctx, nil)
	if err != nil {
		return nil, err
	}

	contract := bind.NewBoundContract(token, erc20ABI, c.client, c.client, c.client)
	tx, err := contract.Transact(opts, "approve", spender, amount)
	if err != nil {
		return nil, WrapRevert(err)
	}

	logger.WithFields(logger.Fields{
		"network": c.NetworkId,
		"token":   token.Hex(),
		"spender": spender.Hex(),
		"amount":  amount.String(),
		"tx":      tx.Hash().Hex(),
	}).Info("approve sent")

	receipt, err := bind.WaitMined(ctx, c.client, tx)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: approve %s", ErrTxFailed, tx.Hash().Hex())
	}
	return tx, nil
}

// Pay calls Payment.payment(), attaching the amount as value for the native coin.
func (c *EvmChain) Pay(ctx context.Context, params *PaymentParams) (*types.Transaction, error) {
	var value *big.Int
	if params.IsNative() {
		value = params.Amount
	}

	opts, err := c.transactOpts(ctx, value)
	if err != nil {
		return nil, err
	}

	tx, err := c.payment.Transact(opts, "payment",
		params.TradeId,
		params.Token,
		params.ToUser,
		params.Amount,
		params.TotalFee,
		params.Deadline,
	)
	if err != nil {
		return nil, WrapRevert(err)
	}
	return tx, nil
}

func (c *EvmChain) transactOpts(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainId)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	opts.Value = value
	return opts, nil
}

func (c *EvmChain) callUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	contract := bind.NewBoundContract(token, erc20ABI, c.client, c.client, c.client)

	var out []interface{}
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedOutput, method)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s %T", ErrUnexpectedOutput, method, out[0])
	}
	return v, nil
}
