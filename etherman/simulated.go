package etherman

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

var (
	SimulatedChainID = big.NewInt(1337)
	blockGasLimit    = uint64(999999999999999999)

	// runtime code that accepts any call and stops
	acceptAllCode = []byte{0x00}
)

type SimulatedChain struct {
	Backend  *simulated.Backend
	Keys     []*ecdsa.PrivateKey
	Accounts []*bind.TransactOpts

	// PaymentAddress holds code accepting every call, enough to take
	// payment() with value attached.
	PaymentAddress common.Address
}

func NewSimulatedChain(keys []*ecdsa.PrivateKey) *SimulatedChain {
	accounts := make([]*bind.TransactOpts, len(keys))
	for i, sk := range keys {
		accounts[i], _ = bind.NewKeyedTransactorWithChainID(sk, SimulatedChainID)
	}

	// allocate funds to accounts
	genesisAlloc := map[common.Address]types.Account{}
	for _, account := range accounts {
		balance, _ := new(big.Int).SetString("100000000000000000000", 10)
		genesisAlloc[account.From] = types.Account{
			Balance: balance,
		}
	}

	paymentAddress := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	genesisAlloc[paymentAddress] = types.Account{
		Code:    acceptAllCode,
		Balance: big.NewInt(0),
	}

	backend := simulated.NewBackend(genesisAlloc, simulated.WithBlockGasLimit(blockGasLimit))

	return &SimulatedChain{
		Backend:        backend,
		Keys:           keys,
		Accounts:       accounts,
		PaymentAddress: paymentAddress,
	}
}

// Client returns the backend as an EthereumClient.
func (sim *SimulatedChain) Client() EthereumClient {
	return sim.Backend.Client()
}
