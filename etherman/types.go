package etherman

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Router structs. Field names follow the abi component names so that
// abi.ConvertType can fill them.

type RFQInfo struct {
	MinAmountOut     *big.Int
	TradeTimeout     *big.Int
	RfqInfoSignature []byte
}

type SelectedPMMInfo struct {
	AmountOut     *big.Int
	SelectedPMMId [32]byte
	Info          [2][]byte
	SigExpiry     *big.Int
}

type PMMSelection struct {
	RfqInfo RFQInfo
	PmmInfo SelectedPMMInfo
}

type TradeInfo struct {
	AmountIn  *big.Int
	FromChain [3][]byte // address, network id, token address
	ToChain   [3][]byte
}

type ScriptInfo struct {
	DepositInfo            [5][]byte
	UserEphemeralL2Address ethcommon.Address
	ScriptTimeout          *big.Int
}

type TradeData struct {
	SessionId  *big.Int
	TradeInfo  TradeInfo
	ScriptInfo ScriptInfo
}

type FeeDetails struct {
	TotalAmount *big.Int
	PFeeAmount  *big.Int
	AFeeAmount  *big.Int
	PFeeRate    *big.Int
	AFeeRate    *big.Int
}

// EIP712Domain as reported by an EIP-5267 contract.
type EIP712Domain struct {
	Name              string
	Version           string
	ChainId           *big.Int
	VerifyingContract ethcommon.Address
}

// Params of Payment.payment(). Token is the zero address for the native coin.
type PaymentParams struct {
	TradeId  [32]byte
	Token    ethcommon.Address
	ToUser   ethcommon.Address
	Amount   *big.Int
	TotalFee *big.Int
	Deadline *big.Int
}

func (p *PaymentParams) IsNative() bool {
	return p.Token == (ethcommon.Address{})
}
