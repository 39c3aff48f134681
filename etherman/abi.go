package etherman

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Only the fragments this service calls are listed.

const RouterABI = `[
	{"type":"function","name":"SIGNER","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getPMMSelection","stateMutability":"view",
	 "inputs":[{"name":"tradeId","type":"bytes32"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"rfqInfo","type":"tuple","components":[
			{"name":"minAmountOut","type":"uint256"},
			{"name":"tradeTimeout","type":"uint256"},
			{"name":"rfqInfoSignature","type":"bytes"}]},
		{"name":"pmmInfo","type":"tuple","components":[
			{"name":"amountOut","type":"uint256"},
			{"name":"selectedPMMId","type":"bytes32"},
			{"name":"info","type":"bytes[2]"},
			{"name":"sigExpiry","type":"uint256"}]}]}]},
	{"type":"function","name":"getTradeData","stateMutability":"view",
	 "inputs":[{"name":"tradeId","type":"bytes32"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"sessionId","type":"uint256"},
		{"name":"tradeInfo","type":"tuple","components":[
			{"name":"amountIn","type":"uint256"},
			{"name":"fromChain","type":"bytes[3]"},
			{"name":"toChain","type":"bytes[3]"}]},
		{"name":"scriptInfo","type":"tuple","components":[
			{"name":"depositInfo","type":"bytes[5]"},
			{"name":"userEphemeralL2Address","type":"address"},
			{"name":"scriptTimeout","type":"uint256"}]}]}]},
	{"type":"function","name":"getFeeDetails","stateMutability":"view",
	 "inputs":[{"name":"tradeId","type":"bytes32"}],
	 "outputs":[{"name":"","type":"tuple","components":[
		{"name":"totalAmount","type":"uint256"},
		{"name":"pFeeAmount","type":"uint256"},
		{"name":"aFeeAmount","type":"uint256"},
		{"name":"pFeeRate","type":"uint256"},
		{"name":"aFeeRate","type":"uint256"}]}]}
]`

// EIP-5267
const SignerABI = `[
	{"type":"function","name":"eip712Domain","stateMutability":"view","inputs":[],
	 "outputs":[
		{"name":"fields","type":"bytes1"},
		{"name":"name","type":"string"},
		{"name":"version","type":"string"},
		{"name":"chainId","type":"uint256"},
		{"name":"verifyingContract","type":"address"},
		{"name":"salt","type":"bytes32"},
		{"name":"extensions","type":"uint256[]"}]}
]`

const PaymentABI = `[
	{"type":"function","name":"payment","stateMutability":"payable",
	 "inputs":[
		{"name":"tradeId","type":"bytes32"},
		{"name":"token","type":"address"},
		{"name":"toUser","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"totalFee","type":"uint256"},
		{"name":"deadline","type":"uint256"}],
	 "outputs":[]},
	{"type":"function","name":"protocol","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"PaymentTransferred","anonymous":false,
	 "inputs":[
		{"name":"tradeId","type":"bytes32","indexed":true},
		{"name":"from","type":"address","indexed":true},
		{"name":"to","type":"address","indexed":true},
		{"name":"pFeeAddr","type":"address","indexed":false},
		{"name":"token","type":"address","indexed":false},
		{"name":"payToUser","type":"uint256","indexed":false},
		{"name":"totalFee","type":"uint256","indexed":false}]}
]`

const ERC20ABI = `[
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],
	 "outputs":[{"name":"","type":"uint8"}]}
]`

var (
	routerABI  = mustParseABI(RouterABI)
	signerABI  = mustParseABI(SignerABI)
	paymentABI = mustParseABI(PaymentABI)
	erc20ABI   = mustParseABI(ERC20ABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}
