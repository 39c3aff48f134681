package signature

import (
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	bytes32ArrayTy, _ = abi.NewType("bytes32[]", "", nil)
	bytes32Ty, _      = abi.NewType("bytes32", "", nil)
	uint64Ty, _       = abi.NewType("uint64", "", nil)
	uint256Ty, _      = abi.NewType("uint256", "", nil)
	bytesTy, _        = abi.NewType("bytes", "", nil)

	tradeIdsArgs    = abi.Arguments{{Type: bytes32ArrayTy}}
	makePaymentArgs = abi.Arguments{
		{Type: uint64Ty},
		{Type: uint256Ty},
		{Type: bytes32Ty},
		{Type: bytesTy},
	}
)

// TradeIdsHash is keccak256(abi.encode(bytes32[] tradeIds)). The same
// value is carried in the OP_RETURN output of bitcoin settlements.
func TradeIdsHash(tradeIds [][32]byte) ([32]byte, error) {
	encoded, err := tradeIdsArgs.Pack(tradeIds)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// MakePaymentHash binds a payment to the trades it settles:
// keccak256(abi.encode(uint64 signedAt, uint256 startIdx, bytes32 bundleHash, bytes paymentTxId)).
func MakePaymentHash(tradeIds [][32]byte, signedAt uint64, startIdx *big.Int, paymentTxId []byte) ([32]byte, error) {
	bundleHash, err := TradeIdsHash(tradeIds)
	if err != nil {
		return [32]byte{}, err
	}

	encoded, err := makePaymentArgs.Pack(signedAt, startIdx, bundleHash, paymentTxId)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// SettlementTxBytes is the byte form of a payment reference as the solver
// expects it. Hex references (evm hashes, bitcoin txids) are decoded,
// anything else (solana base58 signatures) is taken as utf-8.
func SettlementTxBytes(txId string) []byte {
	raw := strings.TrimPrefix(strings.TrimPrefix(txId, "0x"), "0X")
	if b, err := hex.DecodeString(raw); err == nil && len(raw) > 0 {
		return b
	}
	return []byte(txId)
}

// SettlementTx is the text form of the same reference: hex references get
// a 0x prefix, others pass through.
func SettlementTx(txId string) string {
	raw := strings.TrimPrefix(strings.TrimPrefix(txId, "0x"), "0X")
	if _, err := hex.DecodeString(raw); err == nil && len(raw) > 0 {
		return "0x" + raw
	}
	return txId
}
