package signature

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/TEENet-io/pmm-go/etherman"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	DefaultDomainName    = "BitFi"
	DefaultDomainVersion = "Version 1"

	makePaymentPrimaryType = "MakePayment"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
)

var makePaymentTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	makePaymentPrimaryType: {
		{Name: "infoHash", Type: "bytes32"},
	},
}

func DefaultDomain(chainId *big.Int, verifyingContract ethcommon.Address) *etherman.EIP712Domain {
	return &etherman.EIP712Domain{
		Name:              DefaultDomainName,
		Version:           DefaultDomainVersion,
		ChainId:           chainId,
		VerifyingContract: verifyingContract,
	}
}

// MakePaymentDigest is the EIP-712 digest of MakePayment{infoHash} under domain.
func MakePaymentDigest(domain *etherman.EIP712Domain, infoHash [32]byte) ([]byte, error) {
	typed := apitypes.TypedData{
		Types:       makePaymentTypes,
		PrimaryType: makePaymentPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainId),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"infoHash": hexutil.Encode(infoHash[:]),
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typed)
	return digest, err
}

// SignMakePayment returns the 65 byte r||s||v signature, v in {27, 28}.
func SignMakePayment(key *ecdsa.PrivateKey, domain *etherman.EIP712Domain, infoHash [32]byte) ([]byte, error) {
	digest, err := MakePaymentDigest(domain, infoHash)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverMakePayment returns the address that produced sig.
func RecoverMakePayment(domain *etherman.EIP712Domain, infoHash [32]byte, sig []byte) (ethcommon.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return ethcommon.Address{}, ErrInvalidSignature
	}

	digest, err := MakePaymentDigest(domain, infoHash)
	if err != nil {
		return ethcommon.Address{}, err
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return ethcommon.Address{}, errors.Join(ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
