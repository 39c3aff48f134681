package transfer

import (
	"fmt"
	"strings"

	"github.com/TEENet-io/pmm-go/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

type DescriptorEncoding string

const (
	// every field is utf-8 text
	EncodingUTF8 DescriptorEncoding = "utf8"
	// 20 byte fields are raw evm addresses, the rest is utf-8 text
	EncodingTyped DescriptorEncoding = "typed"
)

func ParseDescriptorEncoding(s string) (DescriptorEncoding, error) {
	switch e := DescriptorEncoding(strings.ToLower(strings.TrimSpace(s))); e {
	case "", EncodingUTF8:
		return EncodingUTF8, nil
	case EncodingTyped:
		return EncodingTyped, nil
	default:
		return "", fmt.Errorf("unknown descriptor encoding %q", s)
	}
}

// ChainDescriptor is the decoded (address, network id, token address)
// triple the router stores per side of a trade.
type ChainDescriptor struct {
	Address      string
	NetworkId    string
	TokenAddress string
}

func DecodeDescriptor(raw [3][]byte, enc DescriptorEncoding) *ChainDescriptor {
	field := func(b []byte) string {
		if enc == EncodingTyped && len(b) == ethcommon.AddressLength {
			return ethcommon.BytesToAddress(b).Hex()
		}
		return common.DecodeUTF8(b)
	}
	return &ChainDescriptor{
		Address:      field(raw[0]),
		NetworkId:    common.DecodeUTF8(raw[1]),
		TokenAddress: field(raw[2]),
	}
}
