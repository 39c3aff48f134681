package common

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	ErrInvalidBytes32 = errors.New("value does not fit into 32 bytes")
	ErrInvalidHex     = errors.New("invalid hex string")
)

// HexStrToByteSlice decodes a hex string with or without the 0x prefix.
func HexStrToByteSlice(hexStr string) ([]byte, error) {
	b, err := hexutil.Decode(Prepend0xPrefix(strings.TrimSpace(hexStr)))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidHex, hexStr, err)
	}
	return b, nil
}

// HexStrToBytes32 converts a hex string (with/without prefix 0x) to [32]byte.
// Shorter input is left padded.
func HexStrToBytes32(hexStr string) ([32]byte, error) {
	var bytes32 [32]byte
	b, err := HexStrToByteSlice(hexStr)
	if err != nil {
		return bytes32, err
	}
	if len(b) > 32 {
		return bytes32, fmt.Errorf("%w: %d bytes", ErrInvalidBytes32, len(b))
	}
	copy(bytes32[32-len(b):], b)
	return bytes32, nil
}

// StringToBytes32 returns the utf-8 bytes of s right padded with zeros.
// This is how the router stores PMM identifiers.
func StringToBytes32(s string) ([32]byte, error) {
	var b [32]byte
	if len(s) > 32 {
		return b, ErrInvalidBytes32
	}
	copy(b[:], s)
	return b, nil
}

// Bytes32ToString strips the zero padding added by StringToBytes32.
func Bytes32ToString(b [32]byte) string {
	return strings.TrimRight(string(b[:]), "\x00")
}

// DecodeUTF8 turns an on-chain byte string into text, dropping any zero padding.
func DecodeUTF8(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

// BigInt2Bytes32 converts a big int to [32]byte
func BigInt2Bytes32(bigInt *big.Int) [32]byte {
	return [32]byte(ethcommon.LeftPadBytes(bigInt.Bytes(), 32))
}

// Trim 0x or 0X prefix off the string.
func Trim0xPrefix(str string) string {
	s := strings.TrimPrefix(str, "0x")
	return strings.TrimPrefix(s, "0X")
}

func Prepend0xPrefix(str string) string {
	if strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X") {
		return str
	}
	return "0x" + str
}

// RandBytes32 generates [32]byte with random values
func RandBytes32() [32]byte {
	var b [32]byte
	n, err := rand.Read(b[:])

	if err != nil {
		return [32]byte{}
	}
	if n != 32 {
		return [32]byte{}
	}

	return b
}

// Shorten shortens a hex string so that both sides have n characters and
// the rest is replaced with "..."
func Shorten(hexStr string, n int) string {
	str := Trim0xPrefix(hexStr)

	if len(str) <= n*2 {
		return Prepend0xPrefix(str)
	}
	return Prepend0xPrefix(str[:n] + "..." + str[len(str)-n:])
}
