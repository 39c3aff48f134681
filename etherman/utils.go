package etherman

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

func StringToPrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

func GenPrivateKeys(n int) []*ecdsa.PrivateKey {
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		keys[i], _ = crypto.GenerateKey()
	}
	return keys
}

// WrapRevert appends the decoded Error(string) reason carried by a node
// error, if any.
func WrapRevert(err error) error {
	if err == nil {
		return nil
	}

	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return err
	}
	data, ok := dataErr.ErrorData().(string)
	if !ok {
		return err
	}
	raw, decodeErr := hexutil.Decode(data)
	if decodeErr != nil {
		return err
	}
	reason, unpackErr := abi.UnpackRevert(raw)
	if unpackErr != nil {
		return err
	}
	return fmt.Errorf("%w: %s", err, reason)
}
