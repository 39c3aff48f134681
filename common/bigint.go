package common

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
)

const bigIntTag = "$bigint"

var (
	ErrInvalidBigInt = errors.New("invalid bigint encoding")
)

// BigInt is a *big.Int that crosses JSON boundaries as {"$bigint":"<decimal>"},
// so that values wider than 53 bits survive every consumer untouched.
// Plain JSON numbers and decimal strings are accepted on decode.
type BigInt struct {
	*big.Int
}

func NewBigInt(v *big.Int) *BigInt {
	if v == nil {
		return &BigInt{}
	}
	return &BigInt{new(big.Int).Set(v)}
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	if b.Int == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]string{bigIntTag: b.Int.String()})
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		b.Int = nil
		return nil
	}

	var raw string
	switch data[0] {
	case '{':
		var tagged map[string]string
		if err := json.Unmarshal(data, &tagged); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBigInt, err)
		}
		v, ok := tagged[bigIntTag]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrInvalidBigInt, bigIntTag)
		}
		raw = v
	case '"':
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBigInt, err)
		}
	default:
		raw = string(data)
	}

	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidBigInt, raw)
	}
	b.Int = v
	return nil
}
