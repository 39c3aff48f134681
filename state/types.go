package state

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/TEENet-io/pmm-go/common"
)

var (
	ErrInvalidTradeId = errors.New("trade id must be 32 bytes hex")
)

type TradeStatus string

const (
	TradeCommitted   TradeStatus = "COMMITTED"
	TradeSettling    TradeStatus = "SETTLING"
	TradePaymentSent TradeStatus = "PAYMENT_SENT"
	TradeSubmitted   TradeStatus = "SUBMITTED"
	TradeFailed      TradeStatus = "FAILED"
)

type Trade struct {
	TradeId       string // 0x prefixed 32-byte hex
	Status        TradeStatus
	PaymentTxId   string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type sqlTrade struct {
	TradeId       string
	Status        string
	PaymentTxId   sql.NullString
	FailureReason sql.NullString
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (t *sqlTrade) decode() *Trade {
	return &Trade{
		TradeId:       t.TradeId,
		Status:        TradeStatus(t.Status),
		PaymentTxId:   t.PaymentTxId.String,
		FailureReason: t.FailureReason.String,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

type NetworkType string

const (
	NetworkEVM    NetworkType = "EVM"
	NetworkBTC    NetworkType = "BTC"
	NetworkTBTC   NetworkType = "TBTC"
	NetworkSolana NetworkType = "SOLANA"
)

// NativeToken is the tokenAddress of a chain's own coin.
const NativeToken = "native"

type Token struct {
	NetworkId     string
	NetworkType   NetworkType
	TokenAddress  string
	TokenSymbol   string
	TokenDecimals int
}

func (t *Token) IsNative() bool {
	return strings.EqualFold(t.TokenAddress, NativeToken)
}

// NormalizeTradeId lower-cases a trade id and makes sure it has the 0x prefix.
func NormalizeTradeId(tradeId string) string {
	s := strings.ToLower(strings.TrimSpace(tradeId))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return s
}

// ParseTradeId normalizes tradeId and rejects anything but 32 bytes of hex.
func ParseTradeId(tradeId string) (string, error) {
	id := NormalizeTradeId(tradeId)
	b, err := common.HexStrToByteSlice(id)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTradeId, err)
	}
	if len(b) != 32 {
		return "", fmt.Errorf("%w: got %d bytes", ErrInvalidTradeId, len(b))
	}
	return id, nil
}
