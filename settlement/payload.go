package settlement

import (
	"encoding/json"
	"fmt"

	"github.com/TEENet-io/pmm-go/common"
	"github.com/TEENet-io/pmm-go/state"
)

// TransferPayload is the body of a process_transfer job.
type TransferPayload struct {
	TradeId    string `json:"tradeId"`
	RetryCount int    `json:"retryCount,omitempty"`
}

// SubmitPayload is the body of a process_submit job. Amount is what was
// paid, kept for the record; it is tagged so that 256 bit values survive.
type SubmitPayload struct {
	TradeId     string         `json:"tradeId"`
	PaymentTxId string         `json:"paymentTxId"`
	Amount      *common.BigInt `json:"amount,omitempty"`
}

func decodeTransfer(data []byte) (*TransferPayload, error) {
	var p TransferPayload
	err := json.Unmarshal(data, &p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if p.RetryCount < 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadPayload, data)
	}
	if p.TradeId, err = state.ParseTradeId(p.TradeId); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return &p, nil
}

func decodeSubmit(data []byte) (*SubmitPayload, error) {
	var p SubmitPayload
	err := json.Unmarshal(data, &p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if p.PaymentTxId == "" {
		return nil, fmt.Errorf("%w: %s", ErrBadPayload, data)
	}
	if p.TradeId, err = state.ParseTradeId(p.TradeId); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return &p, nil
}
