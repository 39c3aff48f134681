package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/TEENet-io/pmm-go/btcman/utxo"
	"github.com/sony/gobreaker"
)

const DefaultTimeout = 15 * time.Second

var (
	ErrBadStatus = errors.New("explorer returned non-2xx status")
)

// Esplora talks to an Esplora compatible REST api (blockstream.info,
// mempool.space). Calls go through a circuit breaker so a provider that
// keeps failing is skipped quickly while it recovers.
type Esplora struct {
	name    string
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewEsplora(name, baseURL string, timeout time.Duration) *Esplora {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Esplora{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
	}
}

func (e *Esplora) Name() string {
	return e.name
}

func (e *Esplora) GetUTXOs(ctx context.Context, address string) ([]utxo.ExplorerUTXO, error) {
	body, err := e.do(ctx, http.MethodGet, "/address/"+address+"/utxo", nil)
	if err != nil {
		return nil, err
	}
	var out []utxo.ExplorerUTXO
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%s: decode utxo: %w", e.name, err)
	}
	return out, nil
}

// FeeEstimates maps confirmation target (in blocks) to sat/vB.
func (e *Esplora) FeeEstimates(ctx context.Context) (map[string]float64, error) {
	body, err := e.do(ctx, http.MethodGet, "/fee-estimates", nil)
	if err != nil {
		return nil, err
	}
	out := map[string]float64{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%s: decode fee-estimates: %w", e.name, err)
	}
	return out, nil
}

type txoStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
}

type addressInfo struct {
	ChainStats   txoStats `json:"chain_stats"`
	MempoolStats txoStats `json:"mempool_stats"`
}

// AddressBalance is the confirmed plus unconfirmed balance in satoshi.
func (e *Esplora) AddressBalance(ctx context.Context, address string) (int64, error) {
	body, err := e.do(ctx, http.MethodGet, "/address/"+address, nil)
	if err != nil {
		return 0, err
	}
	var info addressInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return 0, fmt.Errorf("%s: decode address: %w", e.name, err)
	}
	confirmed := info.ChainStats.FundedTxoSum - info.ChainStats.SpentTxoSum
	unconfirmed := info.MempoolStats.FundedTxoSum - info.MempoolStats.SpentTxoSum
	return max(0, confirmed+unconfirmed), nil
}

// Broadcast posts the hex encoded tx and returns the txid reported back.
func (e *Esplora) Broadcast(ctx context.Context, rawTx string) (string, error) {
	body, err := e.do(ctx, http.MethodPost, "/tx", strings.NewReader(rawTx))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (e *Esplora) do(ctx context.Context, method, path string, payload io.Reader) ([]byte, error) {
	out, err := e.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, payload)
		if err != nil {
			return nil, err
		}
		if payload != nil {
			req.Header.Set("Content-Type", "text/plain")
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, fmt.Errorf("%w: %d %s", ErrBadStatus, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return body, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s %s: %w", e.name, method, path, err)
	}
	return out.([]byte), nil
}
