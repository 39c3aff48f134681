// Package solver is the client of the solver backend settlements are
// reported to.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/pmm-go/config"
)

const (
	SubmitSettlementPath = "/v1/market-maker/submit-settlement-tx"
	TokensPath           = "/v1/tokens"
	DefaultTimeout       = 30 * time.Second
)

var (
	ErrBadStatus     = errors.New("solver returned non-2xx status")
	ErrEmptyResponse = errors.New("solver response has no message")
)

// StatusError keeps what the solver answered for diagnostics.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %d %s", ErrBadStatus, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrBadStatus
}

type SubmitSettlementRequest struct {
	TradeIds     []string `json:"trade_ids"`
	PmmId        string   `json:"pmm_id"`
	SettlementTx string   `json:"settlement_tx"`
	Signature    string   `json:"signature"`
	StartIndex   int      `json:"start_index"`
	SignedAt     int64    `json:"signed_at"`
}

type SubmitSettlementResponse struct {
	Message string `json:"message"`
}

// Token is one entry of the backend's token list.
type Token struct {
	TokenId       string `json:"token_id"`
	NetworkId     string `json:"network_id"`
	NetworkName   string `json:"network_name"`
	NetworkType   string `json:"network_type"`
	TokenName     string `json:"token_name"`
	TokenSymbol   string `json:"token_symbol"`
	TokenAddress  string `json:"token_address"`
	TokenDecimals int    `json:"token_decimals"`
}

type tokensEnvelope struct {
	Data struct {
		Tokens []Token `json:"tokens"`
	} `json:"data"`
	TraceId string `json:"trace_id"`
}

type envelope struct {
	Message string                    `json:"message"`
	Data    *SubmitSettlementResponse `json:"data"`
}

type Client struct {
	mu      sync.RWMutex
	baseURL string

	http        *http.Client
	breaker     *gobreaker.CircuitBreaker
	unsubscribe func()
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "solver",
			MaxRequests: 3,
			Interval:    10 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			// a rejected settlement is an answer, not an outage
			IsSuccessful: func(err error) bool {
				var se *StatusError
				return err == nil || (errors.As(err, &se) && se.StatusCode < 500)
			},
		}),
	}
}

// NewClientFromHandle follows the solver url of the active environment.
func NewClientFromHandle(handle *config.Handle, timeout time.Duration) *Client {
	c := NewClient(handle.Get().SolverUrl, timeout)
	c.unsubscribe = handle.Subscribe(func(env config.EnvironmentConfig) {
		c.SetBaseURL(env.SolverUrl)
	})
	return c
}

func (c *Client) SetBaseURL(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(url, "/")
	logger.WithField("url", c.baseURL).Info("solver url switched")
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// SubmitSettlementTx reports a payment. The solver answers either
// {"message": ...} or {"data": {"message": ...}}.
func (c *Client) SubmitSettlementTx(ctx context.Context, req *SubmitSettlementRequest) (*SubmitSettlementResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	out, err := c.do(ctx, http.MethodPost, SubmitSettlementPath, payload)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(out, &env); err != nil {
		return nil, fmt.Errorf("decode solver response: %w", err)
	}
	switch {
	case env.Data != nil && env.Data.Message != "":
		return env.Data, nil
	case env.Message != "":
		return &SubmitSettlementResponse{Message: env.Message}, nil
	}
	return nil, ErrEmptyResponse
}

// GetTokens lists every token the backend trades.
func (c *Client) GetTokens(ctx context.Context) ([]Token, error) {
	out, err := c.do(ctx, http.MethodGet, TokensPath, nil)
	if err != nil {
		return nil, err
	}

	var env tokensEnvelope
	if err := json.Unmarshal(out, &env); err != nil {
		return nil, fmt.Errorf("decode token list: %w", err)
	}
	return env.Data.Tokens, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	url := c.BaseURL() + path
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Accept", "application/json")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
		}
		return respBody, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	return out.([]byte), nil
}
