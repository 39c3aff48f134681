// Reader is a testing facility to read the output of a http reporter.

package reporter

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
)

type HttpReader struct {
	baseURL string
}

// NewHttpReader takes the reporter base url, e.g. http://127.0.0.1:8080
func NewHttpReader(baseURL string) *HttpReader {
	return &HttpReader{baseURL: baseURL}
}

func (hr *HttpReader) GetHello() (string, error) {
	return hr.do(http.MethodGet, ROUTE_HELLO, nil)
}

func (hr *HttpReader) GetTrade(tradeId string) (string, error) {
	return hr.do(http.MethodGet, ROUTE_TRADES+"/"+tradeId, nil)
}

func (hr *HttpReader) GetTradesByStatus(status string) (string, error) {
	return hr.do(http.MethodGet, ROUTE_TRADES+"?status="+url.QueryEscape(status), nil)
}

func (hr *HttpReader) CommitTrade(tradeId string) (string, error) {
	body, err := json.Marshal(commitRequest{TradeId: tradeId})
	if err != nil {
		return "", err
	}
	return hr.do(http.MethodPost, ROUTE_TRADES, body)
}

func (hr *HttpReader) Settle(tradeId string) (string, error) {
	return hr.do(http.MethodPost, ROUTE_TRADES+"/"+tradeId+"/settle", nil)
}

func (hr *HttpReader) GetQueues() (string, error) {
	return hr.do(http.MethodGet, ROUTE_QUEUES, nil)
}

func (hr *HttpReader) do(method, path string, payload []byte) (string, error) {
	req, err := http.NewRequest(method, hr.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	// Read the response body
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
