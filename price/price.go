// Package price looks up USD spot prices.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"
)

const (
	DefaultURL      = "https://api.coingecko.com/api/v3"
	DefaultCacheTTL = 60 * time.Second
	cachePrefix     = "pmm:price:"
	requestTimeout  = 10 * time.Second
)

var (
	ErrUnknownSymbol = errors.New("no price source for symbol")
	ErrNoPrice       = errors.New("price not reported")
)

// coin ids by token symbol
var coinIds = map[string]string{
	"BTC":  "bitcoin",
	"TBTC": "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"USDC": "usd-coin",
	"USDT": "tether",
}

type market struct {
	Id           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	CurrentPrice decimal.Decimal `json:"current_price"`
}

// CoinGecko serves prices from /coins/markets, cached in redis.
type CoinGecko struct {
	baseURL string
	http    *http.Client
	cache   redis.Cmdable
	ttl     time.Duration
}

// NewCoinGecko caches through cache when it is not nil.
func NewCoinGecko(baseURL string, cache redis.Cmdable) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		cache:   cache,
		ttl:     DefaultCacheTTL,
	}
}

// USD returns the spot price of one unit of symbol.
func (c *CoinGecko) USD(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id, ok := coinIds[strings.ToUpper(symbol)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	if c.cache != nil {
		cached, err := c.cache.Get(ctx, cachePrefix+id).Result()
		if err == nil {
			if p, err := decimal.NewFromString(cached); err == nil {
				return p, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			logger.WithField("err", err).Warn("price cache unavailable")
		}
	}

	p, err := c.fetch(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cachePrefix+id, p.String(), c.ttl).Err(); err != nil {
			logger.WithField("err", err).Warn("failed to cache price")
		}
	}
	return p, nil
}

func (c *CoinGecko) fetch(ctx context.Context, id string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("ids", id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/coins/markets?"+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return decimal.Zero, fmt.Errorf("coingecko: status %d: %s", resp.StatusCode, body)
	}

	var markets []market
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return decimal.Zero, fmt.Errorf("coingecko: decode: %w", err)
	}
	for _, m := range markets {
		if m.Id == id {
			return m.CurrentPrice, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrNoPrice, id)
}
