package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/fetch"
)

// ExchangeClient consumes an exchange REST ticker feed. It is the last
// fallback for spot prices when the aggregator is down.
type ExchangeClient struct {
	spec    models.ProviderSpec
	fetcher *fetch.Fetcher
	quote   string // quote currency suffix for pair symbols
}

func NewExchangeClient(spec models.ProviderSpec, f *fetch.Fetcher) *ExchangeClient {
	return &ExchangeClient{spec: spec, fetcher: f, quote: "USDT"}
}

func (c *ExchangeClient) ID() string    { return c.spec.ID }
func (c *ExchangeClient) Priority() int { return c.spec.Priority }

func (c *ExchangeClient) Supports(t models.DataType) bool {
	return t == models.DataTypePrice || t == models.DataTypeFundingRate || t == models.DataTypeOpenInterest
}

func (c *ExchangeClient) pair(symbol string) string { return symbol + c.quote }

func (c *ExchangeClient) Fetch(ctx context.Context, key models.MetricKey) (float64, error) {
	var path string
	field := "price"
	switch key.DataType {
	case models.DataTypePrice:
		path = "/api/v3/ticker/price"
	case models.DataTypeFundingRate:
		path = "/fapi/v1/premiumIndex"
		field = "lastFundingRate"
	case models.DataTypeOpenInterest:
		path = "/fapi/v1/openInterest"
		field = "openInterest"
	default:
		return 0, fmt.Errorf("%s: unsupported data type %s", c.spec.ID, key.DataType)
	}

	q := url.Values{}
	q.Set("symbol", c.pair(key.Symbol))
	resp, err := c.fetcher.Do(ctx, c.spec.ID, &fetch.Request{Path: path, Query: q})
	if err != nil {
		return 0, err
	}

	var out map[string]interface{}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return 0, fmt.Errorf("%s decode: %w", c.spec.ID, err)
	}
	v, err := parseFloat(out[field])
	if err != nil {
		return 0, fmt.Errorf("%s %s %s: %w", c.spec.ID, field, key.Symbol, err)
	}
	return v, nil
}
