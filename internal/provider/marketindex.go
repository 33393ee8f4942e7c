package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/fetch"
)

// MarketIndexClient consumes a generic market-index quote feed
// (equity indices, volatility gauges).
type MarketIndexClient struct {
	spec    models.ProviderSpec
	fetcher *fetch.Fetcher
}

func NewMarketIndexClient(spec models.ProviderSpec, f *fetch.Fetcher) *MarketIndexClient {
	return &MarketIndexClient{spec: spec, fetcher: f}
}

func (c *MarketIndexClient) ID() string    { return c.spec.ID }
func (c *MarketIndexClient) Priority() int { return c.spec.Priority }

func (c *MarketIndexClient) Supports(t models.DataType) bool {
	return t == models.DataTypeMarketIndex
}

// quote shape: {"symbol":"SPX","price":5123.45,"change":-0.4}
type indexQuote struct {
	Symbol string      `json:"symbol"`
	Price  interface{} `json:"price"`
}

func (c *MarketIndexClient) Fetch(ctx context.Context, key models.MetricKey) (float64, error) {
	q := url.Values{}
	q.Set("symbol", key.Symbol)
	if c.spec.APIKey != "" {
		q.Set("apikey", c.spec.APIKey)
	}
	resp, err := c.fetcher.Do(ctx, c.spec.ID, &fetch.Request{Path: "/v1/quote", Query: q})
	if err != nil {
		return 0, err
	}

	var out indexQuote
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return 0, fmt.Errorf("%s decode: %w", c.spec.ID, err)
	}
	v, err := parseFloat(out.Price)
	if err != nil {
		return 0, fmt.Errorf("%s quote %s: %w", c.spec.ID, key.Symbol, err)
	}
	return v, nil
}
