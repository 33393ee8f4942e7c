package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/fetch"
)

// AggregatorClient consumes a crypto aggregator feed: spot prices, global
// market data (dominance, stablecoin caps), trending assets, and the
// sentiment index.
type AggregatorClient struct {
	spec    models.ProviderSpec
	fetcher *fetch.Fetcher
	// logical symbol -> aggregator asset id
	assetIDs map[string]string
}

func NewAggregatorClient(spec models.ProviderSpec, f *fetch.Fetcher) *AggregatorClient {
	return &AggregatorClient{
		spec:    spec,
		fetcher: f,
		assetIDs: map[string]string{
			"BTC":  "bitcoin",
			"ETH":  "ethereum",
			"SOL":  "solana",
			"BNB":  "binancecoin",
			"XRP":  "ripple",
			"USDT": "tether",
			"USDC": "usd-coin",
		},
	}
}

func (c *AggregatorClient) ID() string    { return c.spec.ID }
func (c *AggregatorClient) Priority() int { return c.spec.Priority }

func (c *AggregatorClient) Supports(t models.DataType) bool {
	switch t {
	case models.DataTypePrice, models.DataTypeDominance,
		models.DataTypeStablecoinCap, models.DataTypeSentimentIdx:
		return true
	}
	return false
}

func (c *AggregatorClient) assetID(symbol string) string {
	if id, ok := c.assetIDs[symbol]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

func (c *AggregatorClient) Fetch(ctx context.Context, key models.MetricKey) (float64, error) {
	switch key.DataType {
	case models.DataTypePrice:
		return c.price(ctx, key.Symbol)
	case models.DataTypeSentimentIdx:
		return c.fearGreed(ctx)
	case models.DataTypeDominance, models.DataTypeStablecoinCap:
		g, err := c.Global(ctx)
		if err != nil {
			return 0, err
		}
		if key.DataType == models.DataTypeDominance {
			d, ok := g.Dominance[key.Symbol]
			if !ok {
				return 0, fmt.Errorf("%s: no dominance for %s", c.spec.ID, key.Symbol)
			}
			return d, nil
		}
		return g.StablecoinCap, nil
	}
	return 0, fmt.Errorf("%s: unsupported data type %s", c.spec.ID, key.DataType)
}

func (c *AggregatorClient) price(ctx context.Context, symbol string) (float64, error) {
	id := c.assetID(symbol)
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	resp, err := c.fetcher.Do(ctx, c.spec.ID, &fetch.Request{Path: "/simple/price", Query: q, Header: c.authHeader()})
	if err != nil {
		return 0, err
	}

	var out map[string]map[string]interface{}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return 0, fmt.Errorf("%s decode: %w", c.spec.ID, err)
	}
	entry, ok := out[id]
	if !ok {
		return 0, fmt.Errorf("%s: no price for %s", c.spec.ID, id)
	}
	v, err := parseFloat(entry["usd"])
	if err != nil {
		return 0, fmt.Errorf("%s price %s: %w", c.spec.ID, id, err)
	}
	return v, nil
}

func (c *AggregatorClient) fearGreed(ctx context.Context) (float64, error) {
	resp, err := c.fetcher.Do(ctx, c.spec.ID, &fetch.Request{Path: "/fear_greed", Header: c.authHeader()})
	if err != nil {
		return 0, err
	}
	var out struct {
		Data []struct {
			Value interface{} `json:"value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return 0, fmt.Errorf("%s decode: %w", c.spec.ID, err)
	}
	if len(out.Data) == 0 {
		return 0, fmt.Errorf("%s: empty fear/greed response", c.spec.ID)
	}
	return parseFloat(out.Data[0].Value)
}

// GlobalData is the aggregator's market-wide snapshot.
type GlobalData struct {
	TotalMarketCap float64
	StablecoinCap  float64
	Dominance      map[string]float64 // symbol -> percent
}

// Global fetches the market-wide snapshot used for dominance, stablecoin
// supply, and SSR derivation.
func (c *AggregatorClient) Global(ctx context.Context) (*GlobalData, error) {
	resp, err := c.fetcher.Do(ctx, c.spec.ID, &fetch.Request{Path: "/global", Header: c.authHeader()})
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			TotalMarketCap      map[string]float64 `json:"total_market_cap"`
			MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("%s decode: %w", c.spec.ID, err)
	}

	g := &GlobalData{
		TotalMarketCap: out.Data.TotalMarketCap["usd"],
		Dominance:      make(map[string]float64, len(out.Data.MarketCapPercentage)),
	}
	for sym, pct := range out.Data.MarketCapPercentage {
		g.Dominance[strings.ToUpper(sym)] = pct
	}
	// aggregate stablecoin cap from the dominant stablecoins
	for _, sym := range []string{"USDT", "USDC"} {
		if pct, ok := g.Dominance[sym]; ok {
			g.StablecoinCap += g.TotalMarketCap * pct / 100
		}
	}
	return g, nil
}

type trendingResponse struct {
	Coins []struct {
		Item struct {
			ID     string  `json:"id"`
			Name   string  `json:"name"`
			Symbol string  `json:"symbol"`
			Rank   int     `json:"market_cap_rank"`
			Score  float64 `json:"score"`
			Data   struct {
				PriceChange24h map[string]float64 `json:"price_change_percentage_24h"`
				Volume         interface{}        `json:"total_volume_raw"`
				MarketCap      interface{}        `json:"market_cap_raw"`
			} `json:"data"`
		} `json:"item"`
	} `json:"coins"`
}

// Trending returns the aggregator's current trending assets, the input to
// narrative classification.
func (c *AggregatorClient) Trending(ctx context.Context) ([]*models.TrendingItem, error) {
	resp, err := c.fetcher.Do(ctx, c.spec.ID, &fetch.Request{Path: "/search/trending", Header: c.authHeader()})
	if err != nil {
		return nil, err
	}

	var out trendingResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("%s trending decode: %w", c.spec.ID, err)
	}

	items := make([]*models.TrendingItem, 0, len(out.Coins))
	for _, c2 := range out.Coins {
		it := c2.Item
		item := &models.TrendingItem{
			ID:             it.ID,
			Name:           it.Name,
			Symbol:         strings.ToUpper(it.Symbol),
			Rank:           it.Rank,
			Score:          it.Score,
			PriceChange24h: it.Data.PriceChange24h["usd"],
		}
		if v, err := parseFloat(it.Data.Volume); err == nil {
			item.Volume24h = v
		}
		if v, err := parseFloat(it.Data.MarketCap); err == nil {
			item.MarketCap = v
		}
		items = append(items, item)
	}
	return items, nil
}

func (c *AggregatorClient) authHeader() map[string]string {
	if c.spec.APIKey == "" {
		return nil
	}
	return map[string]string{"x-api-key": c.spec.APIKey}
}
