package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/fetch"
	xutil "MarketPulse/pkg/util"
)

// TreasuryClient consumes an economic-series feed (FRED-style): treasury
// yields, inflation prints, and the release calendar.
type TreasuryClient struct {
	spec    models.ProviderSpec
	fetcher *fetch.Fetcher
}

func NewTreasuryClient(spec models.ProviderSpec, f *fetch.Fetcher) *TreasuryClient {
	return &TreasuryClient{spec: spec, fetcher: f}
}

func (c *TreasuryClient) ID() string    { return c.spec.ID }
func (c *TreasuryClient) Priority() int { return c.spec.Priority }

func (c *TreasuryClient) Supports(t models.DataType) bool {
	return t == models.DataTypeTreasuryYield || t == models.DataTypeInflation
}

// seriesID maps a logical symbol to the provider's series identifier.
func seriesID(key models.MetricKey) string {
	switch key.DataType {
	case models.DataTypeTreasuryYield:
		switch key.Symbol {
		case "2Y":
			return "DGS2"
		case "10Y":
			return "DGS10"
		case "30Y":
			return "DGS30"
		}
	case models.DataTypeInflation:
		return "CPIAUCSL"
	}
	return key.Symbol
}

type seriesResponse struct {
	Observations []struct {
		Date  string      `json:"date"`
		Value interface{} `json:"value"`
	} `json:"observations"`
}

func (c *TreasuryClient) Fetch(ctx context.Context, key models.MetricKey) (float64, error) {
	q := url.Values{}
	q.Set("series_id", seriesID(key))
	q.Set("sort_order", "desc")
	q.Set("limit", "1")
	q.Set("file_type", "json")
	if c.spec.APIKey != "" {
		q.Set("api_key", c.spec.APIKey)
	}
	resp, err := c.fetcher.Do(ctx, c.spec.ID, &fetch.Request{Path: "/series/observations", Query: q})
	if err != nil {
		return 0, err
	}

	var out seriesResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return 0, fmt.Errorf("%s decode: %w", c.spec.ID, err)
	}
	if len(out.Observations) == 0 {
		return 0, fmt.Errorf("%s series %s: no observations", c.spec.ID, seriesID(key))
	}
	v, err := parseFloat(out.Observations[0].Value)
	if err != nil {
		return 0, fmt.Errorf("%s series %s: %w", c.spec.ID, seriesID(key), err)
	}
	return v, nil
}

type calendarResponse struct {
	Releases []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Country string `json:"country"`
		Impact  string `json:"impact"`
		Date    string `json:"date"` // RFC3339 or unix seconds
	} `json:"releases"`
}

// Calendar returns upcoming scheduled economic releases.
func (c *TreasuryClient) Calendar(ctx context.Context) ([]*models.EconomicEvent, error) {
	q := url.Values{}
	q.Set("file_type", "json")
	if c.spec.APIKey != "" {
		q.Set("api_key", c.spec.APIKey)
	}
	resp, err := c.fetcher.Do(ctx, c.spec.ID, &fetch.Request{Path: "/releases/dates", Query: q})
	if err != nil {
		return nil, err
	}

	var out calendarResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("%s calendar decode: %w", c.spec.ID, err)
	}

	events := make([]*models.EconomicEvent, 0, len(out.Releases))
	for _, r := range out.Releases {
		at, ok := xutil.ParseTime(r.Date)
		if !ok {
			continue // malformed rows are skipped, not fatal
		}
		events = append(events, &models.EconomicEvent{
			ID:          r.ID,
			Title:       r.Name,
			Country:     r.Country,
			Impact:      r.Impact,
			ScheduledAt: at,
		})
	}
	return events, nil
}
