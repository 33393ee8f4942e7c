package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/provider"
)

type fakeTrending struct {
	items  []*models.TrendingItem
	global *provider.GlobalData
	err    error
}

func (f *fakeTrending) Trending(ctx context.Context) ([]*models.TrendingItem, error) {
	return f.items, f.err
}

func (f *fakeTrending) Global(ctx context.Context) (*provider.GlobalData, error) {
	return f.global, f.err
}

type fakeCalendar struct {
	events []*models.EconomicEvent
	err    error
}

func (f *fakeCalendar) Calendar(ctx context.Context) ([]*models.EconomicEvent, error) {
	return f.events, f.err
}

func newTestScheduler(t *testing.T, store *fakeStore, notifier *fakeNotifier, sources []provider.Source, trending TrendingSource, calendar CalendarSource, clock *fakeClock) *Scheduler {
	t.Helper()
	logger := testLogger()
	cache := newTestCache(clock)
	resolver := NewResolver(sources, cache, logger, nopMetrics{})
	correlation := NewCorrelationEngine(store, logger, clock, 30, 30, 5)
	narrative := NewNarrativeClassifier(clock, 5, 0.3)
	alerts := NewAlertEngine(store, notifier, nil, logger, nopMetrics{}, clock, time.Hour, 0)
	cfg := SchedulerConfig{
		CoreCron:      "@hourly",
		ExtendedCron:  "0 6 * * *",
		CycleDeadline: time.Minute,
		GroupLimit:    2,
		CoreSymbols:   []string{"BTC", "ETH"},
		PriceMovePct:  10,
		SSRLow:        2,
		SSRHigh:       20,
	}
	return NewScheduler(cfg, resolver, store, correlation, narrative, alerts, trending, calendar, logger, nopMetrics{}, clock)
}

func TestRunCoreCycleAllMetricsResolved(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	src := &fakeSource{id: "any", priority: 1, value: 50}

	s := newTestScheduler(t, store, notifier, []provider.Source{src}, nil, nil, clock)
	res := s.RunCycle(context.Background(), models.CycleCore)

	assert.Equal(t, models.CycleCore, res.Kind)
	// 2 prices + SPX + VIX + FNG + BTC dominance
	assert.Equal(t, 6, res.Count(models.MetricOK))
	assert.Zero(t, res.Count(models.MetricFailed))
	assert.Len(t, store.observations, 6)
}

func TestRunCycleIsolatesProviderFailure(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	crypto := &fakeSource{id: "crypto", priority: 1, value: 50, types: map[models.DataType]bool{
		models.DataTypePrice:        true,
		models.DataTypeSentimentIdx: true,
		models.DataTypeDominance:    true,
	}}
	market := &fakeSource{id: "market", priority: 1, err: errors.New("upstream 500"), types: map[models.DataType]bool{
		models.DataTypeMarketIndex: true,
	}}

	s := newTestScheduler(t, store, notifier, []provider.Source{crypto, market}, nil, nil, clock)
	res := s.RunCycle(context.Background(), models.CycleCore)

	assert.Equal(t, 4, res.Count(models.MetricOK))
	assert.Equal(t, 2, res.Count(models.MetricFailed))
	assert.Equal(t, models.MetricFailed, res.PerMetric["MARKET_INDEX/SPX"])
	assert.Equal(t, models.MetricOK, res.PerMetric["PRICE/BTC"])
	// failed metrics produce no observations
	assert.Len(t, store.observations, 4)
}

func TestRunCycleRaisesPriceMoveAlert(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)

	// previous BTC observation 15% below the incoming value
	store.observations = append(store.observations, &models.Observation{
		DataType: models.DataTypePrice, Symbol: "BTC", Value: 50000, Source: "test",
		Ts: now.Add(-time.Hour),
	})
	src := &fakeSource{id: "any", priority: 1, value: 57500}

	s := newTestScheduler(t, store, notifier, []provider.Source{src}, nil, nil, clock)
	s.RunCycle(context.Background(), models.CycleCore)

	alerts, err := store.RecentAlerts(context.Background(), 10)
	require.NoError(t, err)

	var move *models.AlertRecord
	for _, a := range alerts {
		if a.Type == models.AlertPriceMove && a.Metric == "PRICE/BTC" {
			move = a
		}
	}
	require.NotNil(t, move)
	assert.Equal(t, models.SeverityWarning, move.Severity)
	assert.InDelta(t, 15.0, move.Value, 0.01)
}

func TestRunExtendedCycleDerivesSSR(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	src := &fakeSource{id: "any", priority: 1, value: 4.2}

	trending := &fakeTrending{global: &provider.GlobalData{
		TotalMarketCap: 2e12,
		StablecoinCap:  150e9,
		Dominance:      map[string]float64{"BTC": 60},
	}}

	s := newTestScheduler(t, store, notifier, []provider.Source{src}, trending, nil, clock)
	s.RunCycle(context.Background(), models.CycleExtended)

	ssr, err := store.Latest(context.Background(), models.MetricKey{DataType: models.DataTypeSSR, Symbol: "BTC"})
	require.NoError(t, err)
	require.NotNil(t, ssr)
	assert.InDelta(t, 8.0, ssr.Value, 1e-9)
	assert.Equal(t, "derived", ssr.Source)
	// 8 is inside the normal band, no extreme alert
	assert.Zero(t, store.alertCount())
}

func TestRunExtendedCycleEventAlerts(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	src := &fakeSource{id: "any", priority: 1, value: 4.2}

	calendar := &fakeCalendar{events: []*models.EconomicEvent{
		{ID: "cpi-2026-03", Title: "CPI release", Impact: "high", ScheduledAt: now.Add(24 * time.Hour)},
		{ID: "minor", Title: "minor print", Impact: "low", ScheduledAt: now.Add(24 * time.Hour)},
		{ID: "past", Title: "old event", Impact: "high", ScheduledAt: now.Add(-time.Hour)},
		{ID: "far", Title: "far out", Impact: "high", ScheduledAt: now.Add(30 * 24 * time.Hour)},
	}}

	s := newTestScheduler(t, store, notifier, []provider.Source{src}, nil, calendar, clock)
	s.RunCycle(context.Background(), models.CycleExtended)

	alerts, err := store.RecentAlerts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertEconomicEvent, alerts[0].Type)
	assert.Equal(t, "cpi-2026-03", alerts[0].EventID)
	assert.Equal(t, 1, notifier.count())
}

func TestDeriveSSR(t *testing.T) {
	ssr, ok := deriveSSR(&provider.GlobalData{
		TotalMarketCap: 2e12,
		StablecoinCap:  150e9,
		Dominance:      map[string]float64{"BTC": 60},
	})
	require.True(t, ok)
	assert.InDelta(t, 8.0, ssr, 1e-9)

	_, ok = deriveSSR(nil)
	assert.False(t, ok)
	_, ok = deriveSSR(&provider.GlobalData{TotalMarketCap: 2e12, StablecoinCap: 0})
	assert.False(t, ok)
	_, ok = deriveSSR(&provider.GlobalData{TotalMarketCap: 2e12, StablecoinCap: 1e9, Dominance: map[string]float64{}})
	assert.False(t, ok)
}

func TestMetricGroups(t *testing.T) {
	assert.Equal(t, "crypto", metricGroup(models.DataTypePrice))
	assert.Equal(t, "market", metricGroup(models.DataTypeMarketIndex))
	assert.Equal(t, "economic", metricGroup(models.DataTypeTreasuryYield))
	assert.Equal(t, "exchange", metricGroup(models.DataTypeFundingRate))
}
