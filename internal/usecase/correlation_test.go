package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketPulse/internal/domain/models"
)

func TestCorrelatePerfectlyCorrelated(t *testing.T) {
	r1 := []float64{0.01, 0.02, -0.01, 0.03, -0.02}
	r2 := []float64{0.02, 0.04, -0.02, 0.06, -0.04}
	assert.InDelta(t, 1.0, Correlate(r1, r2), 1e-9)
}

func TestCorrelateInverse(t *testing.T) {
	r1 := []float64{0.01, 0.02, -0.01, 0.03, -0.02}
	r2 := []float64{-0.01, -0.02, 0.01, -0.03, 0.02}
	assert.InDelta(t, -1.0, Correlate(r1, r2), 1e-9)
}

func TestCorrelateConstantSeriesYieldsZero(t *testing.T) {
	r1 := []float64{0.01, 0.01, 0.01, 0.01}
	r2 := []float64{0.02, -0.01, 0.03, 0.0}
	assert.Equal(t, 0.0, Correlate(r1, r2))
	assert.Equal(t, 0.0, Correlate(r2, r1))
}

func TestCorrelateDegenerateInput(t *testing.T) {
	assert.Equal(t, 0.0, Correlate(nil, nil))
	assert.Equal(t, 0.0, Correlate([]float64{0.1}, []float64{0.1}))
	assert.Equal(t, 0.0, Correlate([]float64{0.1, 0.2}, []float64{0.1}))
}

func seedSeries(store *fakeStore, symbol string, start time.Time, prices []float64) {
	for i, p := range prices {
		store.observations = append(store.observations, &models.Observation{
			DataType: models.DataTypePrice,
			Symbol:   symbol,
			Value:    p,
			Source:   "test",
			Ts:       start.Add(time.Duration(i) * time.Hour),
		})
	}
}

func TestComputeAllPersistsCanonicalPairs(t *testing.T) {
	store := &fakeStore{}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedSeries(store, "ETH", start, []float64{100, 102, 101, 105, 103, 108})
	seedSeries(store, "BTC", start, []float64{50000, 51000, 50500, 52500, 51500, 54000})

	clock := newFakeClock(start.Add(24 * time.Hour))
	e := NewCorrelationEngine(store, testLogger(), clock, 30, 30, 5)

	pairs, err := e.ComputeAll(context.Background(), []string{"ETH", "BTC"})
	require.NoError(t, err)
	require.Len(t, pairs, 1)

	p := pairs[0]
	assert.Equal(t, "BTC", p.Symbol1)
	assert.Equal(t, "ETH", p.Symbol2)
	assert.Equal(t, "pearson", p.Method)
	assert.Equal(t, 5, p.SampleSize)
	assert.InDelta(t, 1.0, p.Coefficient, 1e-9)
	assert.Len(t, store.correlations, 1)
}

func TestComputeAllSkipsSparsePairs(t *testing.T) {
	store := &fakeStore{}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	seedSeries(store, "BTC", start, []float64{50000, 51000, 50500})
	seedSeries(store, "ETH", start, []float64{100, 102, 101})

	clock := newFakeClock(start)
	e := NewCorrelationEngine(store, testLogger(), clock, 30, 30, 5)

	pairs, err := e.ComputeAll(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	assert.Empty(t, pairs)
	assert.Empty(t, store.correlations)
}

func TestComputeAllAlignsByTimestamp(t *testing.T) {
	store := &fakeStore{}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// BTC has a gap at hour 2; only shared buckets may be correlated
	prices := []float64{50000, 51000, 50500, 52500, 51500, 54000, 53000}
	for i, p := range prices {
		if i == 2 {
			continue
		}
		store.observations = append(store.observations, &models.Observation{
			DataType: models.DataTypePrice, Symbol: "BTC", Value: p, Source: "test",
			Ts: start.Add(time.Duration(i) * time.Hour),
		})
	}
	seedSeries(store, "ETH", start, []float64{100, 102, 101, 105, 103, 108, 106})

	clock := newFakeClock(start)
	e := NewCorrelationEngine(store, testLogger(), clock, 30, 30, 5)

	pairs, err := e.ComputeAll(context.Background(), []string{"BTC", "ETH"})
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	// 6 shared buckets make 5 returns
	assert.Equal(t, 5, pairs[0].SampleSize)
}
