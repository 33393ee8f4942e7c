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

func TestResolveFallbackChain(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	primary := &fakeSource{id: "primary", priority: 1, err: errors.New("429 too many requests")}
	secondary := &fakeSource{id: "secondary", priority: 2, value: 68000}

	r := NewResolver([]provider.Source{secondary, primary}, newTestCache(clock), testLogger(), nopMetrics{})

	res, err := r.Resolve(context.Background(), models.MetricKey{DataType: models.DataTypePrice, Symbol: "BTC"})
	require.NoError(t, err)
	assert.Equal(t, 68000.0, res.Value)
	assert.Equal(t, "secondary", res.Source)
	assert.True(t, res.UsedFallback)
	assert.False(t, res.FromCache)
	assert.Equal(t, 1, primary.callCount())
}

func TestResolveCachedValueSkipsProviders(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	src := &fakeSource{id: "primary", priority: 1, value: 68000}
	cache := newTestCache(clock)
	r := NewResolver([]provider.Source{src}, cache, testLogger(), nopMetrics{})
	key := models.MetricKey{DataType: models.DataTypePrice, Symbol: "BTC"}

	_, err := r.Resolve(context.Background(), key)
	require.NoError(t, err)

	res, err := r.Resolve(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, "primary", res.Source)
	assert.Equal(t, 1, src.callCount())
}

func TestResolveAllProvidersFailed(t *testing.T) {
	clock := newFakeClock(time.Now())
	a := &fakeSource{id: "a", priority: 1, err: errors.New("boom")}
	b := &fakeSource{id: "b", priority: 2, err: errors.New("boom")}
	r := NewResolver([]provider.Source{a, b}, newTestCache(clock), testLogger(), nopMetrics{})

	_, err := r.Resolve(context.Background(), models.MetricKey{DataType: models.DataTypePrice, Symbol: "BTC"})
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestResolveNoProviderForType(t *testing.T) {
	clock := newFakeClock(time.Now())
	src := &fakeSource{id: "a", priority: 1, types: map[models.DataType]bool{models.DataTypePrice: true}}
	r := NewResolver([]provider.Source{src}, newTestCache(clock), testLogger(), nopMetrics{})

	_, err := r.Resolve(context.Background(), models.MetricKey{DataType: models.DataTypeTreasuryYield, Symbol: "10Y"})
	assert.ErrorIs(t, err, ErrNoProviderForType)
}

func TestResolveRejectsInvalidPayload(t *testing.T) {
	clock := newFakeClock(time.Now())
	// negative price from primary, valid from the fallback
	bad := &fakeSource{id: "bad", priority: 1, value: -5}
	good := &fakeSource{id: "good", priority: 2, value: 42}
	r := NewResolver([]provider.Source{bad, good}, newTestCache(clock), testLogger(), nopMetrics{})

	res, err := r.Resolve(context.Background(), models.MetricKey{DataType: models.DataTypePrice, Symbol: "BTC"})
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.Value)
	assert.Equal(t, "good", res.Source)
	assert.True(t, res.UsedFallback)
}

func TestResolveThreeProviderChainCachesUntilExpiry(t *testing.T) {
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	a := &fakeSource{id: "a", priority: 1, err: errors.New("timeout")}
	b := &fakeSource{id: "b", priority: 2, err: errors.New("503 unavailable")}
	c := &fakeSource{id: "c", priority: 3, value: 42.0}
	cache := newTestCache(clock)
	r := NewResolver([]provider.Source{a, b, c}, cache, testLogger(), nopMetrics{})
	key := models.MetricKey{DataType: models.DataTypePrice, Symbol: "BTC"}

	// first two providers fail, the last one answers
	res, err := r.Resolve(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 42.0, res.Value)
	assert.Equal(t, "c", res.Source)
	assert.True(t, res.UsedFallback)
	assert.False(t, res.FromCache)

	// re-resolve is served from cache without touching any provider
	res, err = r.Resolve(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Equal(t, 42.0, res.Value)
	assert.Equal(t, "c", res.Source)
	assert.Equal(t, 1, a.callCount())
	assert.Equal(t, 1, b.callCount())
	assert.Equal(t, 1, c.callCount())

	// past the TTL the chain is walked again
	clock.Advance(cache.TTLFor(models.DataTypePrice) + time.Second)
	res, err = r.Resolve(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, "c", res.Source)
	assert.Equal(t, 2, c.callCount())
}

func TestValidateValueDomains(t *testing.T) {
	assert.Error(t, validateValue(models.DataTypePrice, 0))
	assert.Error(t, validateValue(models.DataTypeSentimentIdx, 101))
	assert.NoError(t, validateValue(models.DataTypeSentimentIdx, 100))
	assert.Error(t, validateValue(models.DataTypeFundingRate, 1.5))
	assert.NoError(t, validateValue(models.DataTypeFundingRate, -0.01))
	assert.NoError(t, validateValue(models.DataTypeTreasuryYield, 4.5))
}
