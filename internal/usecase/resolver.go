package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/provider"
	svccache "MarketPulse/internal/service/cache"
	xlogger "MarketPulse/pkg/logger"
)

var (
	// ErrAllProvidersFailed means every provider in the chain failed or
	// returned an invalid payload. Absence must propagate as "no data";
	// the resolver never synthesizes a placeholder value.
	ErrAllProvidersFailed = errors.New("all providers failed")
	ErrNoProviderForType  = errors.New("no provider serves this data type")
)

// Resolution is one resolved metric value with provenance.
type Resolution struct {
	Key          models.MetricKey
	Value        float64
	Source       string
	FromCache    bool
	UsedFallback bool // a lower-priority provider supplied the value
}

// Resolver resolves one logical metric by trying the cache, then an
// ordered provider chain.
type Resolver struct {
	sources []provider.Source
	cache   *svccache.ResponseCache
	logger  *xlogger.Logger
	metrics drepo.Metrics
}

func NewResolver(sources []provider.Source, cache *svccache.ResponseCache, logger *xlogger.Logger, metrics drepo.Metrics) *Resolver {
	return &Resolver{sources: sources, cache: cache, logger: logger, metrics: metrics}
}

// Resolve returns the metric's current value. Cache is checked first; on a
// miss, providers are tried in priority order and the first valid payload
// is cached with its provenance and returned.
func (r *Resolver) Resolve(ctx context.Context, key models.MetricKey) (*Resolution, error) {
	if e := r.cache.Get(key); e != nil {
		r.metrics.RecordCacheHit(string(key.DataType))
		return &Resolution{Key: key, Value: e.Value, Source: e.Source, FromCache: true}, nil
	}
	r.metrics.RecordCacheMiss(string(key.DataType))

	chain := provider.Chain(r.sources, key.DataType)
	if len(chain) == 0 {
		return nil, fmt.Errorf("%s: %w", key, ErrNoProviderForType)
	}

	for i, src := range chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := src.Fetch(ctx, key)
		if err != nil {
			r.logger.Warn("provider fetch failed",
				xlogger.String("provider", src.ID()),
				xlogger.String("metric", key.String()),
				xlogger.Error(err))
			continue
		}
		if err := validateValue(key.DataType, v); err != nil {
			r.logger.Warn("provider payload rejected",
				xlogger.String("provider", src.ID()),
				xlogger.String("metric", key.String()),
				xlogger.Error(err))
			continue
		}
		r.cache.Put(key, v, src.ID())
		return &Resolution{Key: key, Value: v, Source: src.ID(), UsedFallback: i > 0}, nil
	}

	return nil, fmt.Errorf("%s: %w", key, ErrAllProvidersFailed)
}

// validateValue rejects non-numeric and out-of-domain payloads so a broken
// provider response never reaches the store.
func validateValue(t models.DataType, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("non-finite value")
	}
	switch t {
	case models.DataTypePrice, models.DataTypeMarketIndex,
		models.DataTypeStablecoinCap, models.DataTypeOpenInterest:
		if v <= 0 {
			return fmt.Errorf("value %g out of domain (must be positive)", v)
		}
	case models.DataTypeSentimentIdx, models.DataTypeDominance:
		if v < 0 || v > 100 {
			return fmt.Errorf("value %g out of domain [0,100]", v)
		}
	case models.DataTypeTreasuryYield, models.DataTypeInflation:
		if v < -10 || v > 100 {
			return fmt.Errorf("value %g out of domain [-10,100]", v)
		}
	case models.DataTypeFundingRate:
		if v < -1 || v > 1 {
			return fmt.Errorf("value %g out of domain [-1,1]", v)
		}
	}
	return nil
}
