package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	xlogger "MarketPulse/pkg/logger"
)

// CorrelationEngine computes pairwise return correlations from stored
// price series and upserts them into the store.
type CorrelationEngine struct {
	store      drepo.Store
	logger     *xlogger.Logger
	clock      drepo.Clock
	lookback   int
	periodDays int
	minPoints  int
}

func NewCorrelationEngine(store drepo.Store, logger *xlogger.Logger, clock drepo.Clock, lookback, periodDays, minPoints int) *CorrelationEngine {
	if clock == nil {
		clock = drepo.SystemClock{}
	}
	return &CorrelationEngine{
		store:      store,
		logger:     logger,
		clock:      clock,
		lookback:   lookback,
		periodDays: periodDays,
		minPoints:  minPoints,
	}
}

// ComputeAll computes the correlation for every unordered symbol pair and
// persists the results. Pairs with too few aligned observations are
// skipped, not errored.
func (e *CorrelationEngine) ComputeAll(ctx context.Context, symbols []string) ([]*models.CorrelationPair, error) {
	series := make(map[string][]*models.Observation, len(symbols))
	for _, sym := range symbols {
		obs, err := e.store.Series(ctx, models.MetricKey{DataType: models.DataTypePrice, Symbol: sym}, e.lookback)
		if err != nil {
			return nil, fmt.Errorf("load series %s: %w", sym, err)
		}
		series[sym] = obs
	}

	now := e.clock.Now()
	var pairs []*models.CorrelationPair
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			s1, s2 := models.CanonicalPair(symbols[i], symbols[j])
			r1, r2 := alignedReturns(series[s1], series[s2])
			if len(r1) < e.minPoints {
				e.logger.Debug("correlation pair skipped, too few aligned points",
					xlogger.String("pair", s1+"/"+s2),
					xlogger.Int("points", len(r1)))
				continue
			}
			pairs = append(pairs, &models.CorrelationPair{
				Symbol1:     s1,
				Symbol2:     s2,
				Coefficient: Correlate(r1, r2),
				PeriodDays:  e.periodDays,
				SampleSize:  len(r1),
				Method:      "pearson",
				ComputedAt:  now,
			})
		}
	}

	if len(pairs) > 0 {
		if err := e.store.UpsertCorrelations(ctx, pairs); err != nil {
			return nil, fmt.Errorf("upsert correlations: %w", err)
		}
	}
	return pairs, nil
}

// alignedReturns joins two observation series on their hour bucket and
// computes simple returns over the shared timestamps. Joining on time
// rather than array position keeps series with gaps or different start
// times from being correlated against misaligned samples.
func alignedReturns(a, b []*models.Observation) ([]float64, []float64) {
	bByBucket := make(map[time.Time]float64, len(b))
	for _, o := range b {
		bByBucket[o.Ts.Truncate(time.Hour)] = o.Value
	}

	type pricePair struct {
		ts     time.Time
		pa, pb float64
	}
	joined := make([]pricePair, 0, len(a))
	for _, o := range a {
		bucket := o.Ts.Truncate(time.Hour)
		if pb, ok := bByBucket[bucket]; ok {
			joined = append(joined, pricePair{ts: bucket, pa: o.Value, pb: pb})
		}
	}
	sort.Slice(joined, func(i, j int) bool { return joined[i].ts.Before(joined[j].ts) })

	var ra, rb []float64
	for i := 1; i < len(joined); i++ {
		if joined[i-1].pa == 0 || joined[i-1].pb == 0 {
			continue
		}
		ra = append(ra, (joined[i].pa-joined[i-1].pa)/joined[i-1].pa)
		rb = append(rb, (joined[i].pb-joined[i-1].pb)/joined[i-1].pb)
	}
	return ra, rb
}

// Correlate is the Pearson correlation of two equal-length return series.
// A zero standard deviation on either side yields 0, never NaN.
func Correlate(r1, r2 []float64) float64 {
	if len(r1) < 2 || len(r1) != len(r2) {
		return 0
	}
	if stat.StdDev(r1, nil) == 0 || stat.StdDev(r2, nil) == 0 {
		return 0
	}
	c := stat.Correlation(r1, r2, nil)
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return c
}
