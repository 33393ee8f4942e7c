package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/provider"
	xlogger "MarketPulse/pkg/logger"
)

// TrendingSource is the aggregator surface the derived stage needs.
type TrendingSource interface {
	Trending(ctx context.Context) ([]*models.TrendingItem, error)
	Global(ctx context.Context) (*provider.GlobalData, error)
}

// CalendarSource lists upcoming scheduled economic events.
type CalendarSource interface {
	Calendar(ctx context.Context) ([]*models.EconomicEvent, error)
}

// SchedulerConfig carries the cycle cadence and alert thresholds.
type SchedulerConfig struct {
	CoreCron        string
	ExtendedCron    string
	MaintenanceCron string
	CycleDeadline   time.Duration
	GroupLimit      int
	CoreSymbols     []string
	CorrSymbols     []string
	PriceMovePct    float64
	SSRLow          float64
	SSRHigh         float64
}

// Scheduler runs the periodic core and extended collection cycles. Each
// cycle fans out bounded-concurrency fetches per provider group, tolerates
// partial failure, and gates derived statistics behind the fan-out barrier.
type Scheduler struct {
	cfg         SchedulerConfig
	resolver    *Resolver
	store       drepo.Store
	correlation *CorrelationEngine
	narrative   *NarrativeClassifier
	alerts      *AlertEngine
	trending    TrendingSource
	calendar    CalendarSource
	logger      *xlogger.Logger
	metrics     drepo.Metrics
	clock       drepo.Clock

	cron *cron.Cron

	mu   sync.Mutex
	last *models.CycleResult
}

func NewScheduler(
	cfg SchedulerConfig,
	resolver *Resolver,
	store drepo.Store,
	correlation *CorrelationEngine,
	narrative *NarrativeClassifier,
	alerts *AlertEngine,
	trending TrendingSource,
	calendar CalendarSource,
	logger *xlogger.Logger,
	metrics drepo.Metrics,
	clock drepo.Clock,
) *Scheduler {
	if cfg.GroupLimit <= 0 {
		cfg.GroupLimit = 4
	}
	if cfg.CycleDeadline <= 0 {
		cfg.CycleDeadline = 5 * time.Minute
	}
	if clock == nil {
		clock = drepo.SystemClock{}
	}
	return &Scheduler{
		cfg:         cfg,
		resolver:    resolver,
		store:       store,
		correlation: correlation,
		narrative:   narrative,
		alerts:      alerts,
		trending:    trending,
		calendar:    calendar,
		logger:      logger,
		metrics:     metrics,
		clock:       clock,
	}
}

// Start registers the cron entries and begins scheduling. Cycles run on
// their own goroutines; a slow cycle never delays the next trigger.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.CoreCron, func() { s.runLogged(ctx, models.CycleCore) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.cfg.ExtendedCron, func() { s.runLogged(ctx, models.CycleExtended) }); err != nil {
		return err
	}
	if s.cfg.MaintenanceCron != "" {
		if _, err := s.cron.AddFunc(s.cfg.MaintenanceCron, func() {
			if err := s.alerts.Maintain(ctx); err != nil {
				s.logger.Error("alert maintenance failed", xlogger.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		xlogger.String("core", s.cfg.CoreCron),
		xlogger.String("extended", s.cfg.ExtendedCron))
	return nil
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// LastResult returns the most recent cycle result, or nil before the
// first cycle has run.
func (s *Scheduler) LastResult() *models.CycleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) runLogged(ctx context.Context, kind models.CycleKind) {
	res := s.RunCycle(ctx, kind)
	s.mu.Lock()
	s.last = res
	s.mu.Unlock()
	s.logger.Info("collection cycle finished",
		xlogger.String("cycle", res.CycleID),
		xlogger.String("kind", string(res.Kind)),
		xlogger.Duration("took", res.Duration),
		xlogger.Int("ok", res.Count(models.MetricOK)),
		xlogger.Int("fallback", res.Count(models.MetricUsedFallback)),
		xlogger.Int("cached", res.Count(models.MetricUsedCache)),
		xlogger.Int("failed", res.Count(models.MetricFailed)))
}

// coreMetrics is the high-frequency set: prices, indices, sentiment.
func (s *Scheduler) coreMetrics() []models.MetricKey {
	keys := make([]models.MetricKey, 0, len(s.cfg.CoreSymbols)+4)
	for _, sym := range s.cfg.CoreSymbols {
		keys = append(keys, models.MetricKey{DataType: models.DataTypePrice, Symbol: sym})
	}
	keys = append(keys,
		models.MetricKey{DataType: models.DataTypeMarketIndex, Symbol: "SPX"},
		models.MetricKey{DataType: models.DataTypeMarketIndex, Symbol: "VIX"},
		models.MetricKey{DataType: models.DataTypeSentimentIdx, Symbol: "FNG"},
		models.MetricKey{DataType: models.DataTypeDominance, Symbol: "BTC"},
	)
	return keys
}

// extendedMetrics is the low-frequency set: rates, inflation, derivatives,
// stablecoin supply.
func (s *Scheduler) extendedMetrics() []models.MetricKey {
	return []models.MetricKey{
		{DataType: models.DataTypeTreasuryYield, Symbol: "2Y"},
		{DataType: models.DataTypeTreasuryYield, Symbol: "10Y"},
		{DataType: models.DataTypeTreasuryYield, Symbol: "30Y"},
		{DataType: models.DataTypeInflation, Symbol: "CPI"},
		{DataType: models.DataTypeFundingRate, Symbol: "BTC"},
		{DataType: models.DataTypeFundingRate, Symbol: "ETH"},
		{DataType: models.DataTypeOpenInterest, Symbol: "BTC"},
		{DataType: models.DataTypeStablecoinCap, Symbol: "TOTAL"},
	}
}

// metricGroup maps a data type to its provider concurrency group so the
// fan-out never hammers one provider family across metrics.
func metricGroup(t models.DataType) string {
	switch t {
	case models.DataTypeMarketIndex:
		return "market"
	case models.DataTypeTreasuryYield, models.DataTypeInflation:
		return "economic"
	case models.DataTypeFundingRate, models.DataTypeOpenInterest:
		return "exchange"
	default:
		return "crypto"
	}
}

// RunCycle executes one collection cycle to completion and returns its
// result. Individual metric failures never abort the cycle; tasks still
// pending at the deadline are abandoned and simply absent from the result.
func (s *Scheduler) RunCycle(ctx context.Context, kind models.CycleKind) *models.CycleResult {
	started := s.clock.Now()
	res := &models.CycleResult{
		CycleID:   uuid.NewString(),
		Kind:      kind,
		StartedAt: started,
		PerMetric: make(map[string]models.MetricStatus),
	}

	cctx, cancel := context.WithTimeout(ctx, s.cfg.CycleDeadline)
	defer cancel()

	keys := s.coreMetrics()
	if kind == models.CycleExtended {
		keys = s.extendedMetrics()
	}

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		sems       = make(map[string]chan struct{})
		candidates []*models.AlertCandidate
	)
	for _, key := range keys {
		g := metricGroup(key.DataType)
		if _, ok := sems[g]; !ok {
			sems[g] = make(chan struct{}, s.cfg.GroupLimit)
		}
	}

	for _, key := range keys {
		key := key
		sem := sems[metricGroup(key.DataType)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-cctx.Done():
				return // abandoned at deadline, no status recorded
			}

			status, cand := s.collectMetric(cctx, key)
			mu.Lock()
			if status != "" {
				res.PerMetric[key.String()] = status
			}
			if cand != nil {
				candidates = append(candidates, cand)
			}
			mu.Unlock()
		}()
	}

	// barrier: derived statistics wait for the fan-out to finish, not for
	// every metric to succeed
	wg.Wait()

	if kind == models.CycleCore {
		s.runDerivedCore(cctx, &candidates)
	} else {
		s.runDerivedExtended(cctx, &candidates)
	}

	for _, c := range candidates {
		if _, err := s.alerts.Submit(cctx, c); err != nil {
			s.logger.Error("alert submit failed", xlogger.Error(err))
		}
	}

	res.Duration = s.clock.Now().Sub(started)
	s.metrics.RecordCycle(string(kind),
		res.Count(models.MetricOK),
		res.Count(models.MetricUsedFallback),
		res.Count(models.MetricUsedCache),
		res.Count(models.MetricFailed))
	return res
}

// collectMetric resolves one metric, persists the observation, and derives
// any threshold alert candidate. Its outcome is isolated from the rest of
// the cycle.
func (s *Scheduler) collectMetric(ctx context.Context, key models.MetricKey) (models.MetricStatus, *models.AlertCandidate) {
	r, err := s.resolver.Resolve(ctx, key)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", nil
		}
		return models.MetricFailed, nil
	}

	status := models.MetricOK
	switch {
	case r.FromCache:
		status = models.MetricUsedCache
	case r.UsedFallback:
		status = models.MetricUsedFallback
	}
	s.metrics.RecordMetricValue(key.String(), r.Value)

	var cand *models.AlertCandidate
	if !r.FromCache {
		prev, err := s.store.Latest(ctx, key)
		if err == nil && prev != nil {
			cand = s.thresholdCandidate(key, prev.Value, r.Value)
		}
		obs := &models.Observation{
			DataType: key.DataType,
			Symbol:   key.Symbol,
			Value:    r.Value,
			Source:   r.Source,
			Ts:       s.clock.Now(),
		}
		if err := s.store.InsertObservation(ctx, obs); err != nil {
			// persistence failure is logged; the fetch still counts
			s.metrics.RecordError("observation_persist")
			s.logger.Error("observation persist failed",
				xlogger.String("metric", key.String()),
				xlogger.Error(err))
		}
	}
	return status, cand
}

// thresholdCandidate turns a large move between consecutive observations
// into an alert candidate.
func (s *Scheduler) thresholdCandidate(key models.MetricKey, prev, cur float64) *models.AlertCandidate {
	if key.DataType != models.DataTypePrice && key.DataType != models.DataTypeMarketIndex {
		return nil
	}
	if prev == 0 {
		return nil
	}
	pct := (cur - prev) / prev * 100
	if math.Abs(pct) < s.cfg.PriceMovePct {
		return nil
	}
	sev := models.SeverityWarning
	if math.Abs(pct) >= 2*s.cfg.PriceMovePct {
		sev = models.SeverityCritical
	}
	dir := "up"
	if pct < 0 {
		dir = "down"
	}
	return &models.AlertCandidate{
		Type:       models.AlertPriceMove,
		Metric:     key.String(),
		Severity:   sev,
		Value:      round2(pct),
		Message:    key.Symbol + " moved " + dir,
		ComputedAt: s.clock.Now(),
	}
}

// runDerivedCore computes narrative groups and correlations once the
// fetch phase is over.
func (s *Scheduler) runDerivedCore(ctx context.Context, candidates *[]*models.AlertCandidate) {
	if s.trending != nil {
		items, err := s.trending.Trending(ctx)
		if err != nil {
			s.logger.Warn("trending fetch failed", xlogger.Error(err))
		} else if groups := s.narrative.Classify(items); len(groups) > 0 {
			if err := s.store.InsertNarrativeGroups(ctx, groups); err != nil {
				s.logger.Error("narrative persist failed", xlogger.Error(err))
			}
		}
	}

	if len(s.cfg.CorrSymbols) > 1 {
		if _, err := s.correlation.ComputeAll(ctx, s.cfg.CorrSymbols); err != nil {
			s.logger.Error("correlation compute failed", xlogger.Error(err))
		}
	}

	// sentiment extremes become alert candidates
	fng := models.MetricKey{DataType: models.DataTypeSentimentIdx, Symbol: "FNG"}
	if e := s.resolver.cache.Get(fng); e != nil && (e.Value <= 20 || e.Value >= 80) {
		*candidates = append(*candidates, &models.AlertCandidate{
			Type:       models.AlertSentimentFlip,
			Metric:     fng.String(),
			Severity:   models.SeverityInfo,
			Value:      e.Value,
			Message:    "sentiment index at extreme",
			ComputedAt: s.clock.Now(),
		})
	}
}

// runDerivedExtended derives SSR from the aggregator's global snapshot and
// raises candidates for upcoming high-impact economic events.
func (s *Scheduler) runDerivedExtended(ctx context.Context, candidates *[]*models.AlertCandidate) {
	if s.trending != nil {
		g, err := s.trending.Global(ctx)
		if err != nil {
			s.logger.Warn("global snapshot fetch failed", xlogger.Error(err))
		} else if ssr, ok := deriveSSR(g); ok {
			obs := &models.Observation{
				DataType: models.DataTypeSSR,
				Symbol:   "BTC",
				Value:    ssr,
				Source:   "derived",
				Ts:       s.clock.Now(),
			}
			if err := s.store.InsertObservation(ctx, obs); err != nil {
				s.logger.Error("ssr persist failed", xlogger.Error(err))
			}
			if ssr <= s.cfg.SSRLow || (s.cfg.SSRHigh > 0 && ssr >= s.cfg.SSRHigh) {
				*candidates = append(*candidates, &models.AlertCandidate{
					Type:       models.AlertSSRExtreme,
					Metric:     obs.Key().String(),
					Severity:   models.SeverityWarning,
					Value:      round2(ssr),
					Message:    "stablecoin supply ratio at extreme",
					ComputedAt: s.clock.Now(),
				})
			}
		}
	}

	if s.calendar != nil {
		events, err := s.calendar.Calendar(ctx)
		if err != nil {
			s.logger.Warn("calendar fetch failed", xlogger.Error(err))
			return
		}
		now := s.clock.Now()
		for _, ev := range events {
			if ev.Impact != "high" || !ev.ScheduledAt.After(now) || ev.ScheduledAt.Sub(now) > 48*time.Hour {
				continue
			}
			*candidates = append(*candidates, &models.AlertCandidate{
				Type:       models.AlertEconomicEvent,
				Severity:   models.SeverityInfo,
				Message:    ev.Title,
				EventID:    ev.ID,
				EventAt:    ev.ScheduledAt,
				ComputedAt: now,
			})
		}
	}
}

// deriveSSR relates the reference asset's market cap to the aggregate
// stablecoin market cap.
func deriveSSR(g *provider.GlobalData) (float64, bool) {
	if g == nil || g.StablecoinCap <= 0 {
		return 0, false
	}
	btcPct, ok := g.Dominance["BTC"]
	if !ok || btcPct <= 0 {
		return 0, false
	}
	btcCap := g.TotalMarketCap * btcPct / 100
	return btcCap / g.StablecoinCap, true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
