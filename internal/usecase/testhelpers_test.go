package usecase

import (
	"context"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	svccache "MarketPulse/internal/service/cache"
	xlogger "MarketPulse/pkg/logger"
)

func testLogger() *xlogger.Logger {
	l, err := xlogger.New(&xlogger.Config{Level: "error", Format: "console", Output: "stdout"})
	if err != nil {
		panic(err)
	}
	return l
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeSource is a scripted provider.
type fakeSource struct {
	id       string
	priority int
	types    map[models.DataType]bool
	value    float64
	err      error
	calls    int
	mu       sync.Mutex
}

func (s *fakeSource) ID() string    { return s.id }
func (s *fakeSource) Priority() int { return s.priority }
func (s *fakeSource) Supports(t models.DataType) bool {
	return s.types == nil || s.types[t]
}
func (s *fakeSource) Fetch(ctx context.Context, key models.MetricKey) (float64, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.value, nil
}

func (s *fakeSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu           sync.Mutex
	observations []*models.Observation
	correlations []*models.CorrelationPair
	groups       []*models.NarrativeGroup
	alerts       []*models.AlertRecord

	insertAlertErr error
	insertObsErr   error
}

func (s *fakeStore) Init(ctx context.Context) error   { return nil }
func (s *fakeStore) Health(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                     { return nil }

func (s *fakeStore) InsertObservation(ctx context.Context, o *models.Observation) error {
	return s.InsertObservations(ctx, []*models.Observation{o})
}

func (s *fakeStore) InsertObservations(ctx context.Context, os []*models.Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertObsErr != nil {
		return s.insertObsErr
	}
	s.observations = append(s.observations, os...)
	return nil
}

func (s *fakeStore) Series(ctx context.Context, key models.MetricKey, limit int) ([]*models.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Observation
	for _, o := range s.observations {
		if o.Key() == key {
			out = append(out, o)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) Latest(ctx context.Context, key models.MetricKey) (*models.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.Observation
	for _, o := range s.observations {
		if o.Key() == key && (latest == nil || o.Ts.After(latest.Ts)) {
			latest = o
		}
	}
	return latest, nil
}

func (s *fakeStore) UpsertCorrelations(ctx context.Context, pairs []*models.CorrelationPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.correlations = append(s.correlations, pairs...)
	return nil
}

func (s *fakeStore) InsertNarrativeGroups(ctx context.Context, groups []*models.NarrativeGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, groups...)
	return nil
}

func (s *fakeStore) LatestNarrativeGroups(ctx context.Context) ([]*models.NarrativeGroup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups, nil
}

func (s *fakeStore) InsertAlert(ctx context.Context, a *models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertAlertErr != nil {
		return s.insertAlertErr
	}
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *fakeStore) AlertExists(ctx context.Context, dedupKey string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.DedupKey == dedupKey && !a.AcceptedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) RecentAlerts(ctx context.Context, limit int) ([]*models.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.alerts
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *fakeStore) DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*models.AlertRecord
	var removed int64
	for _, a := range s.alerts {
		if a.AcceptedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	return removed, nil
}

func (s *fakeStore) CollapseDuplicateAlerts(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type k struct {
		t models.AlertType
		m string
	}
	newest := make(map[k]*models.AlertRecord)
	for _, a := range s.alerts {
		key := k{a.Type, a.Metric}
		if cur, ok := newest[key]; !ok || a.AcceptedAt.After(cur.AcceptedAt) {
			newest[key] = a
		}
	}
	removed := int64(len(s.alerts) - len(newest))
	var kept []*models.AlertRecord
	for _, a := range s.alerts {
		if newest[k{a.Type, a.Metric}] == a {
			kept = append(kept, a)
		}
	}
	s.alerts = kept
	return removed, nil
}

func (s *fakeStore) DeletePastEventAlerts(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*models.AlertRecord
	var removed int64
	for _, a := range s.alerts {
		if a.EventID != "" && a.EventAt.Before(now) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.alerts = kept
	return removed, nil
}

func (s *fakeStore) alertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

// fakeNotifier records dispatched alerts.
type fakeNotifier struct {
	mu         sync.Mutex
	dispatched []*models.AlertRecord
	err        error
}

func (n *fakeNotifier) Dispatch(ctx context.Context, a *models.AlertRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.dispatched = append(n.dispatched, a)
	return nil
}

func (n *fakeNotifier) Close() error { return nil }

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.dispatched)
}

// nopMetrics discards all recordings.
type nopMetrics struct{}

func (nopMetrics) RecordFetch(provider, dataType, outcome string)            {}
func (nopMetrics) RecordCacheHit(dataType string)                            {}
func (nopMetrics) RecordCacheMiss(dataType string)                           {}
func (nopMetrics) RecordCycle(kind string, ok, fallback, cached, failed int) {}
func (nopMetrics) RecordAlert(alertType, outcome string)                     {}
func (nopMetrics) RecordError(kind string)                                   {}
func (nopMetrics) RecordLatency(op string, seconds float64)                  {}
func (nopMetrics) RecordMetricValue(metric string, value float64)            {}

// countingMetrics tracks RecordError calls, discarding everything else.
type countingMetrics struct {
	nopMetrics
	mu   sync.Mutex
	errs int
}

func (m *countingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errs++
	m.mu.Unlock()
}

func (m *countingMetrics) errors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs
}

func newTestCache(clock *fakeClock) *svccache.ResponseCache {
	return svccache.NewResponseCache(clock)
}
