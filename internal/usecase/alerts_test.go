package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketPulse/internal/domain/models"
)

type memDeduper struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func (d *memDeduper) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.held == nil {
		d.held = make(map[string]bool)
	}
	if d.held[key] {
		return false, nil
	}
	d.held[key] = true
	return true, nil
}

func (d *memDeduper) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.held, key)
	return nil
}

func priceCandidate(value float64) *models.AlertCandidate {
	return &models.AlertCandidate{
		Type:     models.AlertPriceMove,
		Metric:   "PRICE/BTC",
		Severity: models.SeverityWarning,
		Value:    value,
		Message:  "BTC moved up",
	}
}

func TestSubmitAcceptsAndDispatchesOnce(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	e := NewAlertEngine(store, notifier, &memDeduper{}, testLogger(), nopMetrics{}, clock, time.Hour, 0)

	out, err := e.Submit(context.Background(), priceCandidate(12.5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, out)
	assert.Equal(t, 1, store.alertCount())
	assert.Equal(t, 1, notifier.count())
}

func TestSubmitSuppressesDuplicateWithinWindow(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	e := NewAlertEngine(store, notifier, &memDeduper{}, testLogger(), nopMetrics{}, clock, time.Hour, 0)

	first, err := e.Submit(context.Background(), priceCandidate(12.5))
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, first)

	second, err := e.Submit(context.Background(), priceCandidate(12.5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, second)
	assert.Equal(t, 1, store.alertCount())
	assert.Equal(t, 1, notifier.count())
}

func TestSubmitStoreOnlyDedupWhenFastPathDown(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	dedup := &memDeduper{err: errors.New("redis down")}
	e := NewAlertEngine(store, notifier, dedup, testLogger(), nopMetrics{}, clock, time.Hour, 0)

	first, err := e.Submit(context.Background(), priceCandidate(12.5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, first)

	// store query still suppresses the duplicate
	second, err := e.Submit(context.Background(), priceCandidate(12.5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, second)
}

func TestSubmitReleasesReservationOnPersistFailure(t *testing.T) {
	store := &fakeStore{insertAlertErr: errors.New("insert failed")}
	notifier := &fakeNotifier{}
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	dedup := &memDeduper{}
	e := NewAlertEngine(store, notifier, dedup, testLogger(), nopMetrics{}, clock, time.Hour, 0)

	_, err := e.Submit(context.Background(), priceCandidate(12.5))
	require.Error(t, err)
	assert.Zero(t, notifier.count())

	// reservation was released; the retry can reserve again
	store.insertAlertErr = nil
	out, err := e.Submit(context.Background(), priceCandidate(12.5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, out)
}

func TestSubmitDispatchFailureStillAccepts(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{err: errors.New("broker down")}
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	e := NewAlertEngine(store, notifier, nil, testLogger(), nopMetrics{}, clock, time.Hour, 0)

	out, err := e.Submit(context.Background(), priceCandidate(12.5))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAccepted, out)
	assert.Equal(t, 1, store.alertCount())
}

func TestSubmitEventAlertKeyedByEvent(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	e := NewAlertEngine(store, notifier, nil, testLogger(), nopMetrics{}, clock, time.Hour, 0)

	ev := &models.AlertCandidate{
		Type:    models.AlertEconomicEvent,
		Message: "CPI release",
		EventID: "cpi-2026-03",
		EventAt: clock.Now().Add(24 * time.Hour),
	}
	out, err := e.Submit(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, out)

	// same event, different message text: still a duplicate
	ev2 := &models.AlertCandidate{
		Type:    models.AlertEconomicEvent,
		Message: "CPI release (updated)",
		EventID: "cpi-2026-03",
		EventAt: ev.EventAt,
	}
	out, err = e.Submit(context.Background(), ev2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, out)
}

func TestMaintainPurgesAndCollapses(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(now)
	e := NewAlertEngine(store, notifier, nil, testLogger(), nopMetrics{}, clock, time.Hour, 7*24*time.Hour)

	store.alerts = []*models.AlertRecord{
		{ID: "old", Type: models.AlertPriceMove, Metric: "PRICE/BTC", DedupKey: "k1", AcceptedAt: now.Add(-8 * 24 * time.Hour)},
		{ID: "dup1", Type: models.AlertPriceMove, Metric: "PRICE/ETH", DedupKey: "k2", AcceptedAt: now.Add(-2 * time.Hour)},
		{ID: "dup2", Type: models.AlertPriceMove, Metric: "PRICE/ETH", DedupKey: "k3", AcceptedAt: now.Add(-time.Hour)},
		{ID: "past", Type: models.AlertEconomicEvent, EventID: "e1", EventAt: now.Add(-time.Hour), AcceptedAt: now.Add(-2 * time.Hour)},
	}

	require.NoError(t, e.Maintain(context.Background()))
	assert.Equal(t, 1, store.alertCount())

	remaining, err := store.RecentAlerts(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "dup2", remaining[0].ID)
}
