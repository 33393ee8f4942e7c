package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	xlogger "MarketPulse/pkg/logger"
)

// Outcome of one alert submission.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeSuppressed Outcome = "suppressed"
)

// Deduper is an optional fast path for dedup-key reservation (Redis).
// The store remains the source of truth; the deduper only short-circuits
// the common duplicate case and serializes concurrent submits.
type Deduper interface {
	// Reserve atomically claims the key for ttl. False means another
	// equivalent candidate holds it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// AlertEngine suppresses duplicate alert candidates within a rolling
// window, persists accepted ones, and forwards them to the notifier.
type AlertEngine struct {
	store    drepo.Store
	notifier drepo.Notifier
	dedup    Deduper // may be nil
	logger   *xlogger.Logger
	metrics  drepo.Metrics
	clock    drepo.Clock

	window    time.Duration
	retention time.Duration
}

func NewAlertEngine(store drepo.Store, notifier drepo.Notifier, dedup Deduper, logger *xlogger.Logger, metrics drepo.Metrics, clock drepo.Clock, window, retention time.Duration) *AlertEngine {
	if clock == nil {
		clock = drepo.SystemClock{}
	}
	if window <= 0 {
		window = time.Hour
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &AlertEngine{
		store:     store,
		notifier:  notifier,
		dedup:     dedup,
		logger:    logger,
		metrics:   metrics,
		clock:     clock,
		window:    window,
		retention: retention,
	}
}

// Submit accepts or suppresses one candidate. For an accepted candidate
// exactly one record is persisted and exactly one dispatch happens;
// dispatch failures are logged, never retried here.
func (e *AlertEngine) Submit(ctx context.Context, c *models.AlertCandidate) (Outcome, error) {
	key := c.DedupKey()

	reserved := false
	if e.dedup != nil {
		ok, err := e.dedup.Reserve(ctx, key, e.window)
		if err != nil {
			// fast path down: fall back to the store query
			e.logger.Warn("dedup reserve failed, using store only", xlogger.Error(err))
		} else if !ok {
			e.metrics.RecordAlert(string(c.Type), string(OutcomeSuppressed))
			return OutcomeSuppressed, nil
		} else {
			reserved = true
		}
	}

	since := e.clock.Now().Add(-e.window)
	exists, err := e.store.AlertExists(ctx, key, since)
	if err != nil {
		if reserved {
			_ = e.dedup.Release(ctx, key)
		}
		return "", fmt.Errorf("dedup lookup: %w", err)
	}
	if exists {
		e.metrics.RecordAlert(string(c.Type), string(OutcomeSuppressed))
		return OutcomeSuppressed, nil
	}

	rec := &models.AlertRecord{
		ID:         uuid.NewString(),
		Type:       c.Type,
		Metric:     c.Metric,
		Severity:   c.Severity,
		Value:      c.Value,
		Message:    c.Message,
		DedupKey:   key,
		EventID:    c.EventID,
		EventAt:    c.EventAt,
		ComputedAt: c.ComputedAt,
		AcceptedAt: e.clock.Now(),
	}
	if err := e.store.InsertAlert(ctx, rec); err != nil {
		if reserved {
			// release so the next equivalent candidate can try again
			_ = e.dedup.Release(ctx, key)
		}
		e.metrics.RecordError("alert_persist")
		return "", fmt.Errorf("persist alert: %w", err)
	}

	if err := e.notifier.Dispatch(ctx, rec); err != nil {
		e.metrics.RecordError("alert_dispatch")
		e.logger.Error("alert dispatch failed",
			xlogger.String("alert", string(rec.Type)),
			xlogger.String("metric", rec.Metric),
			xlogger.Error(err))
	}

	e.metrics.RecordAlert(string(c.Type), string(OutcomeAccepted))
	e.logger.Info("alert accepted",
		xlogger.String("alert", string(rec.Type)),
		xlogger.String("metric", rec.Metric),
		xlogger.String("severity", string(rec.Severity)))
	return OutcomeAccepted, nil
}

// Maintain runs the periodic cleanup pass: retention purge, duplicate
// collapse, and removal of alerts for events already behind us.
func (e *AlertEngine) Maintain(ctx context.Context) error {
	now := e.clock.Now()

	purged, err := e.store.DeleteAlertsBefore(ctx, now.Add(-e.retention))
	if err != nil {
		return fmt.Errorf("alert retention purge: %w", err)
	}
	collapsed, err := e.store.CollapseDuplicateAlerts(ctx)
	if err != nil {
		return fmt.Errorf("alert duplicate collapse: %w", err)
	}
	pastEvents, err := e.store.DeletePastEventAlerts(ctx, now)
	if err != nil {
		return fmt.Errorf("past event cleanup: %w", err)
	}

	e.logger.Info("alert maintenance complete",
		xlogger.Int64("purged", purged),
		xlogger.Int64("collapsed", collapsed),
		xlogger.Int64("past_events", pastEvents))
	return nil
}
