package repository

import (
	"context"
	"time"

	"MarketPulse/internal/domain/models"
)

// Store is the persistence collaborator. Implementations must provide
// idempotent upsert semantics keyed by (metric, timestamp) where relevant
// and be safe for concurrent calls from unrelated metrics.
type Store interface {
	Init(ctx context.Context) error // ensure tables exist
	Health(ctx context.Context) error
	Close() error

	InsertObservation(ctx context.Context, o *models.Observation) error
	InsertObservations(ctx context.Context, os []*models.Observation) error
	// Series returns up to limit most recent observations for a metric,
	// ordered oldest first.
	Series(ctx context.Context, key models.MetricKey, limit int) ([]*models.Observation, error)
	Latest(ctx context.Context, key models.MetricKey) (*models.Observation, error)

	UpsertCorrelations(ctx context.Context, pairs []*models.CorrelationPair) error
	InsertNarrativeGroups(ctx context.Context, groups []*models.NarrativeGroup) error
	// LatestNarrativeGroups returns the most recent classification batch,
	// ordered by money flow descending.
	LatestNarrativeGroups(ctx context.Context) ([]*models.NarrativeGroup, error)

	InsertAlert(ctx context.Context, a *models.AlertRecord) error
	// AlertExists reports whether an alert with the same dedup key was
	// accepted at or after since.
	AlertExists(ctx context.Context, dedupKey string, since time.Time) (bool, error)
	RecentAlerts(ctx context.Context, limit int) ([]*models.AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// CollapseDuplicateAlerts keeps only the most recent record per
	// (type, metric) and reports how many were removed.
	CollapseDuplicateAlerts(ctx context.Context) (int64, error)
	// DeletePastEventAlerts removes alerts tied to events whose scheduled
	// time is already behind now.
	DeletePastEventAlerts(ctx context.Context, now time.Time) (int64, error)
}

// Notifier delivers accepted alerts. Dispatch failures are logged by the
// caller, never retried here.
type Notifier interface {
	Dispatch(ctx context.Context, a *models.AlertRecord) error
	Close() error
}

// MarketStream is a live tick feed from an exchange.
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// Metrics records operational counters for the pipeline.
type Metrics interface {
	RecordFetch(provider, dataType, outcome string)
	RecordCacheHit(dataType string)
	RecordCacheMiss(dataType string)
	RecordCycle(kind string, ok, fallback, cached, failed int)
	RecordAlert(alertType, outcome string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
	RecordMetricValue(metric string, value float64)
}

// Clock abstracts time for deterministic TTL and rate-window tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
