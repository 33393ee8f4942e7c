package models

import "time"

// CycleKind distinguishes the high-frequency core cycle from the
// low-frequency extended one.
type CycleKind string

const (
	CycleCore     CycleKind = "core"
	CycleExtended CycleKind = "extended"
)

// MetricStatus is the per-metric outcome of one collection cycle.
type MetricStatus string

const (
	MetricOK           MetricStatus = "ok"
	MetricUsedFallback MetricStatus = "usedFallback"
	MetricUsedCache    MetricStatus = "usedCache"
	MetricFailed       MetricStatus = "failed"
)

// CycleResult records the outcome of one scheduled collection cycle.
// It lives only long enough to be logged and turned into metrics.
type CycleResult struct {
	CycleID   string
	Kind      CycleKind
	StartedAt time.Time
	Duration  time.Duration
	PerMetric map[string]MetricStatus // keyed by MetricKey.String()
}

func (r *CycleResult) Count(status MetricStatus) int {
	n := 0
	for _, s := range r.PerMetric {
		if s == status {
			n++
		}
	}
	return n
}
