package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	fetchesTotal *prometheus.CounterVec
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cycleOutcome *prometheus.CounterVec
	alertsTotal  *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	metricValue  *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_provider_fetches_total",
				Help: "Provider fetch attempts by outcome",
			},
			[]string{"provider", "data_type", "outcome"},
		),
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_cache_hits_total",
				Help: "Response cache hits by data type",
			},
			[]string{"data_type"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_cache_misses_total",
				Help: "Response cache misses by data type",
			},
			[]string{"data_type"},
		),
		cycleOutcome: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_cycle_metrics_total",
				Help: "Per-metric outcomes of collection cycles",
			},
			[]string{"kind", "status"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_alerts_total",
				Help: "Alert candidates by type and dedup outcome",
			},
			[]string{"type", "outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "marketpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "marketpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		metricValue: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "marketpulse_metric_value",
				Help: "Last collected value per metric",
			},
			[]string{"metric"},
		),
	}
}

// RecordFetch records one provider fetch attempt.
func (r *Recorder) RecordFetch(provider, dataType, outcome string) {
	r.fetchesTotal.WithLabelValues(provider, dataType, outcome).Inc()
}

func (r *Recorder) RecordCacheHit(dataType string) {
	r.cacheHits.WithLabelValues(dataType).Inc()
}

func (r *Recorder) RecordCacheMiss(dataType string) {
	r.cacheMisses.WithLabelValues(dataType).Inc()
}

// RecordCycle records the per-status metric counts of one cycle.
func (r *Recorder) RecordCycle(kind string, ok, fallback, cached, failed int) {
	add := func(status string, n int) {
		if n > 0 {
			r.cycleOutcome.WithLabelValues(kind, status).Add(float64(n))
		}
	}
	add("ok", ok)
	add("fallback", fallback)
	add("cached", cached)
	add("failed", failed)
}

// RecordAlert records an alert candidate outcome.
func (r *Recorder) RecordAlert(alertType, outcome string) {
	r.alertsTotal.WithLabelValues(alertType, outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordMetricValue records the last collected value for a metric.
func (r *Recorder) RecordMetricValue(metric string, value float64) {
	r.metricValue.WithLabelValues(metric).Set(value)
}
