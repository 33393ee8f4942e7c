package models

import (
	"fmt"
	"time"
)

type AlertType string

const (
	AlertPriceMove     AlertType = "price_move"
	AlertYieldShift    AlertType = "yield_shift"
	AlertSentimentFlip AlertType = "sentiment_flip"
	AlertSSRExtreme    AlertType = "ssr_extreme"
	AlertCorrelation   AlertType = "correlation_break"
	AlertEconomicEvent AlertType = "economic_event"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertCandidate is a proposed alert before dedup.
type AlertCandidate struct {
	Type       AlertType
	Metric     string // MetricKey.String() for metric alerts
	Severity   Severity
	Value      float64
	Message    string
	EventID    string    // set for event-class alerts; drives the dedup key
	EventAt    time.Time // scheduled time for event-class alerts
	ComputedAt time.Time
}

// DedupKey identifies equivalent candidates within the dedup window.
// Event alerts key on (type, eventId); everything else on (type, metric, value).
func (c *AlertCandidate) DedupKey() string {
	if c.EventID != "" {
		return fmt.Sprintf("%s|%s", c.Type, c.EventID)
	}
	return fmt.Sprintf("%s|%s|%g", c.Type, c.Metric, c.Value)
}

// AlertRecord is the persisted form of an accepted candidate.
type AlertRecord struct {
	ID         string
	Type       AlertType
	Metric     string
	Severity   Severity
	Value      float64
	Message    string
	DedupKey   string
	EventID    string
	EventAt    time.Time
	ComputedAt time.Time
	AcceptedAt time.Time
}
