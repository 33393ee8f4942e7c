package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
)

// CandidateHandler consumes externally produced alert candidates from
// Kafka and submits them through the same dedup path as internal ones.
type CandidateHandler struct {
	topic   string
	alerts  *AlertEngine
	metrics domrepo.Metrics
	clock   domrepo.Clock
}

func NewCandidateHandler(topic string, alerts *AlertEngine, metrics domrepo.Metrics, clock domrepo.Clock) *CandidateHandler {
	if clock == nil {
		clock = domrepo.SystemClock{}
	}
	return &CandidateHandler{topic: topic, alerts: alerts, metrics: metrics, clock: clock}
}

func (h *CandidateHandler) Topic() string { return h.topic }

// incoming message schema: {type, metric, severity, value, message, eventId, eventAt}
func (h *CandidateHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Type     string  `json:"type"`
		Metric   string  `json:"metric"`
		Severity string  `json:"severity"`
		Value    float64 `json:"value"`
		Message  string  `json:"message"`
		EventID  string  `json:"eventId"`
		EventAt  int64   `json:"eventAt"` // unix seconds, event alerts only
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("candidate_unmarshal")
		return err
	}
	if m.Type == "" {
		h.metrics.RecordError("candidate_invalid")
		return fmt.Errorf("candidate missing type")
	}

	c := &models.AlertCandidate{
		Type:       models.AlertType(m.Type),
		Metric:     m.Metric,
		Severity:   models.Severity(m.Severity),
		Value:      m.Value,
		Message:    m.Message,
		EventID:    m.EventID,
		ComputedAt: h.clock.Now(),
	}
	if m.Severity == "" {
		c.Severity = models.SeverityInfo
	}
	if m.EventAt > 0 {
		c.EventAt = time.Unix(m.EventAt, 0)
	}

	if _, err := h.alerts.Submit(ctx, c); err != nil {
		h.metrics.RecordError("candidate_submit")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*CandidateHandler)(nil)
