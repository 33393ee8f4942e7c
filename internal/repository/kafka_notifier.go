package repository

import (
	"context"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	pkgkafka "MarketPulse/pkg/kafka"
)

// KafkaNotifier publishes accepted alerts to the alerts topic, keyed by
// dedup key so equivalent alerts land on the same partition.
type KafkaNotifier struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaNotifier(producer *pkgkafka.Producer, topic string) drepo.Notifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Dispatch(ctx context.Context, a *models.AlertRecord) error {
	payload := map[string]interface{}{
		"id":         a.ID,
		"type":       string(a.Type),
		"metric":     a.Metric,
		"severity":   string(a.Severity),
		"value":      a.Value,
		"message":    a.Message,
		"computedAt": a.ComputedAt.Unix(),
		"acceptedAt": a.AcceptedAt.Unix(),
	}
	if a.EventID != "" {
		payload["eventId"] = a.EventID
		payload["eventAt"] = a.EventAt.Unix()
	}
	return n.producer.Publish(ctx, n.topic, []byte(a.DedupKey), payload)
}

func (n *KafkaNotifier) Close() error {
	if n.producer != nil {
		return n.producer.Close()
	}
	return nil
}
