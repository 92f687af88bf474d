package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"driftwatch/internal/platform/kafka"
	"driftwatch/internal/watch/models"
)

// KafkaPublisher publishes notification payloads to the configured Kafka
// topic. Records are keyed by org and subject so consumers see per-subject
// ordering.
type KafkaPublisher struct {
	producer *kafka.Producer
}

// NewKafkaPublisher wraps an existing producer.
func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, payload models.NotificationPayload) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	key := payload.OrgID + "|" + payload.Subject
	return p.producer.Produce(ctx, key, value)
}
