package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"approval-service/internal/domain"
)

// AuditPublisher mirrors committed audit entries to the shared audit topic.
type AuditPublisher struct {
	producer *Producer
	topic    string
}

func NewAuditPublisher(producer *Producer, topic string) *AuditPublisher {
	return &AuditPublisher{producer: producer, topic: topic}
}

func encodeAuditEvent(event domain.AuditEvent) ([]byte, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit event: %w", err)
	}
	return payload, nil
}

func (p *AuditPublisher) Publish(ctx context.Context, event domain.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := encodeAuditEvent(event)
	if err != nil {
		return err
	}
	return p.producer.produce(p.topic, event.EntityID, payload)
}
