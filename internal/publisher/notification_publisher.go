package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"approval-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

// NotificationPublisher hands notifications to the notification service over
// Kafka, keyed by recipient so a user's messages stay ordered.
type NotificationPublisher struct {
	producer *Producer
	topic    string
}

func NewNotificationPublisher(producer *Producer, topic string) *NotificationPublisher {
	return &NotificationPublisher{producer: producer, topic: topic}
}

func (p *NotificationPublisher) Send(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	return p.producer.produce(p.topic, n.UserID, payload)
}

// LogNotifier is used when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, n domain.Notification) error {
	log.WithFields(log.Fields{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"title":           n.Title,
		"priority":        n.Priority,
	}).Info("Notification (no broker configured)")
	return nil
}
