package service

import (
	"context"
	"time"

	"approval-service/internal/domain"
	"approval-service/internal/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// NotificationDispatcher fans messages out to requesters, reviewers and
// senior staff. Nothing here returns an error: delivery is fire-and-forget.
type NotificationDispatcher struct {
	notifier  Notifier
	directory Directory
	now       func() time.Time
}

func NewNotificationDispatcher(notifier Notifier, directory Directory) *NotificationDispatcher {
	return &NotificationDispatcher{notifier: notifier, directory: directory, now: time.Now}
}

func (d *NotificationDispatcher) NotifyUser(ctx context.Context, userID, title, content string, priority domain.Priority, metadata map[string]interface{}) {
	if d == nil || d.notifier == nil || userID == "" {
		return
	}

	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		Priority:  priority,
		Metadata:  metadata,
		CreatedAt: d.now().UTC(),
	}

	// Delivery outlives the request that triggered it.
	if err := d.notifier.Send(context.WithoutCancel(ctx), n); err != nil {
		metrics.RecordBestEffortFailure("notification")
		log.WithError(err).WithFields(log.Fields{
			"user_id": userID,
			"title":   title,
		}).Warn("Failed to send notification")
	}
}

func (d *NotificationDispatcher) NotifyActiveReviewers(ctx context.Context, title, content string, priority domain.Priority, metadata map[string]interface{}) {
	if d == nil || d.directory == nil {
		return
	}

	reviewers, err := d.directory.ListActiveReviewers(ctx)
	if err != nil {
		metrics.RecordBestEffortFailure("notification")
		log.WithError(err).Warn("Failed to load reviewers for notification")
		return
	}
	d.notifyAll(ctx, reviewers, title, content, priority, metadata)
}

func (d *NotificationDispatcher) NotifySeniorReviewers(ctx context.Context, title, content string, priority domain.Priority, metadata map[string]interface{}) {
	if d == nil || d.directory == nil {
		return
	}

	seniors, err := d.directory.ListSeniorReviewers(ctx)
	if err != nil {
		metrics.RecordBestEffortFailure("notification")
		log.WithError(err).Warn("Failed to load senior reviewers for notification")
		return
	}
	if len(seniors) == 0 {
		log.WithField("title", title).Warn("No senior reviewers to notify")
		return
	}
	d.notifyAll(ctx, seniors, title, content, priority, metadata)
}

func (d *NotificationDispatcher) notifyAll(ctx context.Context, reviewers []domain.Reviewer, title, content string, priority domain.Priority, metadata map[string]interface{}) {
	for _, r := range reviewers {
		d.NotifyUser(ctx, r.ID, title, content, priority, metadata)
	}
}
