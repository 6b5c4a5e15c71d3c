package service

import (
	"context"
	"time"

	"approval-service/internal/domain"
	"approval-service/internal/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// AuditLogger appends audit entries. Failures are logged and swallowed so an
// unavailable audit store never blocks a decision; entries that must be atomic
// with a state change are written by the repository inside the transition.
type AuditLogger struct {
	repo      AuditRepository
	publisher AuditPublisher
	now       func() time.Time
}

func NewAuditLogger(repo AuditRepository, publisher AuditPublisher) *AuditLogger {
	return &AuditLogger{repo: repo, publisher: publisher, now: time.Now}
}

func (a *AuditLogger) NewEntry(approvalID, action, performedBy string, details map[string]interface{}) domain.AuditLogEntry {
	return domain.AuditLogEntry{
		ID:          uuid.NewString(),
		ApprovalID:  approvalID,
		Action:      action,
		PerformedBy: performedBy,
		Details:     details,
		Timestamp:   a.now().UTC(),
	}
}

func (a *AuditLogger) Append(ctx context.Context, approvalID, action, performedBy string, details map[string]interface{}) {
	if a == nil || a.repo == nil {
		return
	}

	entry := a.NewEntry(approvalID, action, performedBy, details)
	if err := a.repo.Append(ctx, entry); err != nil {
		metrics.RecordBestEffortFailure("audit")
		log.WithError(err).WithFields(log.Fields{
			"approval_id": approvalID,
			"action":      action,
		}).Warn("Failed to write audit entry")
		return
	}
	a.Mirror(ctx, entry)
}

// Mirror publishes an already persisted entry to the audit stream.
func (a *AuditLogger) Mirror(ctx context.Context, entry domain.AuditLogEntry) {
	if a == nil || a.publisher == nil {
		return
	}

	if err := a.publisher.Publish(ctx, domain.NewAuditEvent(entry)); err != nil {
		metrics.RecordBestEffortFailure("audit")
		log.WithError(err).WithFields(log.Fields{
			"approval_id": entry.ApprovalID,
			"action":      entry.Action,
		}).Warn("Failed to publish audit event")
	}
}

func (a *AuditLogger) Trail(ctx context.Context, approvalID string) ([]domain.AuditLogEntry, error) {
	return a.repo.ListByApproval(ctx, approvalID)
}
