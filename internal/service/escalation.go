package service

import (
	"context"
	"fmt"
	"time"

	"approval-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

// EscalationHandler moves a request to senior review. It raises priority to
// URGENT and restarts the SLA clock for a lower-priority request, but leaves
// the assignee alone.
type EscalationHandler struct {
	repo       ApprovalRepository
	audit      *AuditLogger
	dispatcher *NotificationDispatcher
	now        func() time.Time
}

func NewEscalationHandler(repo ApprovalRepository, audit *AuditLogger, dispatcher *NotificationDispatcher) *EscalationHandler {
	return &EscalationHandler{repo: repo, audit: audit, dispatcher: dispatcher, now: time.Now}
}

func (h *EscalationHandler) Escalate(ctx context.Context, current *domain.ApprovalRequest, reviewerID, notes string) (*domain.ApprovalRequest, error) {
	urgent := domain.PriorityUrgent
	change := domain.TransitionChange{
		Status:      domain.StatusEscalated,
		Priority:    &urgent,
		ReviewNotes: &notes,
	}

	// The SLA clock restarts only when escalation actually raises the priority.
	deadline := current.SLADeadline
	if current.Priority != urgent {
		deadline = domain.SLADeadline(urgent, h.now().UTC())
		change.SLADeadline = &deadline
	}

	entry := h.audit.NewEntry(current.ID, domain.ActionEscalated, reviewerID, map[string]interface{}{
		"notes":             notes,
		"previous_status":   string(current.Status),
		"previous_priority": string(current.Priority),
		"sla_deadline":      deadline,
	})

	updated, err := h.repo.Transition(ctx, current.ID, domain.DecidableStatuses(), change, entry)
	if err != nil {
		return nil, err
	}
	h.audit.Mirror(ctx, entry)

	log.WithFields(log.Fields{
		"approval_id":       current.ID,
		"previous_priority": current.Priority,
		"escalated_by":      reviewerID,
	}).Info("Approval request escalated")

	h.dispatcher.NotifySeniorReviewers(ctx, "Approval escalated",
		fmt.Sprintf("%s approval for %s was escalated by %s: %s", updated.EntityType, updated.EntityID, reviewerID, notes),
		domain.PriorityUrgent, map[string]interface{}{
			"approval_id":  updated.ID,
			"entity_type":  string(updated.EntityType),
			"entity_id":    updated.EntityID,
			"escalated_by": reviewerID,
		})

	return updated, nil
}
