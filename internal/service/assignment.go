package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"approval-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

// AssignmentBalancer routes requests to the active reviewer with the fewest
// open assignments. Counting and assigning are not atomic; two concurrent
// assignments may land on the same reviewer.
type AssignmentBalancer struct {
	repo       ApprovalRepository
	directory  Directory
	audit      *AuditLogger
	dispatcher *NotificationDispatcher
}

func NewAssignmentBalancer(repo ApprovalRepository, directory Directory, audit *AuditLogger, dispatcher *NotificationDispatcher) *AssignmentBalancer {
	return &AssignmentBalancer{repo: repo, directory: directory, audit: audit, dispatcher: dispatcher}
}

// leastLoaded picks the reviewer with the smallest count, breaking ties by id.
func leastLoaded(reviewers []domain.Reviewer, counts map[string]int) string {
	if len(reviewers) == 0 {
		return ""
	}

	sorted := make([]domain.Reviewer, len(reviewers))
	copy(sorted, reviewers)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := counts[sorted[i].ID], counts[sorted[j].ID]
		if ci != cj {
			return ci < cj
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0].ID
}

// Assign returns the chosen reviewer, or "" when nobody is available or the
// request already has an assignee.
func (b *AssignmentBalancer) Assign(ctx context.Context, requestID string, priority domain.Priority) (string, error) {
	reviewers, err := b.directory.ListActiveReviewers(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load active reviewers: %w", err)
	}
	if len(reviewers) == 0 {
		log.WithField("approval_id", requestID).Warn("No active reviewers; approval request left unassigned")
		return "", nil
	}

	ids := make([]string, 0, len(reviewers))
	for _, r := range reviewers {
		ids = append(ids, r.ID)
	}

	counts, err := b.repo.CountOpenAssigned(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("failed to count reviewer workload: %w", err)
	}

	reviewerID := leastLoaded(reviewers, counts)

	assigned, err := b.repo.AssignIfUnassigned(ctx, requestID, reviewerID)
	if err != nil {
		return "", err
	}
	if !assigned {
		log.WithField("approval_id", requestID).Debug("Approval request already assigned, skipping")
		return "", nil
	}

	log.WithFields(log.Fields{
		"approval_id": requestID,
		"reviewer_id": reviewerID,
		"priority":    priority,
		"open_count":  counts[reviewerID],
	}).Info("Approval request assigned")

	b.audit.Append(ctx, requestID, domain.ActionAssigned, domain.SystemActor, map[string]interface{}{
		"assigned_to": reviewerID,
		"priority":    string(priority),
		"open_count":  counts[reviewerID],
	})
	return reviewerID, nil
}

// Reassign is an explicit override and succeeds whenever the request exists.
func (b *AssignmentBalancer) Reassign(ctx context.Context, requestID, newReviewer, actor string) (*domain.ApprovalRequest, error) {
	if strings.TrimSpace(requestID) == "" || strings.TrimSpace(newReviewer) == "" || strings.TrimSpace(actor) == "" {
		return nil, domain.ErrInvalidRequest
	}

	previous, err := b.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}

	req, err := b.repo.Reassign(ctx, requestID, newReviewer)
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{"assigned_to": newReviewer}
	if previous.AssignedTo != nil {
		details["previous_assignee"] = *previous.AssignedTo
	}
	b.audit.Append(ctx, requestID, domain.ActionReassigned, actor, details)

	b.dispatcher.NotifyUser(ctx, newReviewer, "Approval request assigned to you",
		fmt.Sprintf("%s approval for %s was reassigned to you.", req.EntityType, req.EntityID),
		req.Priority, map[string]interface{}{"approval_id": req.ID})

	log.WithFields(log.Fields{
		"approval_id": requestID,
		"reviewer_id": newReviewer,
		"actor":       actor,
	}).Info("Approval request reassigned")
	return req, nil
}
