package service

import (
	"context"
	"strings"

	"approval-service/internal/domain"
	"approval-service/internal/metrics"

	log "github.com/sirupsen/logrus"
)

// ProcessApproval applies a reviewer decision. The state change and its audit
// entry commit together; approve/reject then run the entity side effect, whose
// failure is returned alongside the already-committed request.
func (s *ApprovalService) ProcessApproval(ctx context.Context, approvalID string, decision domain.Decision) (*domain.ApprovalRequest, error) {
	if strings.TrimSpace(approvalID) == "" {
		return nil, domain.ErrInvalidRequest
	}
	if err := decision.Validate(); err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		log.WithFields(log.Fields{
			"approval_id": approvalID,
			"status":      current.Status,
			"decision":    decision.Decision,
		}).Warn("Decision on already processed approval request rejected")
		return nil, domain.ErrApprovalAlreadyProcessed
	}

	var updated *domain.ApprovalRequest
	switch decision.Decision {
	case domain.DecisionApprove:
		return s.finalize(ctx, current, decision, true)
	case domain.DecisionReject:
		return s.finalize(ctx, current, decision, false)
	case domain.DecisionRequestMoreInfo:
		updated, err = s.requestMoreInfo(ctx, current, decision)
	case domain.DecisionEscalate:
		updated, err = s.escalation.Escalate(ctx, current, decision.ReviewerID, decision.Notes)
	default:
		return nil, domain.ErrInvalidDecision
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordDecision(string(updated.EntityType), string(decision.Decision))
	return updated, nil
}

func (s *ApprovalService) finalize(ctx context.Context, current *domain.ApprovalRequest, decision domain.Decision, approved bool) (*domain.ApprovalRequest, error) {
	status, action := domain.StatusRejected, domain.ActionRejected
	if approved {
		status, action = domain.StatusApproved, domain.ActionApproved
	}

	now := s.now().UTC()
	reviewer := decision.ReviewerID
	notes := decision.Notes
	tags := normalizeTags(decision.Tags)

	change := domain.TransitionChange{
		Status:      status,
		ReviewedBy:  &reviewer,
		ReviewedAt:  &now,
		ReviewNotes: &notes,
		Tags:        tags,
	}
	details := map[string]interface{}{
		"notes":           notes,
		"previous_status": string(current.Status),
	}
	if tags != nil {
		details["tags"] = tags
	}
	entry := s.audit.NewEntry(current.ID, action, reviewer, details)

	updated, err := s.repo.Transition(ctx, current.ID, domain.DecidableStatuses(), change, entry)
	if err != nil {
		return nil, err
	}

	// The decision is committed; the caller going away must not abort the rest.
	ctx = context.WithoutCancel(ctx)
	s.audit.Mirror(ctx, entry)
	metrics.RecordDecision(string(updated.EntityType), string(decision.Decision))

	log.WithFields(log.Fields{
		"approval_id": updated.ID,
		"entity_type": updated.EntityType,
		"entity_id":   updated.EntityID,
		"status":      updated.Status,
		"reviewer_id": reviewer,
	}).Info("Approval decision recorded")

	if err := s.executor.Execute(ctx, updated, approved); err != nil {
		metrics.RecordSideEffectFailure(string(updated.EntityType))
		return updated, err
	}

	s.notifyRequester(ctx, updated)
	return updated, nil
}

func (s *ApprovalService) requestMoreInfo(ctx context.Context, current *domain.ApprovalRequest, decision domain.Decision) (*domain.ApprovalRequest, error) {
	reviewer := decision.ReviewerID
	notes := decision.Notes

	change := domain.TransitionChange{
		Status:      domain.StatusRequiresMoreInfo,
		ReviewedBy:  &reviewer,
		ReviewNotes: &notes,
	}
	entry := s.audit.NewEntry(current.ID, domain.ActionMoreInfoRequested, reviewer, map[string]interface{}{
		"notes":           notes,
		"previous_status": string(current.Status),
	})

	updated, err := s.repo.Transition(ctx, current.ID, domain.DecidableStatuses(), change, entry)
	if err != nil {
		return nil, err
	}
	s.audit.Mirror(ctx, entry)

	log.WithFields(log.Fields{
		"approval_id": updated.ID,
		"reviewer_id": reviewer,
	}).Info("More information requested for approval request")

	s.notifyRequester(ctx, updated)
	return updated, nil
}

// StartReview moves a PENDING or REQUIRES_MORE_INFO request to UNDER_REVIEW,
// claiming it for the reviewer if nobody holds it yet.
func (s *ApprovalService) StartReview(ctx context.Context, approvalID, reviewerID string) (*domain.ApprovalRequest, error) {
	if strings.TrimSpace(approvalID) == "" || strings.TrimSpace(reviewerID) == "" {
		return nil, domain.ErrInvalidRequest
	}

	current, err := s.repo.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if current.Status.IsTerminal() {
		return nil, domain.ErrApprovalAlreadyProcessed
	}

	change := domain.TransitionChange{Status: domain.StatusUnderReview}
	if current.AssignedTo == nil {
		change.AssignedTo = &reviewerID
	}
	entry := s.audit.NewEntry(current.ID, domain.ActionReviewStarted, reviewerID, map[string]interface{}{
		"previous_status": string(current.Status),
	})

	updated, err := s.repo.Transition(ctx, current.ID,
		[]domain.Status{domain.StatusPending, domain.StatusRequiresMoreInfo}, change, entry)
	if err != nil {
		return nil, err
	}
	s.audit.Mirror(ctx, entry)

	log.WithFields(log.Fields{
		"approval_id": updated.ID,
		"reviewer_id": reviewerID,
	}).Info("Review started on approval request")
	return updated, nil
}

// normalizeTags trims, drops empties and de-duplicates. Nil means "leave tags as they are".
func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
