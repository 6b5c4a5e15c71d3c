package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"approval-service/internal/domain"
	"approval-service/internal/metrics"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type ApprovalServiceInterface interface {
	SubmitForApproval(ctx context.Context, req domain.SubmitRequest) (*domain.ApprovalRequest, error)
	ProcessApproval(ctx context.Context, approvalID string, decision domain.Decision) (*domain.ApprovalRequest, error)
	StartReview(ctx context.Context, approvalID, reviewerID string) (*domain.ApprovalRequest, error)
	GetApproval(ctx context.Context, approvalID string) (*domain.ApprovalRequest, error)
	GetApprovalQueue(ctx context.Context, filter domain.QueueFilter, limit, offset int) (*domain.QueuePage, error)
	GetApprovalStatistics(ctx context.Context, from, to *time.Time) (*domain.ApprovalStatistics, error)
	GetAuditTrail(ctx context.Context, approvalID string) ([]domain.AuditLogEntry, error)
	ReassignApproval(ctx context.Context, approvalID, newReviewer, actor string) (*domain.ApprovalRequest, error)
}

type ApprovalService struct {
	repo       ApprovalRepository
	audit      *AuditLogger
	balancer   *AssignmentBalancer
	escalation *EscalationHandler
	executor   *ActionExecutor
	dispatcher *NotificationDispatcher
	now        func() time.Time
}

type Option func(*ApprovalService)

// WithClock replaces time.Now for the service and the components it owns.
func WithClock(now func() time.Time) Option {
	return func(s *ApprovalService) {
		s.now = now
		s.audit.now = now
		s.escalation.now = now
		s.dispatcher.now = now
	}
}

func NewApprovalService(repo ApprovalRepository, audit *AuditLogger, directory Directory, dispatcher *NotificationDispatcher, executor *ActionExecutor, opts ...Option) *ApprovalService {
	s := &ApprovalService{
		repo:       repo,
		audit:      audit,
		balancer:   NewAssignmentBalancer(repo, directory, audit, dispatcher),
		escalation: NewEscalationHandler(repo, audit, dispatcher),
		executor:   executor,
		dispatcher: dispatcher,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ApprovalService) SubmitForApproval(ctx context.Context, req domain.SubmitRequest) (*domain.ApprovalRequest, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindOpenByEntity(ctx, req.EntityType, req.EntityID)
	if err != nil && !errors.Is(err, domain.ErrApprovalNotFound) {
		return nil, fmt.Errorf("failed to check for open approval request: %w", err)
	}
	if existing != nil {
		metrics.RecordSubmission(string(req.EntityType), string(existing.Priority), "duplicate")
		log.WithFields(log.Fields{
			"entity_type": req.EntityType,
			"entity_id":   req.EntityID,
			"existing_id": existing.ID,
		}).Info("Rejected duplicate approval submission")
		return nil, domain.ErrDuplicateRequest
	}

	priority := domain.DefaultPriority(req.EntityType)
	if req.Priority != nil {
		priority = *req.Priority
	}

	now := s.now().UTC()
	approval := &domain.ApprovalRequest{
		ID:          uuid.NewString(),
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		RequestedBy: req.RequestedBy,
		Status:      domain.StatusPending,
		Priority:    priority,
		Reason:      req.Reason,
		SLADeadline: domain.SLADeadline(priority, now),
		Tags:        []string{},
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if req.AutoApprove {
		if domain.CanAutoApprove(req.EntityType) {
			return s.autoApprove(ctx, approval)
		}
		log.WithFields(log.Fields{
			"entity_type": req.EntityType,
			"entity_id":   req.EntityID,
		}).Info("Auto-approval not permitted for entity type, routing to manual review")
	}

	entry := s.audit.NewEntry(approval.ID, domain.ActionSubmitted, req.RequestedBy, map[string]interface{}{
		"entity_type": string(req.EntityType),
		"entity_id":   req.EntityID,
		"priority":    string(priority),
		"reason":      req.Reason,
	})
	if err := s.repo.Create(ctx, approval, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			metrics.RecordSubmission(string(req.EntityType), string(priority), "duplicate")
			return nil, err
		}
		return nil, fmt.Errorf("failed to create approval request: %w", err)
	}
	s.audit.Mirror(ctx, entry)
	metrics.RecordSubmission(string(req.EntityType), string(priority), "pending")

	log.WithFields(log.Fields{
		"approval_id":  approval.ID,
		"entity_type":  approval.EntityType,
		"entity_id":    approval.EntityID,
		"priority":     approval.Priority,
		"sla_deadline": approval.SLADeadline,
	}).Info("Approval request submitted")

	reviewerID, err := s.balancer.Assign(ctx, approval.ID, priority)
	if err != nil {
		metrics.RecordBestEffortFailure("assignment")
		log.WithError(err).WithField("approval_id", approval.ID).Warn("Failed to assign approval request")
	} else if reviewerID != "" {
		approval.AssignedTo = &reviewerID
	}

	s.dispatcher.NotifyActiveReviewers(ctx, "New approval request",
		fmt.Sprintf("A %s approval request for %s needs review (priority %s).", approval.EntityType, approval.EntityID, approval.Priority),
		priority, map[string]interface{}{
			"approval_id":  approval.ID,
			"entity_type":  string(approval.EntityType),
			"entity_id":    approval.EntityID,
			"sla_deadline": approval.SLADeadline,
		})

	return approval, nil
}

// autoApprove persists the request already APPROVED and still runs the side
// effect and requester notification.
func (s *ApprovalService) autoApprove(ctx context.Context, approval *domain.ApprovalRequest) (*domain.ApprovalRequest, error) {
	reviewer := domain.SystemActor
	notes := "Auto-approved"
	reviewedAt := approval.CreatedAt

	approval.Status = domain.StatusApproved
	approval.ReviewedBy = &reviewer
	approval.ReviewedAt = &reviewedAt
	approval.ReviewNotes = &notes

	entry := s.audit.NewEntry(approval.ID, domain.ActionAutoApproved, domain.SystemActor, map[string]interface{}{
		"entity_type":  string(approval.EntityType),
		"entity_id":    approval.EntityID,
		"requested_by": approval.RequestedBy,
	})
	if err := s.repo.Create(ctx, approval, entry); err != nil {
		if errors.Is(err, domain.ErrDuplicateRequest) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create auto-approved request: %w", err)
	}

	ctx = context.WithoutCancel(ctx)
	s.audit.Mirror(ctx, entry)
	metrics.RecordSubmission(string(approval.EntityType), string(approval.Priority), "auto_approved")

	log.WithFields(log.Fields{
		"approval_id": approval.ID,
		"entity_type": approval.EntityType,
		"entity_id":   approval.EntityID,
	}).Info("Approval request auto-approved")

	if err := s.executor.Execute(ctx, approval, true); err != nil {
		metrics.RecordSideEffectFailure(string(approval.EntityType))
		return approval, err
	}

	s.notifyRequester(ctx, approval)
	return approval, nil
}

func (s *ApprovalService) notifyRequester(ctx context.Context, approval *domain.ApprovalRequest) {
	var title, content string
	switch approval.Status {
	case domain.StatusApproved:
		title = "Approval request approved"
		content = fmt.Sprintf("Your %s request for %s has been approved.", approval.EntityType, approval.EntityID)
	case domain.StatusRejected:
		title = "Approval request rejected"
		content = fmt.Sprintf("Your %s request for %s has been rejected.", approval.EntityType, approval.EntityID)
	case domain.StatusRequiresMoreInfo:
		title = "More information required"
		content = fmt.Sprintf("Your %s request for %s needs more information.", approval.EntityType, approval.EntityID)
	default:
		return
	}
	if approval.ReviewNotes != nil && *approval.ReviewNotes != "" {
		content = content + " Notes: " + *approval.ReviewNotes
	}

	s.dispatcher.NotifyUser(ctx, approval.RequestedBy, title, content, approval.Priority, map[string]interface{}{
		"approval_id": approval.ID,
		"entity_type": string(approval.EntityType),
		"entity_id":   approval.EntityID,
		"status":      string(approval.Status),
	})
}

func (s *ApprovalService) GetApproval(ctx context.Context, approvalID string) (*domain.ApprovalRequest, error) {
	if strings.TrimSpace(approvalID) == "" {
		return nil, domain.ErrInvalidRequest
	}
	return s.repo.GetByID(ctx, approvalID)
}

func (s *ApprovalService) GetApprovalQueue(ctx context.Context, filter domain.QueueFilter, limit, offset int) (*domain.QueuePage, error) {
	limit, offset = domain.NormalizePage(limit, offset)

	items, total, err := s.repo.ListQueue(ctx, filter, limit, offset, s.now().UTC())
	if err != nil {
		log.WithError(err).Error("Failed to list approval queue")
		return nil, fmt.Errorf("failed to list approval queue: %w", err)
	}

	return &domain.QueuePage{
		Items:   items,
		Total:   total,
		HasMore: offset+len(items) < total,
	}, nil
}

func (s *ApprovalService) GetApprovalStatistics(ctx context.Context, from, to *time.Time) (*domain.ApprovalStatistics, error) {
	if from != nil && to != nil && to.Before(*from) {
		return nil, domain.ErrInvalidRequest
	}

	requests, err := s.repo.ListCreatedBetween(ctx, from, to)
	if err != nil {
		log.WithError(err).Error("Failed to load approval requests for statistics")
		return nil, fmt.Errorf("failed to compute approval statistics: %w", err)
	}

	stats := domain.ComputeStatistics(requests, s.now().UTC())
	stats.From = from
	stats.To = to
	// A windowed run only sees part of the open requests.
	if from == nil && to == nil {
		metrics.SetSLABreached(stats.SLABreached)
	}
	return &stats, nil
}

func (s *ApprovalService) GetAuditTrail(ctx context.Context, approvalID string) ([]domain.AuditLogEntry, error) {
	if _, err := s.GetApproval(ctx, approvalID); err != nil {
		return nil, err
	}
	return s.audit.Trail(ctx, approvalID)
}

func (s *ApprovalService) ReassignApproval(ctx context.Context, approvalID, newReviewer, actor string) (*domain.ApprovalRequest, error) {
	return s.balancer.Reassign(ctx, approvalID, newReviewer, actor)
}
