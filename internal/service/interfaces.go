package service

import (
	"context"
	"time"

	"approval-service/internal/domain"
)

// ApprovalRepository is the Request Store. Transition must apply its change
// only while the request is in one of the from statuses.
type ApprovalRepository interface {
	Create(ctx context.Context, req *domain.ApprovalRequest, entry domain.AuditLogEntry) error
	GetByID(ctx context.Context, id string) (*domain.ApprovalRequest, error)
	FindOpenByEntity(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.ApprovalRequest, error)
	Transition(ctx context.Context, id string, from []domain.Status, change domain.TransitionChange, entry domain.AuditLogEntry) (*domain.ApprovalRequest, error)
	AssignIfUnassigned(ctx context.Context, id, reviewerID string) (bool, error)
	Reassign(ctx context.Context, id, reviewerID string) (*domain.ApprovalRequest, error)
	CountOpenAssigned(ctx context.Context, reviewerIDs []string) (map[string]int, error)
	ListQueue(ctx context.Context, filter domain.QueueFilter, limit, offset int, now time.Time) ([]domain.ApprovalRequest, int, error)
	ListCreatedBetween(ctx context.Context, from, to *time.Time) ([]domain.ApprovalRequest, error)
}

type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	ListByApproval(ctx context.Context, approvalID string) ([]domain.AuditLogEntry, error)
}

type AuditPublisher interface {
	Publish(ctx context.Context, event domain.AuditEvent) error
}

type Directory interface {
	ListActiveReviewers(ctx context.Context) ([]domain.Reviewer, error)
	ListSeniorReviewers(ctx context.Context) ([]domain.Reviewer, error)
}

type Notifier interface {
	Send(ctx context.Context, n domain.Notification) error
}

// EntityStatusUpdater writes a decision onto the reviewed entity and returns
// the id of the party that owns it.
type EntityStatusUpdater interface {
	UpdateStatus(ctx context.Context, entityType domain.EntityType, entityID, status string) (string, error)
}
