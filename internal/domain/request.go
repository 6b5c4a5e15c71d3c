package domain

import (
	"strings"
	"time"
)

const (
	DefaultQueueLimit = 20
	MaxQueueLimit     = 100
)

type SubmitRequest struct {
	EntityType  EntityType             `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	RequestedBy string                 `json:"requested_by"`
	Priority    *Priority              `json:"priority,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	AutoApprove bool                   `json:"auto_approve"`
}

func (r SubmitRequest) Validate() error {
	if !r.EntityType.Valid() {
		return ErrInvalidEntityType
	}
	if strings.TrimSpace(r.EntityID) == "" || strings.TrimSpace(r.RequestedBy) == "" {
		return ErrInvalidRequest
	}
	if r.Priority != nil && !r.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}

type DecisionType string

const (
	DecisionApprove         DecisionType = "APPROVE"
	DecisionReject          DecisionType = "REJECT"
	DecisionRequestMoreInfo DecisionType = "REQUEST_MORE_INFO"
	DecisionEscalate        DecisionType = "ESCALATE"
)

type Decision struct {
	Decision   DecisionType `json:"decision"`
	ReviewerID string       `json:"reviewer_id"`
	Notes      string       `json:"notes,omitempty"`
	Tags       []string     `json:"tags,omitempty"`
}

func (d Decision) Validate() error {
	switch d.Decision {
	case DecisionApprove, DecisionReject, DecisionRequestMoreInfo, DecisionEscalate:
	default:
		return ErrInvalidDecision
	}
	if strings.TrimSpace(d.ReviewerID) == "" {
		return ErrInvalidRequest
	}
	return nil
}

type QueueFilter struct {
	EntityType  *EntityType
	Status      *Status
	Priority    *Priority
	AssignedTo  *string
	From        *time.Time
	To          *time.Time
	SLABreached bool
}

type QueuePage struct {
	Items   []ApprovalRequest `json:"items"`
	Total   int               `json:"total"`
	HasMore bool              `json:"has_more"`
}

// NormalizePage clamps a caller-provided page window.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	if limit > MaxQueueLimit {
		limit = MaxQueueLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// TransitionChange is the set of columns a status transition writes.
// Nil fields are left untouched.
type TransitionChange struct {
	Status      Status
	Priority    *Priority
	SLADeadline *time.Time
	AssignedTo  *string
	ReviewedBy  *string
	ReviewedAt  *time.Time
	ReviewNotes *string
	Tags        []string
}
