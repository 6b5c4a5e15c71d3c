package domain

import (
	"time"
)

type EntityType string

const (
	EntityInvestment    EntityType = "INVESTMENT"
	EntityPitch         EntityType = "PITCH"
	EntitySyndicate     EntityType = "SYNDICATE"
	EntityUser          EntityType = "USER"
	EntityKYC           EntityType = "KYC"
	EntityAccreditation EntityType = "ACCREDITATION"
	EntitySPV           EntityType = "SPV"
	EntityDocument      EntityType = "DOCUMENT"
)

// EntityTypes returns the closed set of reviewable entity kinds.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityInvestment, EntityPitch, EntitySyndicate, EntityUser,
		EntityKYC, EntityAccreditation, EntitySPV, EntityDocument,
	}
}

func (t EntityType) Valid() bool {
	for _, v := range EntityTypes() {
		if v == t {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending          Status = "PENDING"
	StatusUnderReview      Status = "UNDER_REVIEW"
	StatusApproved         Status = "APPROVED"
	StatusRejected         Status = "REJECTED"
	StatusRequiresMoreInfo Status = "REQUIRES_MORE_INFO"
	StatusEscalated        Status = "ESCALATED"
)

func Statuses() []Status {
	return []Status{
		StatusPending, StatusUnderReview, StatusApproved,
		StatusRejected, StatusRequiresMoreInfo, StatusEscalated,
	}
}

func (s Status) Valid() bool {
	for _, v := range Statuses() {
		if v == s {
			return true
		}
	}
	return false
}

// OpenStatuses are the states counted by the one-open-request-per-entity rule,
// the reviewer load balancer and SLA breach detection.
func OpenStatuses() []Status {
	return []Status{StatusPending, StatusUnderReview, StatusRequiresMoreInfo}
}

// DecidableStatuses are the states a decision may leave. ESCALATED is still
// awaiting senior review, so it is decidable even though it is not "open".
func DecidableStatuses() []Status {
	return []Status{StatusPending, StatusUnderReview, StatusRequiresMoreInfo, StatusEscalated}
}

func (s Status) IsOpen() bool {
	for _, v := range OpenStatuses() {
		if v == s {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
}

// Rank orders priorities for queue sorting; unknown priorities rank below LOW.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Audit actions.
const (
	ActionSubmitted         = "SUBMITTED"
	ActionAssigned          = "ASSIGNED"
	ActionReviewStarted     = "REVIEW_STARTED"
	ActionApproved          = "APPROVED"
	ActionRejected          = "REJECTED"
	ActionEscalated         = "ESCALATED"
	ActionMoreInfoRequested = "MORE_INFO_REQUESTED"
	ActionReassigned        = "REASSIGNED"
	ActionAutoApproved      = "AUTO_APPROVED"
)

// SystemActor is recorded as the reviewer of auto-approved requests.
const SystemActor = "SYSTEM"

type ApprovalRequest struct {
	ID          string                 `json:"id"`
	EntityType  EntityType             `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	RequestedBy string                 `json:"requested_by"`
	Status      Status                 `json:"status"`
	Priority    Priority               `json:"priority"`
	Reason      string                 `json:"reason,omitempty"`
	SLADeadline time.Time              `json:"sla_deadline"`
	AssignedTo  *string                `json:"assigned_to,omitempty"`
	ReviewedBy  *string                `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time             `json:"reviewed_at,omitempty"`
	ReviewNotes *string                `json:"review_notes,omitempty"`
	Tags        []string               `json:"tags"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// SLABreached reports whether an open request has passed its deadline at now.
func (r *ApprovalRequest) SLABreached(now time.Time) bool {
	return r.Status.IsOpen() && r.SLADeadline.Before(now)
}

type AuditLogEntry struct {
	ID          string                 `json:"id"`
	ApprovalID  string                 `json:"approval_id"`
	Action      string                 `json:"action"`
	PerformedBy string                 `json:"performed_by"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}
