package domain

import (
	"strings"
	"time"
)

const ServiceName = "approval-service"

// AuditEvent is the cross-service envelope audit entries are mirrored as.
type AuditEvent struct {
	Service    string                 `json:"service"`
	EventType  string                 `json:"event_type"`
	EntityID   string                 `json:"entity_id"`
	Actor      string                 `json:"actor,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

func NewAuditEvent(entry AuditLogEntry) AuditEvent {
	payload := make(map[string]interface{}, len(entry.Details)+1)
	for k, v := range entry.Details {
		payload[k] = v
	}
	payload["audit_id"] = entry.ID

	return AuditEvent{
		Service:    ServiceName,
		EventType:  "approval_" + strings.ToLower(entry.Action),
		EntityID:   entry.ApprovalID,
		Actor:      entry.PerformedBy,
		OccurredAt: entry.Timestamp,
		Payload:    payload,
	}
}
