package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Classification(t *testing.T) {
	assert.True(t, StatusPending.IsOpen())
	assert.True(t, StatusUnderReview.IsOpen())
	assert.True(t, StatusRequiresMoreInfo.IsOpen())
	assert.False(t, StatusEscalated.IsOpen())
	assert.False(t, StatusApproved.IsOpen())

	assert.True(t, StatusApproved.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
	assert.False(t, StatusEscalated.IsTerminal())

	for _, s := range DecidableStatuses() {
		assert.False(t, s.IsTerminal(), "status %s", s)
	}
}

func TestPriority_Rank(t *testing.T) {
	assert.Greater(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.False(t, Priority("CRITICAL").Valid())
}

func TestApprovalRequest_SLABreached(t *testing.T) {
	now := time.Now()
	r := ApprovalRequest{Status: StatusPending, SLADeadline: now.Add(-time.Minute)}
	assert.True(t, r.SLABreached(now))

	r.Status = StatusApproved
	assert.False(t, r.SLABreached(now))

	r.Status = StatusPending
	r.SLADeadline = now.Add(time.Minute)
	assert.False(t, r.SLABreached(now))
}

func TestSubmitRequest_Validate(t *testing.T) {
	urgent := PriorityUrgent
	bogus := Priority("NOW")

	assert.NoError(t, SubmitRequest{EntityType: EntityPitch, EntityID: "p1", RequestedBy: "u1", Priority: &urgent}.Validate())
	assert.ErrorIs(t, SubmitRequest{EntityType: "LOAN", EntityID: "p1", RequestedBy: "u1"}.Validate(), ErrInvalidEntityType)
	assert.ErrorIs(t, SubmitRequest{EntityType: EntityPitch, EntityID: " ", RequestedBy: "u1"}.Validate(), ErrInvalidRequest)
	assert.ErrorIs(t, SubmitRequest{EntityType: EntityPitch, EntityID: "p1", RequestedBy: "u1", Priority: &bogus}.Validate(), ErrInvalidPriority)
}

func TestDecision_Validate(t *testing.T) {
	assert.NoError(t, Decision{Decision: DecisionEscalate, ReviewerID: "r1"}.Validate())
	assert.ErrorIs(t, Decision{Decision: "MAYBE", ReviewerID: "r1"}.Validate(), ErrInvalidDecision)
	assert.ErrorIs(t, Decision{Decision: DecisionApprove}.Validate(), ErrInvalidRequest)
}

func TestNormalizePage(t *testing.T) {
	limit, offset := NormalizePage(0, -5)
	assert.Equal(t, DefaultQueueLimit, limit)
	assert.Equal(t, 0, offset)

	limit, offset = NormalizePage(1000, 40)
	assert.Equal(t, MaxQueueLimit, limit)
	assert.Equal(t, 40, offset)
}

func TestErrorCode(t *testing.T) {
	wrapped := fmt.Errorf("process approval: %w", ErrApprovalAlreadyProcessed)
	assert.Equal(t, "APPROVAL_ALREADY_PROCESSED", ErrorCode(wrapped))
	assert.Equal(t, "DUPLICATE_REQUEST", ErrorCode(ErrDuplicateRequest))
	assert.Equal(t, "APPROVAL_NOT_FOUND", ErrorCode(ErrApprovalNotFound))
	assert.Equal(t, "INTERNAL_ERROR", ErrorCode(errors.New("boom")))
}

func TestNewAuditEvent(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := NewAuditEvent(AuditLogEntry{
		ID:          "a1",
		ApprovalID:  "req-1",
		Action:      ActionMoreInfoRequested,
		PerformedBy: "rev-1",
		Details:     map[string]interface{}{"notes": "need bank statement"},
		Timestamp:   ts,
	})

	assert.Equal(t, ServiceName, event.Service)
	assert.Equal(t, "approval_more_info_requested", event.EventType)
	assert.Equal(t, "req-1", event.EntityID)
	assert.Equal(t, "rev-1", event.Actor)
	assert.Equal(t, ts, event.OccurredAt)
	assert.Equal(t, "need bank statement", event.Payload["notes"])
	assert.Equal(t, "a1", event.Payload["audit_id"])
}
