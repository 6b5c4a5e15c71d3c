package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	"approval-service/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approvalColumnNames = []string{
	"id", "entity_type", "entity_id", "requested_by", "status", "priority", "reason",
	"sla_deadline", "assigned_to", "reviewed_by", "reviewed_at", "review_notes",
	"tags", "metadata", "created_at", "updated_at",
}

func newMock(t *testing.T) (*postgresApprovalRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresApprovalRepository(db), mock
}

func sampleRequest(now time.Time) *domain.ApprovalRequest {
	return &domain.ApprovalRequest{
		ID:          "2f1c9a52-5a0e-4a51-9a0e-0d3a2b0c1e11",
		EntityType:  domain.EntityInvestment,
		EntityID:    "inv_1",
		RequestedBy: "investor_7",
		Status:      domain.StatusPending,
		Priority:    domain.PriorityHigh,
		SLADeadline: now.Add(24 * time.Hour),
		Tags:        []string{},
		Metadata:    map[string]interface{}{"amount": 25000},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestPostgresApprovalRepository_Create(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	req := sampleRequest(now)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_requests")).
		WithArgs(req.ID, req.EntityType, req.EntityID, req.RequestedBy, req.Status, req.Priority, req.Reason,
			req.SLADeadline, nil, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg(), req.CreatedAt, req.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_audit_logs")).
		WithArgs("audit-1", req.ID, domain.ActionSubmitted, "investor_7", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), req, domain.AuditLogEntry{
		ID:          "audit-1",
		ApprovalID:  req.ID,
		Action:      domain.ActionSubmitted,
		PerformedBy: "investor_7",
		Timestamp:   now,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApprovalRepository_Create_UniqueViolationIsDuplicate(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	req := sampleRequest(now)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_requests")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), req, domain.AuditLogEntry{ID: "audit-1", ApprovalID: req.ID, Action: domain.ActionSubmitted})
	assert.ErrorIs(t, err, domain.ErrDuplicateRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApprovalRepository_GetByID(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(approvalColumnNames).
		AddRow("req-1", "KYC", "kyc_9", "user_3", "APPROVED", "URGENT", nil,
			now.Add(4*time.Hour), "rev-1", "rev-1", now, "looks good",
			"{verified,manual}", []byte(`{"source":"onboarding"}`), now.Add(-time.Hour), now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM approval_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnRows(rows)

	req, err := repo.GetByID(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EntityKYC, req.EntityType)
	assert.Equal(t, domain.StatusApproved, req.Status)
	require.NotNil(t, req.AssignedTo)
	assert.Equal(t, "rev-1", *req.AssignedTo)
	require.NotNil(t, req.ReviewNotes)
	assert.Equal(t, "looks good", *req.ReviewNotes)
	assert.Equal(t, []string{"verified", "manual"}, req.Tags)
	assert.Equal(t, "onboarding", req.Metadata["source"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApprovalRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM approval_requests WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(approvalColumnNames))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrApprovalNotFound)
}

func TestPostgresApprovalRepository_Transition(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()
	reviewer := "rev-2"
	notes := "approved after call"

	rows := sqlmock.NewRows(approvalColumnNames).
		AddRow("req-1", "INVESTMENT", "inv_1", "investor_7", "APPROVED", "HIGH", "",
			now.Add(24*time.Hour), nil, reviewer, now, notes,
			"{}", []byte(`{}`), now.Add(-time.Hour), now)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE approval_requests")).
		WithArgs(domain.StatusApproved, reviewer, now, notes, sqlmock.AnyArg(), "req-1", sqlmock.AnyArg()).
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approval_audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	req, err := repo.Transition(context.Background(), "req-1", domain.DecidableStatuses(), domain.TransitionChange{
		Status:      domain.StatusApproved,
		ReviewedBy:  &reviewer,
		ReviewedAt:  &now,
		ReviewNotes: &notes,
		Tags:        []string{},
	}, domain.AuditLogEntry{ID: "audit-2", ApprovalID: "req-1", Action: domain.ActionApproved, PerformedBy: reviewer, Timestamp: now})

	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, req.Status)
	assert.Nil(t, req.AssignedTo)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApprovalRepository_Transition_AlreadyProcessed(t *testing.T) {
	repo, mock := newMock(t)
	reviewer := "rev-2"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE approval_requests")).
		WillReturnRows(sqlmock.NewRows(approvalColumnNames))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM approval_requests WHERE id = $1")).
		WithArgs("req-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("REJECTED"))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), "req-1", domain.DecidableStatuses(), domain.TransitionChange{
		Status:     domain.StatusApproved,
		ReviewedBy: &reviewer,
	}, domain.AuditLogEntry{ID: "audit-3", ApprovalID: "req-1", Action: domain.ActionApproved})

	assert.ErrorIs(t, err, domain.ErrApprovalAlreadyProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresApprovalRepository_Transition_InvalidFromState(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE approval_requests")).
		WillReturnRows(sqlmock.NewRows(approvalColumnNames))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM approval_requests")).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("ESCALATED"))
	mock.ExpectRollback()

	_, err := repo.Transition(context.Background(), "req-1",
		[]domain.Status{domain.StatusPending, domain.StatusRequiresMoreInfo},
		domain.TransitionChange{Status: domain.StatusUnderReview},
		domain.AuditLogEntry{ID: "audit-4", ApprovalID: "req-1", Action: domain.ActionReviewStarted})

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPostgresApprovalRepository_AssignIfUnassigned(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $2 AND assigned_to IS NULL")).
		WithArgs("rev-1", "req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $2 AND assigned_to IS NULL")).
		WithArgs("rev-1", "req-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assigned, err := repo.AssignIfUnassigned(context.Background(), "req-1", "rev-1")
	require.NoError(t, err)
	assert.True(t, assigned)

	assigned, err = repo.AssignIfUnassigned(context.Background(), "req-1", "rev-1")
	require.NoError(t, err)
	assert.False(t, assigned)
}

func TestPostgresApprovalRepository_CountOpenAssigned(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY assigned_to")).
		WillReturnRows(sqlmock.NewRows([]string{"assigned_to", "count"}).AddRow("rev-a", 3))

	counts, err := repo.CountOpenAssigned(context.Background(), []string{"rev-a", "rev-b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"rev-a": 3, "rev-b": 0}, counts)
}

func TestBuildQueueWhere(t *testing.T) {
	now := time.Now()
	et := domain.EntityPitch
	assignee := "rev-1"

	where, args := buildQueueWhere(domain.QueueFilter{
		EntityType:  &et,
		AssignedTo:  &assignee,
		SLABreached: true,
	}, now)

	assert.Equal(t, " WHERE 1=1 AND entity_type = $1 AND assigned_to = $2 AND status = ANY($3) AND sla_deadline < $4", where)
	require.Len(t, args, 4)
	assert.Equal(t, domain.EntityPitch, args[0])
	assert.Equal(t, now, args[3])

	where, args = buildQueueWhere(domain.QueueFilter{}, now)
	assert.Equal(t, " WHERE 1=1", where)
	assert.Empty(t, args)
}

func TestPostgresApprovalRepository_ListQueue(t *testing.T) {
	repo, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM approval_requests WHERE 1=1 AND status = ANY($1) AND sla_deadline < $2")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	rows := sqlmock.NewRows(approvalColumnNames).
		AddRow("req-1", "KYC", "kyc_1", "u1", "PENDING", "URGENT", "", now.Add(-time.Hour), nil, nil, nil, nil, "{}", []byte(`{}`), now.Add(-5*time.Hour), now).
		AddRow("req-2", "PITCH", "p_1", "u2", "PENDING", "MEDIUM", "", now.Add(-time.Minute), nil, nil, nil, nil, "{}", []byte(`{}`), now.Add(-73*time.Hour), now)

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $3 OFFSET $4")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 2, 0).
		WillReturnRows(rows)

	items, total, err := repo.ListQueue(context.Background(), domain.QueueFilter{SLABreached: true}, 2, 0, now)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "req-1", items[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListQueue_OrdersByPriorityThenAge(t *testing.T) {
	repo, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`ORDER BY CASE priority[\s\S]*END DESC, created_at ASC`).
		WillReturnRows(sqlmock.NewRows(approvalColumnNames))

	items, total, err := repo.ListQueue(context.Background(), domain.QueueFilter{}, 10, 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, items)
	assert.True(t, strings.Contains(priorityRank, "'URGENT' THEN 4"))
}

func TestPostgresApprovalRepository_ListCreatedBetween(t *testing.T) {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now

	tests := []struct {
		name     string
		from, to *time.Time
		args     []driver.Value
	}{
		{"open bounds", nil, nil, []driver.Value{nil, nil}},
		{"from only", &from, nil, []driver.Value{from, nil}},
		{"both bounds", &from, &to, []driver.Value{from, to}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newMock(t)

			rows := sqlmock.NewRows(approvalColumnNames).
				AddRow("req-1", "PITCH", "p_1", "founder_3", "PENDING", "HIGH", nil,
					now.Add(24*time.Hour), nil, nil, nil, nil,
					"{}", []byte(`{}`), now.Add(-time.Hour), now.Add(-time.Hour))

			mock.ExpectQuery(regexp.QuoteMeta("WHERE ($1::timestamptz IS NULL OR created_at >= $1)")).
				WithArgs(tt.args...).
				WillReturnRows(rows)

			items, err := repo.ListCreatedBetween(context.Background(), tt.from, tt.to)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, domain.EntityPitch, items[0].EntityType)
			assert.Nil(t, items[0].AssignedTo)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
