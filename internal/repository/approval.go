package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"approval-service/internal/domain"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const queryTimeout = 5 * time.Second

const approvalColumns = `id, entity_type, entity_id, requested_by, status, priority, reason,
	sla_deadline, assigned_to, reviewed_by, reviewed_at, review_notes,
	tags, metadata, created_at, updated_at`

// priorityRank mirrors domain.Priority.Rank for ORDER BY.
const priorityRank = `CASE priority
	WHEN 'URGENT' THEN 4
	WHEN 'HIGH' THEN 3
	WHEN 'MEDIUM' THEN 2
	WHEN 'LOW' THEN 1
	ELSE 0 END`

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

type postgresApprovalRepository struct {
	db *sql.DB
}

func NewPostgresApprovalRepository(db *sql.DB) *postgresApprovalRepository {
	return &postgresApprovalRepository{db: db}
}

func scanApproval(row rowScanner) (*domain.ApprovalRequest, error) {
	var (
		req                                domain.ApprovalRequest
		reason                             sql.NullString
		assignedTo, reviewedBy, reviewNote sql.NullString
		reviewedAt                         sql.NullTime
		tags                               pq.StringArray
		metadata                           []byte
	)

	err := row.Scan(
		&req.ID,
		&req.EntityType,
		&req.EntityID,
		&req.RequestedBy,
		&req.Status,
		&req.Priority,
		&reason,
		&req.SLADeadline,
		&assignedTo,
		&reviewedBy,
		&reviewedAt,
		&reviewNote,
		&tags,
		&metadata,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.Reason = reason.String
	if assignedTo.Valid {
		req.AssignedTo = &assignedTo.String
	}
	if reviewedBy.Valid {
		req.ReviewedBy = &reviewedBy.String
	}
	if reviewedAt.Valid {
		req.ReviewedAt = &reviewedAt.Time
	}
	if reviewNote.Valid {
		req.ReviewNotes = &reviewNote.String
	}
	req.Tags = []string(tags)
	if req.Tags == nil {
		req.Tags = []string{}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &req.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}

	return &req, nil
}

func encodeJSON(v map[string]interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func statusStrings(statuses []domain.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func insertAudit(ctx context.Context, exec interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}, entry domain.AuditLogEntry) error {
	details, err := encodeJSON(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}

	query := `INSERT INTO approval_audit_logs (id, approval_id, action, performed_by, details, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = exec.ExecContext(ctx, query,
		entry.ID,
		entry.ApprovalID,
		entry.Action,
		entry.PerformedBy,
		details,
		entry.Timestamp,
	)
	return err
}

// Create inserts a request together with its first audit entry. The partial
// unique index on open requests turns a concurrent duplicate into ErrDuplicateRequest.
func (r *postgresApprovalRepository) Create(ctx context.Context, req *domain.ApprovalRequest, entry domain.AuditLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	log.WithFields(log.Fields{
		"approval_id": req.ID,
		"entity_type": req.EntityType,
		"entity_id":   req.EntityID,
		"status":      req.Status,
	}).Info("Creating approval request")

	metadata, err := encodeJSON(req.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO approval_requests (
			id, entity_type, entity_id, requested_by, status, priority, reason,
			sla_deadline, assigned_to, reviewed_by, reviewed_at, review_notes,
			tags, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = tx.ExecContext(ctx, query,
		req.ID,
		req.EntityType,
		req.EntityID,
		req.RequestedBy,
		req.Status,
		req.Priority,
		req.Reason,
		req.SLADeadline,
		req.AssignedTo,
		req.ReviewedBy,
		req.ReviewedAt,
		req.ReviewNotes,
		pq.Array(req.Tags),
		metadata,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateRequest
		}
		log.WithError(err).WithField("approval_id", req.ID).Error("Failed to create approval request")
		return fmt.Errorf("failed to create approval request: %w", err)
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		log.WithError(err).WithField("approval_id", req.ID).Error("Failed to write creation audit entry")
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit approval request: %w", err)
	}
	return nil
}

func (r *postgresApprovalRepository) GetByID(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = $1`

	req, err := scanApproval(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrApprovalNotFound
	}
	if err != nil {
		log.WithError(err).WithField("approval_id", id).Error("Failed to get approval request by ID")
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	return req, nil
}

func (r *postgresApprovalRepository) FindOpenByEntity(ctx context.Context, entityType domain.EntityType, entityID string) (*domain.ApprovalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + approvalColumns + `
	          FROM approval_requests
	          WHERE entity_type = $1 AND entity_id = $2 AND status = ANY($3)
	          LIMIT 1`

	req, err := scanApproval(r.db.QueryRowContext(ctx, query, entityType, entityID, pq.Array(statusStrings(domain.OpenStatuses()))))
	if err == sql.ErrNoRows {
		return nil, domain.ErrApprovalNotFound
	}
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"entity_type": entityType,
			"entity_id":   entityID,
		}).Error("Failed to look up open approval request")
		return nil, fmt.Errorf("failed to find open approval request: %w", err)
	}
	return req, nil
}

// Transition applies change only while the request is still in one of the
// from statuses, writing entry in the same transaction.
func (r *postgresApprovalRepository) Transition(ctx context.Context, id string, from []domain.Status, change domain.TransitionChange, entry domain.AuditLogEntry) (*domain.ApprovalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	setParts := []string{"status = $1"}
	args := []interface{}{change.Status}
	argPos := 2

	if change.Priority != nil {
		setParts = append(setParts, fmt.Sprintf("priority = $%d", argPos))
		args = append(args, *change.Priority)
		argPos++
	}
	if change.SLADeadline != nil {
		setParts = append(setParts, fmt.Sprintf("sla_deadline = $%d", argPos))
		args = append(args, *change.SLADeadline)
		argPos++
	}
	if change.AssignedTo != nil {
		setParts = append(setParts, fmt.Sprintf("assigned_to = $%d", argPos))
		args = append(args, *change.AssignedTo)
		argPos++
	}
	if change.ReviewedBy != nil {
		setParts = append(setParts, fmt.Sprintf("reviewed_by = $%d", argPos))
		args = append(args, *change.ReviewedBy)
		argPos++
	}
	if change.ReviewedAt != nil {
		setParts = append(setParts, fmt.Sprintf("reviewed_at = $%d", argPos))
		args = append(args, *change.ReviewedAt)
		argPos++
	}
	if change.ReviewNotes != nil {
		setParts = append(setParts, fmt.Sprintf("review_notes = $%d", argPos))
		args = append(args, *change.ReviewNotes)
		argPos++
	}
	if change.Tags != nil {
		setParts = append(setParts, fmt.Sprintf("tags = $%d", argPos))
		args = append(args, pq.Array(change.Tags))
		argPos++
	}
	setParts = append(setParts, "updated_at = NOW()")

	query := fmt.Sprintf(`UPDATE approval_requests
	                      SET %s
	                      WHERE id = $%d AND status = ANY($%d)
	                      RETURNING %s`,
		strings.Join(setParts, ", "), argPos, argPos+1, approvalColumns)
	args = append(args, id, pq.Array(statusStrings(from)))

	log.WithFields(log.Fields{
		"approval_id": id,
		"to_status":   change.Status,
		"action":      entry.Action,
	}).Info("Transitioning approval request")

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	req, err := scanApproval(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, r.transitionConflict(ctx, tx, id)
	}
	if isUniqueViolation(err) {
		// reopening an escalated request while another open one exists for the entity
		return nil, domain.ErrDuplicateRequest
	}
	if err != nil {
		log.WithError(err).WithField("approval_id", id).Error("Failed to transition approval request")
		return nil, fmt.Errorf("failed to transition approval request: %w", err)
	}

	if err := insertAudit(ctx, tx, entry); err != nil {
		log.WithError(err).WithField("approval_id", id).Error("Failed to write transition audit entry")
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return req, nil
}

// transitionConflict explains why a guarded update matched no rows.
func (r *postgresApprovalRepository) transitionConflict(ctx context.Context, tx *sql.Tx, id string) error {
	var status domain.Status
	err := tx.QueryRowContext(ctx, `SELECT status FROM approval_requests WHERE id = $1`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return domain.ErrApprovalNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read approval status: %w", err)
	}
	if status.IsTerminal() {
		return domain.ErrApprovalAlreadyProcessed
	}
	return domain.ErrInvalidTransition
}

// AssignIfUnassigned sets the reviewer only when nobody holds the request yet.
func (r *postgresApprovalRepository) AssignIfUnassigned(ctx context.Context, id, reviewerID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `UPDATE approval_requests
	          SET assigned_to = $1, updated_at = NOW()
	          WHERE id = $2 AND assigned_to IS NULL`

	result, err := r.db.ExecContext(ctx, query, reviewerID, id)
	if err != nil {
		log.WithError(err).WithField("approval_id", id).Error("Failed to assign approval request")
		return false, fmt.Errorf("failed to assign approval request: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("could not determine rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

func (r *postgresApprovalRepository) Reassign(ctx context.Context, id, reviewerID string) (*domain.ApprovalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `UPDATE approval_requests
	          SET assigned_to = $1, updated_at = NOW()
	          WHERE id = $2
	          RETURNING ` + approvalColumns

	req, err := scanApproval(r.db.QueryRowContext(ctx, query, reviewerID, id))
	if err == sql.ErrNoRows {
		return nil, domain.ErrApprovalNotFound
	}
	if err != nil {
		log.WithError(err).WithField("approval_id", id).Error("Failed to reassign approval request")
		return nil, fmt.Errorf("failed to reassign approval request: %w", err)
	}
	return req, nil
}

// CountOpenAssigned returns the open workload of each reviewer. Reviewers
// with no open requests are present with a zero count.
func (r *postgresApprovalRepository) CountOpenAssigned(ctx context.Context, reviewerIDs []string) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	counts := make(map[string]int, len(reviewerIDs))
	for _, id := range reviewerIDs {
		counts[id] = 0
	}
	if len(reviewerIDs) == 0 {
		return counts, nil
	}

	query := `SELECT assigned_to, COUNT(*)
	          FROM approval_requests
	          WHERE assigned_to = ANY($1) AND status = ANY($2)
	          GROUP BY assigned_to`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(reviewerIDs), pq.Array(statusStrings(domain.OpenStatuses())))
	if err != nil {
		log.WithError(err).Error("Failed to count reviewer workload")
		return nil, fmt.Errorf("failed to count reviewer workload: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var reviewerID string
		var count int
		if err := rows.Scan(&reviewerID, &count); err != nil {
			return nil, fmt.Errorf("failed to scan workload row: %w", err)
		}
		counts[reviewerID] = count
	}

	return counts, rows.Err()
}

func buildQueueWhere(filter domain.QueueFilter, now time.Time) (string, []interface{}) {
	var where strings.Builder
	args := []interface{}{}
	argPos := 1

	where.WriteString(" WHERE 1=1")

	if filter.EntityType != nil {
		where.WriteString(fmt.Sprintf(" AND entity_type = $%d", argPos))
		args = append(args, *filter.EntityType)
		argPos++
	}
	if filter.Status != nil {
		where.WriteString(fmt.Sprintf(" AND status = $%d", argPos))
		args = append(args, *filter.Status)
		argPos++
	}
	if filter.Priority != nil {
		where.WriteString(fmt.Sprintf(" AND priority = $%d", argPos))
		args = append(args, *filter.Priority)
		argPos++
	}
	if filter.AssignedTo != nil {
		where.WriteString(fmt.Sprintf(" AND assigned_to = $%d", argPos))
		args = append(args, *filter.AssignedTo)
		argPos++
	}
	if filter.From != nil {
		where.WriteString(fmt.Sprintf(" AND created_at >= $%d", argPos))
		args = append(args, *filter.From)
		argPos++
	}
	if filter.To != nil {
		where.WriteString(fmt.Sprintf(" AND created_at <= $%d", argPos))
		args = append(args, *filter.To)
		argPos++
	}
	if filter.SLABreached {
		where.WriteString(fmt.Sprintf(" AND status = ANY($%d) AND sla_deadline < $%d", argPos, argPos+1))
		args = append(args, pq.Array(statusStrings(domain.OpenStatuses())), now)
	}

	return where.String(), args
}

// ListQueue returns one page of requests, most urgent first and oldest first
// within a priority, along with the total number of matches.
func (r *postgresApprovalRepository) ListQueue(ctx context.Context, filter domain.QueueFilter, limit, offset int, now time.Time) ([]domain.ApprovalRequest, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where, args := buildQueueWhere(filter, now)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM approval_requests`+where, args...).Scan(&total); err != nil {
		log.WithError(err).Error("Failed to count approval queue")
		return nil, 0, fmt.Errorf("failed to count approval queue: %w", err)
	}

	argPos := len(args) + 1
	query := fmt.Sprintf(`SELECT %s FROM approval_requests%s
	                      ORDER BY %s DESC, created_at ASC
	                      LIMIT $%d OFFSET $%d`,
		approvalColumns, where, priorityRank, argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to list approval queue")
		return nil, 0, fmt.Errorf("failed to list approval queue: %w", err)
	}
	defer rows.Close()

	items := []domain.ApprovalRequest{}
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			log.WithError(err).Error("Failed to scan approval row")
			return nil, 0, fmt.Errorf("failed to scan approval row: %w", err)
		}
		items = append(items, *req)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating over approval rows: %w", err)
	}
	return items, total, nil
}

// ListCreatedBetween feeds the statistics aggregator. Nil bounds are open.
func (r *postgresApprovalRepository) ListCreatedBetween(ctx context.Context, from, to *time.Time) ([]domain.ApprovalRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + approvalColumns + `
	          FROM approval_requests
	          WHERE ($1::timestamptz IS NULL OR created_at >= $1)
	            AND ($2::timestamptz IS NULL OR created_at <= $2)`

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		log.WithError(err).Error("Failed to list approval requests for statistics")
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	defer rows.Close()

	var items []domain.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval row: %w", err)
		}
		items = append(items, *req)
	}
	return items, rows.Err()
}
