package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"approval-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

type postgresAuditRepository struct {
	db *sql.DB
}

func NewPostgresAuditRepository(db *sql.DB) *postgresAuditRepository {
	return &postgresAuditRepository{db: db}
}

// Append only ever inserts; audit rows are never updated or deleted.
func (r *postgresAuditRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := insertAudit(ctx, r.db, entry); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"approval_id": entry.ApprovalID,
			"action":      entry.Action,
		}).Error("Failed to append audit entry")
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *postgresAuditRepository) ListByApproval(ctx context.Context, approvalID string) ([]domain.AuditLogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT id, approval_id, action, performed_by, details, created_at
	          FROM approval_audit_logs
	          WHERE approval_id = $1
	          ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, approvalID)
	if err != nil {
		log.WithError(err).WithField("approval_id", approvalID).Error("Failed to list audit entries")
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []domain.AuditLogEntry{}
	for rows.Next() {
		var entry domain.AuditLogEntry
		var details []byte
		if err := rows.Scan(
			&entry.ID,
			&entry.ApprovalID,
			&entry.Action,
			&entry.PerformedBy,
			&details,
			&entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit row: %w", err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
