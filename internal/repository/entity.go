package repository

import (
	"context"
	"database/sql"
	"fmt"

	"approval-service/internal/domain"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// postgresEntityRepository writes review outcomes onto the records owned by
// other services. Table and column names come from domain.TargetFor only.
type postgresEntityRepository struct {
	db *sql.DB
}

func NewPostgresEntityRepository(db *sql.DB) *postgresEntityRepository {
	return &postgresEntityRepository{db: db}
}

// UpdateStatus sets the entity's status and returns the id of the party to notify.
// It runs after a decision has committed, so it carries no queryTimeout of its own.
func (r *postgresEntityRepository) UpdateStatus(ctx context.Context, entityType domain.EntityType, entityID, status string) (string, error) {
	target, ok := domain.TargetFor(entityType)
	if !ok {
		return "", fmt.Errorf("%w: %s has no status target", domain.ErrInvalidEntityType, entityType)
	}

	log.WithFields(log.Fields{
		"entity_type": entityType,
		"entity_id":   entityID,
		"status":      status,
	}).Info("Updating reviewed entity status")

	query := fmt.Sprintf(`UPDATE %s SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING %s`,
		pq.QuoteIdentifier(target.Table), pq.QuoteIdentifier(target.OwnerColumn))

	var ownerID string
	err := r.db.QueryRowContext(ctx, query, status, entityID).Scan(&ownerID)
	if err == sql.ErrNoRows {
		return "", domain.ErrEntityNotFound
	}
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"entity_type": entityType,
			"entity_id":   entityID,
		}).Error("Failed to update reviewed entity status")
		return "", fmt.Errorf("failed to update %s status: %w", target.Table, err)
	}

	return ownerID, nil
}
