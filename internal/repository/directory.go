package repository

import (
	"context"
	"database/sql"
	"fmt"

	"approval-service/internal/domain"

	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// postgresDirectoryRepository reads the reviewer roster from the platform users table.
type postgresDirectoryRepository struct {
	db *sql.DB
}

func NewPostgresDirectoryRepository(db *sql.DB) *postgresDirectoryRepository {
	return &postgresDirectoryRepository{db: db}
}

func (r *postgresDirectoryRepository) ListActiveReviewers(ctx context.Context) ([]domain.Reviewer, error) {
	return r.listByRoles(ctx, []string{"REVIEWER", "ADMIN"})
}

func (r *postgresDirectoryRepository) ListSeniorReviewers(ctx context.Context) ([]domain.Reviewer, error) {
	return r.listByRoles(ctx, []string{"ADMIN"})
}

func (r *postgresDirectoryRepository) listByRoles(ctx context.Context, roles []string) ([]domain.Reviewer, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT id, email, name, role
		FROM users
		WHERE role = ANY($1) AND status = 'ACTIVE'
		ORDER BY id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(roles))
	if err != nil {
		log.WithError(err).WithField("roles", roles).Error("Failed to list reviewers")
		return nil, fmt.Errorf("failed to list reviewers: %w", err)
	}
	defer rows.Close()

	var reviewers []domain.Reviewer
	for rows.Next() {
		var reviewer domain.Reviewer
		if err := rows.Scan(&reviewer.ID, &reviewer.Email, &reviewer.Name, &reviewer.Role); err != nil {
			log.WithError(err).Error("Failed to scan reviewer row")
			return nil, fmt.Errorf("failed to scan reviewer row: %w", err)
		}
		reviewers = append(reviewers, reviewer)
	}

	if err := rows.Err(); err != nil {
		log.WithError(err).Error("Error iterating over reviewer rows")
		return nil, fmt.Errorf("error iterating over reviewer rows: %w", err)
	}
	return reviewers, nil
}
