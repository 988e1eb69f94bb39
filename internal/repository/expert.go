package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/models"
)

type ExpertRepository interface {
	CreateFirstExpert(ctx context.Context, expert *models.Expert) error
	GetExpertByUsername(ctx context.Context, username string) (*models.Expert, error)
}

type expertRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewExpertRepository(db *sqlx.DB, logger *zap.Logger) ExpertRepository {
	return &expertRepository{db: db, logger: logger}
}

// CreateFirstExpert inserts expert only while no expert exists. Otherwise it
// returns ErrDuplicate.
func (r *expertRepository) CreateFirstExpert(ctx context.Context, expert *models.Expert) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if r.db.DriverName() == DriverPostgres {
		// Blocks a concurrent first registration until this one commits.
		if _, err := tx.ExecContext(ctx, `LOCK TABLE experts IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock experts: %w", err)
		}
	}

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM experts`); err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: an expert is already registered", ErrDuplicate)
	}

	expert.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	query := tx.Rebind(`INSERT INTO experts (username, password_hash, role, created_at) VALUES (?, ?, ?, ?) RETURNING id`)
	if err := tx.QueryRowxContext(ctx, query, expert.Username, expert.PasswordHash, expert.Role, expert.CreatedAt).Scan(&expert.ID); err != nil {
		return translateError(err)
	}
	return tx.Commit()
}

func (r *expertRepository) GetExpertByUsername(ctx context.Context, username string) (*models.Expert, error) {
	var expert models.Expert
	query := r.db.Rebind(`SELECT id, username, password_hash, role, created_at FROM experts WHERE username = ?`)
	if err := r.db.GetContext(ctx, &expert, query, username); err != nil {
		return nil, translateError(err)
	}
	return &expert, nil
}
