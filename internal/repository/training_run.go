package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/srv328/coffee-classification/internal/models"
)

// TrainingRunRepository handles database operations for the training_runs table.
type TrainingRunRepository interface {
	CreateRun(ctx context.Context, run *models.TrainingRun) error
	FinishRun(ctx context.Context, run *models.TrainingRun) error
	GetRun(ctx context.Context, id string) (*models.TrainingRun, error)
	ListRuns(ctx context.Context, limit int) ([]models.TrainingRun, error)
	GetRunStats(ctx context.Context) (*RunStats, error)
}

// RunStats summarises the training history.
type RunStats struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByTrigger     map[string]int `json:"by_trigger"`
	LastSucceeded *time.Time     `json:"last_succeeded,omitempty"`
	LastFailed    *time.Time     `json:"last_failed,omitempty"`
}

type trainingRunRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewTrainingRunRepository creates a new training run repository.
func NewTrainingRunRepository(db *sqlx.DB, logger *zap.Logger) TrainingRunRepository {
	return &trainingRunRepository{db: db, logger: logger}
}

const trainingRunColumns = `
	id, status, trigger_reason, started_at, finished_at,
	sample_count, feature_width, class_count,
	train_loss, train_accuracy, validation_loss, validation_accuracy,
	schema_fingerprint, error_message`

// CreateRun saves a newly started run.
func (r *trainingRunRepository) CreateRun(ctx context.Context, run *models.TrainingRun) error {
	query := `INSERT INTO training_runs (` + trainingRunColumns + `) VALUES (
		:id, :status, :trigger_reason, :started_at, :finished_at,
		:sample_count, :feature_width, :class_count,
		:train_loss, :train_accuracy, :validation_loss, :validation_accuracy,
		:schema_fingerprint, :error_message)`
	_, err := r.db.NamedExecContext(ctx, query, run)
	return translateError(err)
}

// FinishRun stores the outcome of a run.
func (r *trainingRunRepository) FinishRun(ctx context.Context, run *models.TrainingRun) error {
	query := `
		UPDATE training_runs SET
			status = :status,
			finished_at = :finished_at,
			sample_count = :sample_count,
			feature_width = :feature_width,
			class_count = :class_count,
			train_loss = :train_loss,
			train_accuracy = :train_accuracy,
			validation_loss = :validation_loss,
			validation_accuracy = :validation_accuracy,
			schema_fingerprint = :schema_fingerprint,
			error_message = :error_message
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, run)
	if err != nil {
		return translateError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// The start was never recorded; keep the outcome anyway.
		r.logger.Warn("Training run missing at finish, inserting", zap.String("run_id", run.ID))
		return r.CreateRun(ctx, run)
	}
	return nil
}

// GetRun returns one run by id.
func (r *trainingRunRepository) GetRun(ctx context.Context, id string) (*models.TrainingRun, error) {
	var run models.TrainingRun
	query := r.db.Rebind(`SELECT ` + trainingRunColumns + ` FROM training_runs WHERE id = ?`)
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, translateError(err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first.
func (r *trainingRunRepository) ListRuns(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	if limit <= 0 {
		limit = 50
	}
	runs := []models.TrainingRun{}
	query := r.db.Rebind(`SELECT ` + trainingRunColumns + ` FROM training_runs ORDER BY started_at DESC, id LIMIT ?`)
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRunStats returns counts by status and trigger and the latest finish of
// each outcome.
func (r *trainingRunRepository) GetRunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{ByStatus: map[string]int{}, ByTrigger: map[string]int{}}

	var groups []struct {
		Status  string `db:"status"`
		Trigger string `db:"trigger_reason"`
		Count   int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &groups,
		`SELECT status, trigger_reason, COUNT(*) AS count FROM training_runs GROUP BY status, trigger_reason`); err != nil {
		return nil, err
	}
	for _, g := range groups {
		stats.Total += g.Count
		stats.ByStatus[g.Status] += g.Count
		stats.ByTrigger[g.Trigger] += g.Count
	}

	var err error
	if stats.LastSucceeded, err = r.lastFinished(ctx, models.RunStatusSucceeded); err != nil {
		return nil, err
	}
	if stats.LastFailed, err = r.lastFinished(ctx, models.RunStatusFailed); err != nil {
		return nil, err
	}
	return stats, nil
}

func (r *trainingRunRepository) lastFinished(ctx context.Context, status string) (*time.Time, error) {
	var finished []time.Time
	query := r.db.Rebind(`SELECT finished_at FROM training_runs
		WHERE status = ? AND finished_at IS NOT NULL ORDER BY finished_at DESC LIMIT 1`)
	if err := r.db.SelectContext(ctx, &finished, query, status); err != nil {
		return nil, err
	}
	if len(finished) == 0 {
		return nil, nil
	}
	return &finished[0], nil
}
