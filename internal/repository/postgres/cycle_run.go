package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"helios/internal/domain/cycle"
	"helios/pkg/errors"
)

// Compile-time check
var _ cycle.Repository = (*CycleRunRepository)(nil)

// CycleRunRepository implements cycle.Repository using sqlx
type CycleRunRepository struct {
	db DBTX
}

// NewCycleRunRepository creates a new cycle run repository
func NewCycleRunRepository(db DBTX) *CycleRunRepository {
	return &CycleRunRepository{db: db}
}

// Create inserts a new run
func (r *CycleRunRepository) Create(ctx context.Context, run *cycle.Run) error {
	query := `
		INSERT INTO cycle_runs (
			id, ticker, stage, outcome, error, started_at, updated_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Ticker, run.Stage, run.Outcome, run.Error,
		run.StartedAt, run.UpdatedAt, run.FinishedAt,
	)

	return err
}

// UpdateStage records a non-terminal stage transition
func (r *CycleRunRepository) UpdateStage(ctx context.Context, id uuid.UUID, stage cycle.Stage) error {
	query := `UPDATE cycle_runs SET stage = $2, updated_at = $3 WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, stage, time.Now().UTC())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "cycle run %s", id)
	}

	return nil
}

// Finish records the terminal stage and outcome
func (r *CycleRunRepository) Finish(ctx context.Context, id uuid.UUID, stage cycle.Stage, outcome cycle.Outcome, errMsg string) error {
	now := time.Now().UTC()
	query := `
		UPDATE cycle_runs
		SET stage = $2, outcome = $3, error = $4, updated_at = $5, finished_at = $5
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id, stage, outcome, errMsg, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "cycle run %s", id)
	}

	return nil
}

// GetByID retrieves a run by ID
func (r *CycleRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*cycle.Run, error) {
	var run cycle.Run

	query := `SELECT * FROM cycle_runs WHERE id = $1`

	err := r.db.GetContext(ctx, &run, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "cycle run %s", id)
	}
	if err != nil {
		return nil, err
	}

	return &run, nil
}

// AbortStale marks every non-terminal run as ABORTED. A run interrupted by
// a restart never resumes mid-stage; the next scheduler tick starts fresh.
func (r *CycleRunRepository) AbortStale(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	query := `
		UPDATE cycle_runs
		SET stage = $1, outcome = $2, error = 'interrupted by restart', updated_at = $3, finished_at = $3
		WHERE stage NOT IN ($4, $5, $6)`

	res, err := r.db.ExecContext(ctx, query,
		cycle.StageAborted, cycle.OutcomeAborted, now,
		cycle.StageDone, cycle.StageAborted, cycle.StageFailed,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
