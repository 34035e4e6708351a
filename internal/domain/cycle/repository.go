package cycle

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists cycle runs
type Repository interface {
	Create(ctx context.Context, run *Run) error

	// UpdateStage records a non-terminal stage transition
	UpdateStage(ctx context.Context, id uuid.UUID, stage Stage) error

	// Finish records the terminal stage and outcome
	Finish(ctx context.Context, id uuid.UUID, stage Stage, outcome Outcome, errMsg string) error

	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)

	// AbortStale marks every non-terminal run as ABORTED. Called once at
	// startup: a run interrupted by a restart never resumes mid-stage.
	AbortStale(ctx context.Context) (int64, error)
}
