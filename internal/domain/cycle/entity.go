package cycle

import (
	"time"

	"github.com/google/uuid"
)

// Stage is one state of the per-ticker workflow state machine
type Stage string

const (
	StageAnalyzing Stage = "ANALYZING"
	StageDebating  Stage = "DEBATING"
	StageProposing Stage = "PROPOSING"
	StageReviewing Stage = "REVIEWING"
	StageExecuting Stage = "EXECUTING"
	StageDone      Stage = "DONE"
	StageAborted   Stage = "ABORTED"
	StageFailed    Stage = "FAILED"
)

// String returns string representation
func (s Stage) String() string {
	return string(s)
}

// Terminal reports whether the stage is absorbing
func (s Stage) Terminal() bool {
	switch s {
	case StageDone, StageAborted, StageFailed:
		return true
	}
	return false
}

// transitions is the directed edge set of the workflow. ABORTED and FAILED
// are reachable from every non-terminal stage and are handled separately.
var transitions = map[Stage][]Stage{
	StageAnalyzing: {StageDebating, StageDone},
	StageDebating:  {StageProposing},
	StageProposing: {StageReviewing},
	StageReviewing: {StageExecuting, StageDone},
	StageExecuting: {StageDone},
}

// CanTransition reports whether from→to is a legal workflow edge
func CanTransition(from, to Stage) bool {
	if from.Terminal() {
		return false
	}
	if to == StageAborted || to == StageFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Outcome is the terminal result of a cycle run
type Outcome string

const (
	OutcomeExecuted Outcome = "EXECUTED"
	OutcomeHeld     Outcome = "HELD"
	OutcomeAborted  Outcome = "ABORTED"
	OutcomeFailed   Outcome = "FAILED"
)

// String returns string representation
func (o Outcome) String() string {
	return string(o)
}

// Run is one pass of the workflow for one ticker at one scheduling tick.
// Owned exclusively by the engine until it reaches an absorbing stage.
type Run struct {
	ID         uuid.UUID  `db:"id"`
	Ticker     string     `db:"ticker"`
	Stage      Stage      `db:"stage"`
	Outcome    Outcome    `db:"outcome"`
	Error      string     `db:"error"`
	StartedAt  time.Time  `db:"started_at"`
	UpdatedAt  time.Time  `db:"updated_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

// NewRun creates a run in the initial stage
func NewRun(ticker string) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        uuid.New(),
		Ticker:    ticker,
		Stage:     StageAnalyzing,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Finished reports whether the run reached an absorbing stage
func (r *Run) Finished() bool {
	return r.Stage.Terminal()
}
