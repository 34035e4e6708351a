package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"helios/internal/domain/debate"
	"helios/pkg/errors"
)

// Compile-time check
var _ debate.Repository = (*DebateRepository)(nil)

// DebateRepository implements debate.Repository using sqlx
type DebateRepository struct {
	db DBTX
}

// NewDebateRepository creates a new debate repository
func NewDebateRepository(db DBTX) *DebateRepository {
	return &DebateRepository{db: db}
}

// Create inserts a new debate
func (r *DebateRepository) Create(ctx context.Context, d *debate.Debate) error {
	query := `
		INSERT INTO debates (
			id, ticker, debate_type, transcript, bull_argument, bear_argument,
			final_consensus, trader_agent_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.Ticker, d.DebateType, d.Transcript, d.BullArgument, d.BearArgument,
		d.FinalConsensus, d.TraderEventID, d.CreatedAt,
	)

	return err
}

// GetByID retrieves a debate by ID
func (r *DebateRepository) GetByID(ctx context.Context, id uuid.UUID) (*debate.Debate, error) {
	var d debate.Debate

	query := `SELECT * FROM debates WHERE id = $1`

	err := r.db.GetContext(ctx, &d, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "debate %s", id)
	}
	if err != nil {
		return nil, err
	}

	return &d, nil
}
