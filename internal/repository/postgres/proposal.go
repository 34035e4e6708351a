package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"helios/internal/domain/proposal"
	"helios/pkg/errors"
)

// Compile-time check
var _ proposal.Repository = (*ProposalRepository)(nil)

// ProposalRepository implements proposal.Repository using sqlx
type ProposalRepository struct {
	db DBTX
}

// NewProposalRepository creates a new proposal repository
func NewProposalRepository(db DBTX) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create inserts a new proposal
func (r *ProposalRepository) Create(ctx context.Context, p *proposal.TradeProposal) error {
	query := `
		INSERT INTO trade_proposals (
			id, ticker, action, quantity, proposed_price, reasoning,
			confidence_score, analysis_event_id, debate_id, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Ticker, p.Action, p.Quantity, p.ProposedPrice, p.Reasoning,
		p.ConfidenceScore, p.AnalysisEventID, p.DebateID, p.Status, p.CreatedAt,
	)

	return err
}

// GetByID retrieves a proposal by ID
func (r *ProposalRepository) GetByID(ctx context.Context, id uuid.UUID) (*proposal.TradeProposal, error) {
	var p proposal.TradeProposal

	query := `SELECT * FROM trade_proposals WHERE id = $1`

	err := r.db.GetContext(ctx, &p, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "proposal %s", id)
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// UpdateStatus moves a proposal along its status machine. The update is
// conditional on the expected current status so concurrent writers cannot
// double-apply a transition; zero rows affected means the stored status
// was not the expected one.
func (r *ProposalRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to proposal.Status) error {
	if !from.CanTransition(to) {
		return errors.Wrapf(errors.ErrInvalidInput, "illegal proposal transition %s → %s", from, to)
	}

	query := `UPDATE trade_proposals SET status = $3 WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, from, to)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if to == proposal.StatusExecuted {
			return errors.Wrapf(errors.ErrAlreadySubmitted, "proposal %s not in %s", id, from)
		}
		return errors.Wrapf(errors.ErrInvalidInput, "proposal %s not in %s", id, from)
	}

	return nil
}

// Approve flips PENDING→APPROVED and persists the reviewer's final
// quantity in the same statement, so an adjusted size is never lost
// between the review verdict and the order.
func (r *ProposalRepository) Approve(ctx context.Context, id uuid.UUID, quantity int64) error {
	query := `
		UPDATE trade_proposals SET status = $3, quantity = $4
		WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, proposal.StatusPending, proposal.StatusApproved, quantity)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.Wrapf(errors.ErrInvalidInput, "proposal %s not in %s", id, proposal.StatusPending)
	}

	return nil
}
