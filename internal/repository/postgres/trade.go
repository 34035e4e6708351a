package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"helios/internal/domain/trade"
	"helios/pkg/errors"
)

// Compile-time check
var _ trade.Repository = (*TradeRepository)(nil)

// TradeRepository implements trade.Repository using sqlx. Create is not
// part of the domain interface: inserts go through the store's execution
// transaction so the trade row and the proposal's status flip commit
// together.
type TradeRepository struct {
	db DBTX
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db DBTX) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create inserts an executed trade
func (r *TradeRepository) Create(ctx context.Context, t *trade.ExecutedTrade) error {
	query := `
		INSERT INTO executed_trades (
			id, trade_proposal_id, ticker, action, quantity, execution_price,
			alpaca_order_id, portfolio_manager_reasoning, status, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		t.ID, t.ProposalID, t.Ticker, t.Action, t.Quantity, t.ExecutionPrice,
		t.AlpacaOrderID, t.ReviewerReasoning, t.Status, t.ExecutedAt,
	)

	return err
}

// GetByProposal retrieves the trade executed for a proposal
func (r *TradeRepository) GetByProposal(ctx context.Context, proposalID uuid.UUID) (*trade.ExecutedTrade, error) {
	var t trade.ExecutedTrade

	query := `SELECT * FROM executed_trades WHERE trade_proposal_id = $1`

	err := r.db.GetContext(ctx, &t, query, proposalID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "trade for proposal %s", proposalID)
	}
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// ListRecent retrieves trades executed in the last given days. Empty
// ticker means across all tickers.
func (r *TradeRepository) ListRecent(ctx context.Context, ticker string, days int) ([]trade.ExecutedTrade, error) {
	var trades []trade.ExecutedTrade

	query := `
		SELECT * FROM executed_trades
		WHERE ($1 = '' OR ticker = $1) AND executed_at >= $2
		ORDER BY executed_at DESC`

	since := time.Now().UTC().AddDate(0, 0, -days)
	err := r.db.SelectContext(ctx, &trades, query, ticker, since)
	if err != nil {
		return nil, err
	}

	return trades, nil
}

// ListSince retrieves trades executed after the cutoff, newest first
func (r *TradeRepository) ListSince(ctx context.Context, ticker string, since time.Time, limit int) ([]trade.ExecutedTrade, error) {
	var trades []trade.ExecutedTrade

	query := `
		SELECT * FROM executed_trades
		WHERE ($1 = '' OR ticker = $1) AND executed_at >= $2
		ORDER BY executed_at DESC
		LIMIT $3`

	err := r.db.SelectContext(ctx, &trades, query, ticker, since, limit)
	if err != nil {
		return nil, err
	}

	return trades, nil
}

// HasTradedToday reports whether any trade executed since UTC midnight
func (r *TradeRepository) HasTradedToday(ctx context.Context) (bool, error) {
	var count int

	query := `SELECT COUNT(*) FROM executed_trades WHERE executed_at >= $1`

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	err := r.db.GetContext(ctx, &count, query, midnight)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}
