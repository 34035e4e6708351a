package postgres

import (
	"context"

	"helios/internal/domain/analysis"
)

// Compile-time check
var _ analysis.Repository = (*AnalysisEventRepository)(nil)

// AnalysisEventRepository implements analysis.Repository using sqlx.
// The table is append-only; there is no update path.
type AnalysisEventRepository struct {
	db DBTX
}

// NewAnalysisEventRepository creates a new analysis event repository
func NewAnalysisEventRepository(db DBTX) *AnalysisEventRepository {
	return &AnalysisEventRepository{db: db}
}

// Create inserts a new analysis event
func (r *AnalysisEventRepository) Create(ctx context.Context, event *analysis.Event) error {
	query := `
		INSERT INTO analysis_events (
			id, ticker, event_type, reasoning, input_data, output_data, agent_name, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.Ticker, event.EventType, event.Reasoning,
		event.InputData, event.OutputData, event.AgentName, event.CreatedAt,
	)

	return err
}

// ListByTicker retrieves the most recent events for a ticker
func (r *AnalysisEventRepository) ListByTicker(ctx context.Context, ticker string, limit int) ([]analysis.Event, error) {
	var events []analysis.Event

	query := `
		SELECT * FROM analysis_events
		WHERE ticker = $1
		ORDER BY created_at DESC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &events, query, ticker, limit)
	if err != nil {
		return nil, err
	}

	return events, nil
}
