package postgres

import (
	"context"
	"database/sql"

	"helios/internal/domain/market"
	"helios/pkg/errors"
)

// Compile-time check
var _ market.SnapshotRepository = (*SnapshotRepository)(nil)

// SnapshotRepository implements market.SnapshotRepository using sqlx
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Save inserts a price snapshot
func (r *SnapshotRepository) Save(ctx context.Context, s *market.PriceSnapshot) error {
	query := `
		INSERT INTO stock_snapshots (
			id, ticker, price, open_price, high, low, close_price,
			volume, snapshot_time, data_source
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.Ticker, s.Price, s.Open, s.High, s.Low, s.PrevClose,
		s.Volume, s.SnapshotTime, s.DataSource,
	)

	return err
}

// Latest retrieves the most recent snapshot for a ticker
func (r *SnapshotRepository) Latest(ctx context.Context, ticker string) (*market.PriceSnapshot, error) {
	var s market.PriceSnapshot

	query := `
		SELECT * FROM stock_snapshots
		WHERE ticker = $1
		ORDER BY snapshot_time DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &s, query, ticker)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "snapshot for %s", ticker)
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}
