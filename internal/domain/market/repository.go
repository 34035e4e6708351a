package market

import (
	"context"
)

// SnapshotRepository persists price snapshots (stock_snapshots table)
type SnapshotRepository interface {
	Save(ctx context.Context, s *PriceSnapshot) error
	Latest(ctx context.Context, ticker string) (*PriceSnapshot, error)
}
