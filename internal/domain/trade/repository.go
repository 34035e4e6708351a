package trade

import (
	"context"

	"github.com/google/uuid"
)

// Repository reads executed trades. Inserts happen only through the
// transactional stage store so the proposal status flip and the trade row
// commit together.
type Repository interface {
	GetByProposal(ctx context.Context, proposalID uuid.UUID) (*ExecutedTrade, error)
	ListRecent(ctx context.Context, ticker string, days int) ([]ExecutedTrade, error)

	// HasTradedToday reports whether any trade was executed since the last
	// UTC midnight. Used by the scheduler's once-per-day gate.
	HasTradedToday(ctx context.Context) (bool, error)
}
