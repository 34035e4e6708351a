package proposal

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists trade proposals
type Repository interface {
	Create(ctx context.Context, p *TradeProposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*TradeProposal, error)

	// UpdateStatus moves a proposal along its status machine. Returns
	// errors.ErrInvalidInput if the transition is illegal for the stored
	// status (the update is conditional on the expected current status).
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) error

	// Approve flips PENDING→APPROVED and persists the reviewer's final
	// quantity, which may differ from the proposed one.
	Approve(ctx context.Context, id uuid.UUID, quantity int64) error
}
