package debate

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists debates
type Repository interface {
	Create(ctx context.Context, d *Debate) error
	GetByID(ctx context.Context, id uuid.UUID) (*Debate, error)
}
