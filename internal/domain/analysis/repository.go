package analysis

import (
	"context"
)

// Repository persists analysis events. Events are append-only; there is no
// update or delete.
type Repository interface {
	Create(ctx context.Context, event *Event) error
	ListByTicker(ctx context.Context, ticker string, limit int) ([]Event, error)
}
