package market

import (
	"context"
)

// DataPort provides price lookups from the market data vendor
type DataPort interface {
	GetSnapshot(ctx context.Context, ticker string) (*PriceSnapshot, error)
	IsMarketOpen(ctx context.Context) (bool, error)
}

// ExecutionPort places orders at the broker. PlaceOrder is NOT idempotent:
// callers must never submit more than one order per approved proposal.
type ExecutionPort interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	PlaceOrder(ctx context.Context, ticker string, side string, qty int64) (*ExecutionResult, error)
}
