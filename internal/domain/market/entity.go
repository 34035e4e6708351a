package market

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceSnapshot is a point-in-time view of a ticker's price and basics
type PriceSnapshot struct {
	ID           uuid.UUID       `db:"id"`
	Ticker       string          `db:"ticker"`
	Price        decimal.Decimal `db:"price"`
	Open         decimal.Decimal `db:"open_price"`
	High         decimal.Decimal `db:"high"`
	Low          decimal.Decimal `db:"low"`
	PrevClose    decimal.Decimal `db:"close_price"`
	Volume       int64           `db:"volume"`
	SnapshotTime time.Time       `db:"snapshot_time"`
	DataSource   string          `db:"data_source"`
}

// ChangePercent returns the percent move against the previous close
func (s PriceSnapshot) ChangePercent() decimal.Decimal {
	if s.PrevClose.IsZero() {
		return decimal.Zero
	}
	return s.Price.Sub(s.PrevClose).Div(s.PrevClose).Mul(decimal.NewFromInt(100))
}

// Stale reports whether the snapshot is older than maxAge
func (s PriceSnapshot) Stale(maxAge time.Duration) bool {
	return time.Since(s.SnapshotTime) > maxAge
}

// Account is the broker account summary used during review
type Account struct {
	Cash           decimal.Decimal
	BuyingPower    decimal.Decimal
	PortfolioValue decimal.Decimal
}

// Position is one open broker position
type Position struct {
	Symbol        string
	Qty           int64
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPL  decimal.Decimal
}

// FillStatus is the broker's terminal disposition of an order
type FillStatus string

const (
	FillStatusFilled    FillStatus = "FILLED"
	FillStatusPartial   FillStatus = "PARTIAL"
	FillStatusCancelled FillStatus = "CANCELLED"
	FillStatusRejected  FillStatus = "REJECTED"
)

// Filled reports whether any quantity was filled
func (s FillStatus) Filled() bool {
	return s == FillStatusFilled || s == FillStatusPartial
}

// ExecutionResult describes the outcome of one order submission
type ExecutionResult struct {
	OrderID   string
	Status    FillStatus
	FilledQty int64
	FillPrice decimal.Decimal
}
