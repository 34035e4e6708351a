package trade

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the broker-reported execution status
type Status string

const (
	StatusFilled    Status = "FILLED"
	StatusPartial   Status = "PARTIAL"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

// Filled reports whether any quantity was filled
func (s Status) Filled() bool {
	return s == StatusFilled || s == StatusPartial
}

// String returns string representation
func (s Status) String() string {
	return string(s)
}

// ExecutedTrade is the fill record. Created at most once per proposal;
// HOLD proposals never produce one.
type ExecutedTrade struct {
	ID                uuid.UUID       `db:"id"`
	ProposalID        uuid.UUID       `db:"trade_proposal_id"`
	Ticker            string          `db:"ticker"`
	Action            string          `db:"action"`
	Quantity          int64           `db:"quantity"`
	ExecutionPrice    decimal.Decimal `db:"execution_price"`
	AlpacaOrderID     string          `db:"alpaca_order_id"`
	ReviewerReasoning string          `db:"portfolio_manager_reasoning"`
	Status            Status          `db:"status"`
	ExecutedAt        time.Time       `db:"executed_at"`
}
