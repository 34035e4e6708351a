package proposal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action is the proposed trade direction
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Valid checks if the action is a known value
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell || a == ActionHold
}

// Tradeable reports whether the action places an order
func (a Action) Tradeable() bool {
	return a == ActionBuy || a == ActionSell
}

// String returns string representation
func (a Action) String() string {
	return string(a)
}

// Status is the one-directional proposal state machine:
// PENDING → APPROVED|REJECTED, APPROVED → EXECUTED.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusExecuted Status = "EXECUTED"
)

// CanTransition reports whether s may move to next
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusRejected
	case StatusApproved:
		return next == StatusExecuted
	}
	return false
}

// String returns string representation
func (s Status) String() string {
	return string(s)
}

// TradeProposal is the trader's decision artifact for one cycle
type TradeProposal struct {
	ID              uuid.UUID       `db:"id"`
	Ticker          string          `db:"ticker"`
	Action          Action          `db:"action"`
	Quantity        int64           `db:"quantity"`
	ProposedPrice   decimal.Decimal `db:"proposed_price"`
	Reasoning       string          `db:"reasoning"`
	ConfidenceScore float64         `db:"confidence_score"`
	AnalysisEventID uuid.UUID       `db:"analysis_event_id"`
	DebateID        uuid.UUID       `db:"debate_id"`
	Status          Status          `db:"status"`
	CreatedAt       time.Time       `db:"created_at"`
}

// New creates a PENDING proposal
func New(ticker string, action Action, quantity int64, price decimal.Decimal, reasoning string, confidence float64, analysisEventID, debateID uuid.UUID) *TradeProposal {
	return &TradeProposal{
		ID:              uuid.New(),
		Ticker:          ticker,
		Action:          action,
		Quantity:        quantity,
		ProposedPrice:   price,
		Reasoning:       reasoning,
		ConfidenceScore: confidence,
		AnalysisEventID: analysisEventID,
		DebateID:        debateID,
		Status:          StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
}

// NotionalValue returns quantity × proposed price
func (p *TradeProposal) NotionalValue() decimal.Decimal {
	return p.ProposedPrice.Mul(decimal.NewFromInt(p.Quantity))
}
