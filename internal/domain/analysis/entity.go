package analysis

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// EventType identifies which stage produced an analysis event
type EventType string

const (
	EventTickerAnalysis EventType = "ticker_analysis"
	EventDebate         EventType = "debate"
	EventTradeProposal  EventType = "trade_proposal"
	EventProposalReview EventType = "proposal_review"
	EventTradeExecution EventType = "trade_execution"
	EventStageFailure   EventType = "stage_failure"
)

// Event is the append-only audit record of one stage's reasoning.
// Immutable once written; every stage transition produces exactly one.
type Event struct {
	ID         uuid.UUID      `db:"id"`
	Ticker     string         `db:"ticker"`
	EventType  EventType      `db:"event_type"`
	Reasoning  string         `db:"reasoning"`
	InputData  types.JSONText `db:"input_data"`
	OutputData types.JSONText `db:"output_data"`
	AgentName  string         `db:"agent_name"`
	CreatedAt  time.Time      `db:"created_at"`
}

// NewEvent creates an analysis event with a fresh ID and timestamp
func NewEvent(ticker string, eventType EventType, agentName, reasoning string, input, output []byte) *Event {
	return &Event{
		ID:         uuid.New(),
		Ticker:     ticker,
		EventType:  eventType,
		Reasoning:  reasoning,
		InputData:  types.JSONText(input),
		OutputData: types.JSONText(output),
		AgentName:  agentName,
		CreatedAt:  time.Now().UTC(),
	}
}
