package debate

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// Round is one exchange of arguments. Round 1 holds the independent opening
// arguments; later rounds hold rebuttals.
type Round struct {
	Bull string `json:"bull"`
	Bear string `json:"bear"`
}

// Transcript is the ordered record of all rounds
type Transcript struct {
	Rounds []Round `json:"rounds"`
}

// Debate records one Bull/Bear exchange for a cycle. Never mutated after
// consensus is reached.
type Debate struct {
	ID             uuid.UUID      `db:"id"`
	Ticker         string         `db:"ticker"`
	DebateType     string         `db:"debate_type"`
	Transcript     types.JSONText `db:"transcript"`
	BullArgument   string         `db:"bull_argument"`
	BearArgument   string         `db:"bear_argument"`
	FinalConsensus string         `db:"final_consensus"`
	TraderEventID  uuid.UUID      `db:"trader_agent_id"`
	CreatedAt      time.Time      `db:"created_at"`
}

// New creates a debate record from a completed transcript. The bull and
// bear argument columns carry the opening (round 1) arguments.
func New(ticker string, transcript Transcript, consensus string, traderEventID uuid.UUID) (*Debate, error) {
	raw, err := json.Marshal(transcript)
	if err != nil {
		return nil, err
	}

	d := &Debate{
		ID:             uuid.New(),
		Ticker:         ticker,
		DebateType:     "bull_vs_bear",
		Transcript:     types.JSONText(raw),
		FinalConsensus: consensus,
		TraderEventID:  traderEventID,
		CreatedAt:      time.Now().UTC(),
	}
	if len(transcript.Rounds) > 0 {
		d.BullArgument = transcript.Rounds[0].Bull
		d.BearArgument = transcript.Rounds[0].Bear
	}
	return d, nil
}
