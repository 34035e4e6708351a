package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios/pkg/errors"
)

func TestAnalysisVerdict_Validate(t *testing.T) {
	ok := AnalysisVerdict{IsInteresting: true, Reasoning: "earnings beat", Confidence: 80}
	assert.NoError(t, ok.Validate())

	empty := AnalysisVerdict{Confidence: 50}
	assert.Error(t, empty.Validate())

	outOfRange := AnalysisVerdict{Reasoning: "x", Confidence: 101}
	err := outOfRange.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidOutput))
}

func TestProposalDecision_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      ProposalDecision
		wantErr bool
	}{
		{"valid buy", ProposalDecision{Action: "BUY", Quantity: 10, Reasoning: "r", ConfidenceScore: 72}, false},
		{"valid hold zero qty", ProposalDecision{Action: "HOLD", Quantity: 0, Reasoning: "r", ConfidenceScore: 40}, false},
		{"unknown action", ProposalDecision{Action: "SHORT", Quantity: 1, Reasoning: "r", ConfidenceScore: 50}, true},
		{"confidence above 100", ProposalDecision{Action: "BUY", Quantity: 1, Reasoning: "r", ConfidenceScore: 120}, true},
		{"negative confidence", ProposalDecision{Action: "BUY", Quantity: 1, Reasoning: "r", ConfidenceScore: -1}, true},
		{"buy with zero quantity", ProposalDecision{Action: "BUY", Quantity: 0, Reasoning: "r", ConfidenceScore: 80}, true},
		{"negative quantity", ProposalDecision{Action: "SELL", Quantity: -5, Reasoning: "r", ConfidenceScore: 80}, true},
		{"missing reasoning", ProposalDecision{Action: "BUY", Quantity: 1, ConfidenceScore: 80}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestReviewDecision_Validate(t *testing.T) {
	ok := ReviewDecision{Decision: "APPROVE", Reasoning: "within limits"}
	assert.NoError(t, ok.Validate())
	assert.True(t, ok.Approved())

	reject := ReviewDecision{Decision: "REJECT", Reasoning: "too risky"}
	assert.NoError(t, reject.Validate())
	assert.False(t, reject.Approved())

	bad := ReviewDecision{Decision: "MAYBE", Reasoning: "r"}
	assert.Error(t, bad.Validate())

	zero := int64(0)
	badQty := ReviewDecision{Decision: "APPROVE", Reasoning: "r", AdjustedQuantity: &zero}
	assert.Error(t, badQty.Validate())
}

func TestConsensus_Validate(t *testing.T) {
	ok := Consensus{Consensus: "moderate bullish", Lean: "bullish"}
	assert.NoError(t, ok.Validate())

	badLean := Consensus{Consensus: "c", Lean: "sideways"}
	assert.Error(t, badLean.Validate())
}

func TestProposalDecision_JSONRoundTrip(t *testing.T) {
	raw := `{"action":"BUY","quantity":10,"reasoning":"multiple sources converge","confidence_score":72}`

	var p ProposalDecision
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	require.NoError(t, p.Validate())
	assert.Equal(t, int64(10), p.Quantity)
}
