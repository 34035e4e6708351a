// Package schemas defines the structured outputs each agent role must
// return. Every type validates itself before the engine accepts it; a
// response that fails validation is retried against the reasoning backend
// with a reformulated prompt, never persisted.
package schemas

import (
	"strings"

	"helios/pkg/errors"
)

// Validator is implemented by every structured output type
type Validator interface {
	Validate() error
}

// AnalysisVerdict is the trader's headline-scan result, the gate into the
// debate stage.
type AnalysisVerdict struct {
	IsInteresting bool    `json:"is_interesting"`
	Reasoning     string  `json:"reasoning"`
	Confidence    float64 `json:"confidence"`
}

// Validate implements Validator
func (v AnalysisVerdict) Validate() error {
	if strings.TrimSpace(v.Reasoning) == "" {
		return errors.NewValidationError("reasoning", "must not be empty", v.Reasoning)
	}
	if v.Confidence < 0 || v.Confidence > 100 {
		return errors.NewValidationError("confidence", "must be in [0,100]", v.Confidence)
	}
	return nil
}

// DebateTurn is one argument from the bull or bear analyst
type DebateTurn struct {
	Argument string `json:"argument"`
}

// Validate implements Validator
func (t DebateTurn) Validate() error {
	if strings.TrimSpace(t.Argument) == "" {
		return errors.NewValidationError("argument", "must not be empty", t.Argument)
	}
	return nil
}

// Consensus is the trader's synthesis of a completed debate. Lean is the
// implicit directional read carried into the proposal stage.
type Consensus struct {
	Consensus string `json:"consensus"`
	Lean      string `json:"lean"` // bullish | bearish | neutral
}

// Validate implements Validator
func (c Consensus) Validate() error {
	if strings.TrimSpace(c.Consensus) == "" {
		return errors.NewValidationError("consensus", "must not be empty", c.Consensus)
	}
	switch c.Lean {
	case "bullish", "bearish", "neutral":
	default:
		return errors.NewValidationError("lean", "must be bullish, bearish or neutral", c.Lean)
	}
	return nil
}

// ProposalDecision is the trader's trade proposal
type ProposalDecision struct {
	Action          string  `json:"action"` // BUY | SELL | HOLD
	Quantity        int64   `json:"quantity"`
	Reasoning       string  `json:"reasoning"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// Validate implements Validator
func (p ProposalDecision) Validate() error {
	switch p.Action {
	case "BUY", "SELL", "HOLD":
	default:
		return errors.NewValidationError("action", "must be BUY, SELL or HOLD", p.Action)
	}
	if p.ConfidenceScore < 0 || p.ConfidenceScore > 100 {
		return errors.NewValidationError("confidence_score", "must be in [0,100]", p.ConfidenceScore)
	}
	if p.Quantity < 0 {
		return errors.NewValidationError("quantity", "must be non-negative", p.Quantity)
	}
	if p.Action != "HOLD" && p.Quantity == 0 {
		return errors.NewValidationError("quantity", "must be positive for BUY/SELL", p.Quantity)
	}
	if strings.TrimSpace(p.Reasoning) == "" {
		return errors.NewValidationError("reasoning", "must not be empty", p.Reasoning)
	}
	return nil
}

// ReviewDecision is the portfolio manager's approval verdict
type ReviewDecision struct {
	Decision         string `json:"decision"` // APPROVE | REJECT
	Reasoning        string `json:"reasoning"`
	AdjustedQuantity *int64 `json:"adjusted_quantity,omitempty"`
}

// Approved reports whether the manager approved the proposal
func (r ReviewDecision) Approved() bool {
	return r.Decision == "APPROVE"
}

// Validate implements Validator
func (r ReviewDecision) Validate() error {
	switch r.Decision {
	case "APPROVE", "REJECT":
	default:
		return errors.NewValidationError("decision", "must be APPROVE or REJECT", r.Decision)
	}
	if strings.TrimSpace(r.Reasoning) == "" {
		return errors.NewValidationError("reasoning", "must not be empty", r.Reasoning)
	}
	if r.AdjustedQuantity != nil && *r.AdjustedQuantity <= 0 {
		return errors.NewValidationError("adjusted_quantity", "must be positive when present", *r.AdjustedQuantity)
	}
	return nil
}
