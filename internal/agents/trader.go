package agents

import (
	"context"
	"fmt"

	"helios/internal/agents/schemas"
	"helios/pkg/logger"
)

const analysisSystemPrompt = `You are a swing trading analyst. Your job is to scan news HEADLINES (not full articles) for a stock ticker and decide if it warrants deeper analysis through a debate.

You can ONLY see headlines - you cannot read full article content. Based on headlines alone, determine if:
- There are significant news events (earnings, product launches, regulatory changes, etc.)
- The headlines suggest potential trading opportunities
- The news volume and sentiment warrant a deeper debate

Return JSON:
{
  "is_interesting": true/false,
  "reasoning": "Why this ticker is interesting or not based on headlines",
  "confidence": 0-100
}

If is_interesting is true, a debate will be triggered where analysts will read full articles and conduct deep analysis.`

const consensusSystemPrompt = `You are a swing trading analyst synthesizing a completed bull-vs-bear debate. Weigh both sides on the strength and independence of their evidence, not on rhetoric.

Return JSON:
{
  "consensus": "Balanced assessment of the debate",
  "lean": "bullish" | "bearish" | "neutral"
}`

const proposalSystemPrompt = `You are a swing trading analyst. Based on the debate consensus and market context, propose a trade.

Return JSON:
{
  "action": "BUY" | "SELL" | "HOLD",
  "quantity": number of shares,
  "reasoning": "Detailed reasoning for this trade",
  "confidence_score": 0-100
}`

// Trader runs the headline scan, the consensus synthesis and the trade
// proposal. One Trader instance is shared across concurrent cycles; it
// carries no per-cycle state.
type Trader struct {
	port              ReasoningPort
	validationRetries int
	minConfidence     float64
	log               *logger.Logger
}

// NewTrader creates the trader role
func NewTrader(port ReasoningPort, validationRetries int, minConfidence float64) *Trader {
	return &Trader{
		port:              port,
		validationRetries: validationRetries,
		minConfidence:     minConfidence,
		log:               logger.Get().With("role", RoleTrader),
	}
}

// AnalyzeHeadlines decides from headlines alone whether a ticker deserves
// a debate
func (t *Trader) AnalyzeHeadlines(ctx context.Context, in AnalysisContext) (schemas.AnalysisVerdict, error) {
	rendered, err := renderContext(in)
	if err != nil {
		return schemas.AnalysisVerdict{}, err
	}

	verdict, err := invoke[schemas.AnalysisVerdict](ctx, t.port, Request{
		Role:        RoleTrader,
		System:      analysisSystemPrompt,
		Prompt:      fmt.Sprintf("Analyze headlines for this ticker:\n\n%s", rendered),
		Temperature: 0.7,
	}, t.validationRetries)
	if err != nil {
		return schemas.AnalysisVerdict{}, err
	}

	t.log.Infow("Ticker analyzed from headlines",
		"ticker", in.Ticker,
		"interesting", verdict.IsInteresting,
		"confidence", verdict.Confidence,
		"headline_count", in.HeadlineCount,
	)

	return verdict, nil
}

// SynthesizeConsensus folds a full debate transcript into one verdict
func (t *Trader) SynthesizeConsensus(ctx context.Context, ticker, transcript string) (schemas.Consensus, error) {
	prompt := fmt.Sprintf("Based on this debate about %s, provide a final consensus:\n\n%s", ticker, transcript)

	consensus, err := invoke[schemas.Consensus](ctx, t.port, Request{
		Role:        RoleTrader,
		System:      consensusSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.7,
	}, t.validationRetries)
	if err != nil {
		return schemas.Consensus{}, err
	}

	t.log.Infow("Debate consensus synthesized", "ticker", ticker, "lean", consensus.Lean)

	return consensus, nil
}

// ProposeTrade turns a consensus into a concrete proposal. BUY/SELL with
// confidence below the configured minimum is downgraded to HOLD here so a
// low-conviction trade never reaches review as actionable.
func (t *Trader) ProposeTrade(ctx context.Context, in ProposalContext) (schemas.ProposalDecision, error) {
	rendered, err := renderContext(in)
	if err != nil {
		return schemas.ProposalDecision{}, err
	}

	decision, err := invoke[schemas.ProposalDecision](ctx, t.port, Request{
		Role:        RoleTrader,
		System:      proposalSystemPrompt,
		Prompt:      fmt.Sprintf("Analyze and propose trade:\n\n%s", rendered),
		Temperature: 0.7,
	}, t.validationRetries)
	if err != nil {
		return schemas.ProposalDecision{}, err
	}

	if decision.Action != "HOLD" && decision.ConfidenceScore < t.minConfidence {
		t.log.Warnw("Downgrading low-confidence proposal to HOLD",
			"ticker", in.Ticker,
			"action", decision.Action,
			"confidence", decision.ConfidenceScore,
			"required", t.minConfidence,
		)
		decision.Action = "HOLD"
		decision.Quantity = 0
		decision.Reasoning = fmt.Sprintf("%s [Downgraded to HOLD: confidence %.0f below required %.0f]",
			decision.Reasoning, decision.ConfidenceScore, t.minConfidence)
	}

	t.log.Infow("Trade proposed",
		"ticker", in.Ticker,
		"action", decision.Action,
		"quantity", decision.Quantity,
		"confidence", decision.ConfidenceScore,
	)

	return decision, nil
}
