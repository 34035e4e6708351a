package agents

import (
	"context"
	"fmt"

	"helios/internal/agents/schemas"
	"helios/pkg/logger"
)

const reviewSystemPrompt = `You are a conservative portfolio manager. Review trade proposals and decide whether to approve or reject them.

CRITICAL TRADING RULES:
- REJECT any proposal with low confidence - we only trade on STRONG confidence
- REJECT proposals based on single news items - require MULTIPLE converging news sources
- Be very conservative: only approve trades when there's STRONG evidence and high confidence
- Consider transaction costs - reject marginal trades
- Avoid overtrading - consider recent trading frequency

Consider:
- Available cash/buying power
- Current positions
- Risk management
- Recent trading activity (avoid overtrading)
- Proposal quality and confidence

Return JSON:
{
  "decision": "APPROVE" | "REJECT",
  "reasoning": "Why you approve or reject. Must mention confidence level and whether multiple news sources were considered.",
  "adjusted_quantity": optional adjusted quantity if different from proposal
}`

// PortfolioManager reviews proposals against account state. The hard
// gates (confidence floor, concentration caps) are enforced by the engine
// regardless of what the manager answers; this role supplies judgment on
// top of them, never instead of them.
type PortfolioManager struct {
	port              ReasoningPort
	validationRetries int
	log               *logger.Logger
}

// NewPortfolioManager creates the reviewer role
func NewPortfolioManager(port ReasoningPort, validationRetries int) *PortfolioManager {
	return &PortfolioManager{
		port:              port,
		validationRetries: validationRetries,
		log:               logger.Get().With("role", RolePortfolioManager),
	}
}

// Review judges one pending proposal
func (m *PortfolioManager) Review(ctx context.Context, in ReviewContext) (schemas.ReviewDecision, error) {
	rendered, err := renderContext(in)
	if err != nil {
		return schemas.ReviewDecision{}, err
	}

	decision, err := invoke[schemas.ReviewDecision](ctx, m.port, Request{
		Role:        RolePortfolioManager,
		System:      reviewSystemPrompt,
		Prompt:      fmt.Sprintf("Review this trade proposal:\n\n%s", rendered),
		Temperature: 0.5,
	}, m.validationRetries)
	if err != nil {
		return schemas.ReviewDecision{}, err
	}

	m.log.Infow("Proposal reviewed",
		"ticker", in.Proposal.Ticker,
		"decision", decision.Decision,
		"confidence", in.Proposal.ConfidenceScore,
	)

	return decision, nil
}
