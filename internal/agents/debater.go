package agents

import (
	"context"
	"fmt"

	"helios/internal/agents/schemas"
	"helios/pkg/logger"
)

const bullSystemPrompt = `You are a bullish stock analyst. Make a compelling argument for why this stock is a good buy.

IMPORTANT: Base your argument on MULTIPLE independent news sources, not just one. Look for CONVERGING EVIDENCE across different sources.

Focus on:
- Positive news and trends from MULTIPLE sources
- Growth potential supported by several news items
- Strong fundamentals confirmed across different articles
- Market opportunities mentioned in multiple independent reports

Be specific and data-driven. Reference MULTIPLE news sources in your argument. If you only have one or two news sources, acknowledge this limitation.

Return JSON:
{
  "argument": "Your full argument"
}`

const bearSystemPrompt = `You are a bearish stock analyst. Make a compelling argument for why this stock should be avoided or sold.

IMPORTANT: Base your argument on MULTIPLE independent news sources, not just one. Look for CONVERGING EVIDENCE across different sources.

Focus on:
- Negative news and risks from MULTIPLE sources
- Overvaluation concerns supported by several news items
- Weak fundamentals confirmed across different articles
- Market threats mentioned in multiple independent reports

Be specific and data-driven. Reference MULTIPLE news sources in your argument. If you only have one or two news sources, acknowledge this limitation.

Return JSON:
{
  "argument": "Your full argument"
}`

// Debater argues one side of a debate. Round-1 arguments are built from
// the shared context only; rebuttals additionally see both opening
// arguments.
type Debater struct {
	role              Role
	system            string
	stance            string
	port              ReasoningPort
	validationRetries int
	log               *logger.Logger
}

// NewBull creates the bullish debater
func NewBull(port ReasoningPort, validationRetries int) *Debater {
	return &Debater{
		role:              RoleBull,
		system:            bullSystemPrompt,
		stance:            "bullish",
		port:              port,
		validationRetries: validationRetries,
		log:               logger.Get().With("role", RoleBull),
	}
}

// NewBear creates the bearish debater
func NewBear(port ReasoningPort, validationRetries int) *Debater {
	return &Debater{
		role:              RoleBear,
		system:            bearSystemPrompt,
		stance:            "bearish",
		port:              port,
		validationRetries: validationRetries,
		log:               logger.Get().With("role", RoleBear),
	}
}

// Argue builds the opening argument without visibility into the opponent
func (d *Debater) Argue(ctx context.Context, in DebateContext) (string, error) {
	rendered, err := renderContext(in)
	if err != nil {
		return "", err
	}

	turn, err := invoke[schemas.DebateTurn](ctx, d.port, Request{
		Role:        d.role,
		System:      d.system,
		Prompt:      fmt.Sprintf("Make a %s argument for %s:\n\n%s", d.stance, in.Ticker, rendered),
		Temperature: 0.8,
	}, d.validationRetries)
	if err != nil {
		return "", err
	}

	d.log.Debugw("Opening argument made", "ticker", in.Ticker)

	return turn.Argument, nil
}

// Rebut answers the opponent's opening argument. Both round-1 arguments
// are visible so each side can attack the other's evidence directly.
func (d *Debater) Rebut(ctx context.Context, in DebateContext, ownArgument, opponentArgument string) (string, error) {
	rendered, err := renderContext(in)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf(`Rebut the opposing analyst's argument about %s while reinforcing your own case.

YOUR OPENING ARGUMENT:
%s

OPPONENT'S ARGUMENT:
%s

CONTEXT:
%s`, in.Ticker, ownArgument, opponentArgument, rendered)

	turn, err := invoke[schemas.DebateTurn](ctx, d.port, Request{
		Role:        d.role,
		System:      d.system,
		Prompt:      prompt,
		Temperature: 0.8,
	}, d.validationRetries)
	if err != nil {
		return "", err
	}

	d.log.Debugw("Rebuttal made", "ticker", in.Ticker)

	return turn.Argument, nil
}
