package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"helios/internal/domain/market"
	"helios/internal/domain/proposal"
)

// Guard validates portfolio concentration limits for the review stage.
// Both limits are hard gates.
//
// All review-stage checks in the process go through one Guard, and the
// check plus the approval write run inside Serialized so two concurrently
// reviewed proposals cannot jointly breach a limit.
type Guard struct {
	mu             sync.Mutex
	maxPositionPct decimal.Decimal // max % of portfolio value in one ticker
	maxExposurePct decimal.Decimal // max % of portfolio value in all positions
}

// CheckInput contains the proposed trade and the portfolio it lands in
type CheckInput struct {
	Ticker    string
	Action    proposal.Action
	Quantity  int64
	Price     decimal.Decimal
	Account   *market.Account
	Positions []market.Position
}

// Result is the outcome of a concentration check
type Result struct {
	Approved         bool
	Reasons          []string
	ConcentrationPct decimal.Decimal
	ExposurePct      decimal.Decimal
}

// NewGuard creates a concentration guard. Percentages are whole numbers
// (20 means 20%).
func NewGuard(maxPositionPct, maxExposurePct float64) *Guard {
	return &Guard{
		maxPositionPct: decimal.NewFromFloat(maxPositionPct),
		maxExposurePct: decimal.NewFromFloat(maxExposurePct),
	}
}

// Serialized runs fn under the guard's review lock. The engine wraps the
// concentration check together with the approval persist so the simulated
// portfolio can't be invalidated by a concurrent approval.
func (g *Guard) Serialized(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}

// Check simulates the post-trade portfolio and validates both limits.
// SELL and HOLD never increase concentration and always pass.
func (g *Guard) Check(in CheckInput) Result {
	result := Result{Approved: true, Reasons: []string{}}

	if in.Action != proposal.ActionBuy {
		return result
	}
	if in.Account == nil || in.Account.PortfolioValue.IsZero() {
		result.Approved = false
		result.Reasons = append(result.Reasons, "portfolio value unavailable")
		return result
	}

	tradeValue := in.Price.Mul(decimal.NewFromInt(in.Quantity))

	currentValue := decimal.Zero
	totalExposure := decimal.Zero
	for _, pos := range in.Positions {
		totalExposure = totalExposure.Add(pos.MarketValue)
		if pos.Symbol == in.Ticker {
			currentValue = pos.MarketValue
		}
	}

	// A buy converts cash to position value, so total portfolio value is
	// unchanged by the simulated trade.
	hundred := decimal.NewFromInt(100)
	result.ConcentrationPct = currentValue.Add(tradeValue).Div(in.Account.PortfolioValue).Mul(hundred)
	result.ExposurePct = totalExposure.Add(tradeValue).Div(in.Account.PortfolioValue).Mul(hundred)

	if result.ConcentrationPct.GreaterThan(g.maxPositionPct) {
		result.Approved = false
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"position concentration %.1f%% exceeds limit %.1f%%",
			result.ConcentrationPct.InexactFloat64(), g.maxPositionPct.InexactFloat64()))
	}

	if result.ExposurePct.GreaterThan(g.maxExposurePct) {
		result.Approved = false
		result.Reasons = append(result.Reasons, fmt.Sprintf(
			"portfolio exposure %.1f%% exceeds limit %.1f%%",
			result.ExposurePct.InexactFloat64(), g.maxExposurePct.InexactFloat64()))
	}

	return result
}
