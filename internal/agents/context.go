package agents

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"helios/pkg/errors"
)

// HeadlineRef is a title-only view of an article. The analysis stage
// deliberately withholds article bodies so the cheap headline scan cannot
// do the debate's job.
type HeadlineRef struct {
	Title       string `json:"title"`
	PublishedAt string `json:"published_at"`
}

// TradeRef summarizes a recent execution for prompt context
type TradeRef struct {
	Ticker     string          `json:"ticker"`
	Action     string          `json:"action"`
	Quantity   int64           `json:"quantity"`
	FillPrice  decimal.Decimal `json:"fill_price"`
	ExecutedAt string          `json:"executed_at"`
}

// AnalysisContext feeds the headline scan
type AnalysisContext struct {
	Ticker             string          `json:"ticker"`
	CurrentPrice       decimal.Decimal `json:"current_price"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent"`
	HeadlineCount      int             `json:"recent_headlines_count"`
	Headlines          []HeadlineRef   `json:"headlines"`
}

// DebateContext feeds both debaters and the consensus synthesis. Unlike
// the analysis stage it carries full article bodies.
type DebateContext struct {
	Ticker       string          `json:"ticker"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Articles     []string        `json:"articles"`
	ArticleCount int             `json:"article_count"`
	// RelatedArticles are embedding-space neighbors of the freshest
	// recent article, widening coverage beyond the ticker's own feed.
	RelatedArticles []string   `json:"related_articles,omitempty"`
	RecentTrades    []TradeRef `json:"recent_trades"`
}

// ProposalContext feeds the trade proposal stage
type ProposalContext struct {
	Ticker       string          `json:"ticker"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Consensus    string          `json:"consensus"`
	Lean         string          `json:"lean"`
	RecentTrades []TradeRef      `json:"recent_trades"`
}

// AccountView is the broker account summary shown to the manager
type AccountView struct {
	Cash           decimal.Decimal `json:"cash"`
	BuyingPower    decimal.Decimal `json:"buying_power"`
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
}

// PositionView is one open position shown to the manager
type PositionView struct {
	Symbol       string          `json:"symbol"`
	Qty          int64           `json:"qty"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
	UnrealizedPL decimal.Decimal `json:"unrealized_pl"`
}

// ProposalView is the proposal under review
type ProposalView struct {
	Ticker          string          `json:"ticker"`
	Action          string          `json:"action"`
	Quantity        int64           `json:"quantity"`
	ProposedPrice   decimal.Decimal `json:"proposed_price"`
	Reasoning       string          `json:"reasoning"`
	ConfidenceScore float64         `json:"confidence_score"`
}

// ReviewContext feeds the portfolio manager's review
type ReviewContext struct {
	Proposal        ProposalView   `json:"proposal"`
	Account         AccountView    `json:"account"`
	CurrentPosition *PositionView  `json:"current_position,omitempty"`
	Positions       []PositionView `json:"positions"`
	RecentTrades    []TradeRef     `json:"recent_trades"`
}

// renderContext serializes prompt context as indented JSON
func renderContext(v interface{}) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "marshal prompt context")
	}
	return string(b), nil
}
