package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"helios/internal/domain/analysis"
	"helios/internal/domain/cycle"
	"helios/internal/domain/debate"
	"helios/internal/domain/market"
	"helios/internal/domain/news"
	"helios/internal/domain/proposal"
	"helios/internal/domain/trade"
)

// Store is the engine's persistence boundary. Every stage-advancing method
// commits the stage's analysis event, its entity and the run's stage move
// in one transaction, so a crash can never leave a half-written stage.
// On success the methods update the passed run in place.
type Store interface {
	// CreateRun inserts a fresh run in the initial stage
	CreateRun(ctx context.Context, run *cycle.Run) error

	// AdvanceStage records a plain stage transition with its audit event
	AdvanceStage(ctx context.Context, run *cycle.Run, to cycle.Stage, event *analysis.Event) error

	// FinishRun records a terminal stage and outcome. event may be nil for
	// clean completions; failures always carry their failure event.
	FinishRun(ctx context.Context, run *cycle.Run, stage cycle.Stage, outcome cycle.Outcome, errMsg string, event *analysis.Event) error

	// SaveDebate persists the debate and moves the run to PROPOSING
	SaveDebate(ctx context.Context, run *cycle.Run, d *debate.Debate, event *analysis.Event) error

	// SaveProposal persists the PENDING proposal and moves the run to REVIEWING
	SaveProposal(ctx context.Context, run *cycle.Run, p *proposal.TradeProposal, event *analysis.Event) error

	// ApproveProposal flips the proposal PENDING→APPROVED and moves the run
	// to EXECUTING, persisting the proposal's quantity as reviewed (it may
	// have been adjusted). Called under the review guard's lock.
	ApproveProposal(ctx context.Context, run *cycle.Run, p *proposal.TradeProposal, event *analysis.Event) error

	// RejectProposal flips the proposal PENDING→REJECTED and finishes the
	// run as DONE with outcome HELD
	RejectProposal(ctx context.Context, run *cycle.Run, proposalID uuid.UUID, event *analysis.Event) error

	// CompleteExecution records the broker's terminal verdict. A filled
	// trade (full or partial) flips the proposal APPROVED→EXECUTED in the
	// same transaction as the trade insert — the single-submission latch —
	// and finishes the run DONE/EXECUTED. A rejected or cancelled order
	// keeps the proposal APPROVED and finishes the run ABORTED.
	// Returns errors.ErrAlreadySubmitted when the latch has already flipped.
	CompleteExecution(ctx context.Context, run *cycle.Run, t *trade.ExecutedTrade, event *analysis.Event) error

	// Context reads

	LatestSnapshot(ctx context.Context, ticker string) (*market.PriceSnapshot, error)
	SaveSnapshot(ctx context.Context, s *market.PriceSnapshot) error
	RecentHeadlines(ctx context.Context, ticker string, since time.Time, limit int) ([]news.Headline, error)
	RecentArticles(ctx context.Context, ticker string, since time.Time, limit int) ([]news.Article, error)

	// RelatedArticles lists articles closest in embedding space to the given
	// one, excluding it. ErrNotFound when no embedding is stored for it yet.
	RelatedArticles(ctx context.Context, articleID int64, limit int) ([]news.Article, error)

	// RecentTrades lists executed trades since the cutoff; empty ticker
	// means across the whole portfolio
	RecentTrades(ctx context.Context, ticker string, since time.Time, limit int) ([]trade.ExecutedTrade, error)
}
