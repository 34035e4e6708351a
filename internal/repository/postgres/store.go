package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"helios/internal/domain/analysis"
	"helios/internal/domain/cycle"
	"helios/internal/domain/debate"
	"helios/internal/domain/market"
	"helios/internal/domain/news"
	"helios/internal/domain/proposal"
	"helios/internal/domain/trade"
	"helios/internal/engine"
	"helios/pkg/errors"
)

// Compile-time check
var _ engine.Store = (*Store)(nil)

// Store implements the engine's persistence boundary over postgres. Every
// stage-advancing method commits its audit event, its entity and the run's
// stage move in one transaction.
type Store struct {
	db        *sqlx.DB
	runs      *CycleRunRepository
	articles  *ArticleRepository
	trades    *TradeRepository
	snapshots *SnapshotRepository
}

// NewStore creates a store over an open connection pool
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:        db,
		runs:      NewCycleRunRepository(db),
		articles:  NewArticleRepository(db),
		trades:    NewTradeRepository(db),
		snapshots: NewSnapshotRepository(db),
	}
}

// withTx runs fn inside a transaction, rolling back on any error
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return errors.Wrap(tx.Commit(), "commit transaction")
}

// CreateRun inserts a fresh run
func (s *Store) CreateRun(ctx context.Context, run *cycle.Run) error {
	return s.runs.Create(ctx, run)
}

// AdvanceStage commits the stage's audit event together with the run's move
func (s *Store) AdvanceStage(ctx context.Context, run *cycle.Run, to cycle.Stage, event *analysis.Event) error {
	if !cycle.CanTransition(run.Stage, to) {
		return errors.Wrapf(errors.ErrInvalidInput, "illegal stage transition %s → %s", run.Stage, to)
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := NewAnalysisEventRepository(tx).Create(ctx, event); err != nil {
			return errors.Wrap(err, "insert analysis event")
		}
		return NewCycleRunRepository(tx).UpdateStage(ctx, run.ID, to)
	})
	if err != nil {
		return err
	}

	run.Stage = to
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// FinishRun commits the terminal stage and outcome, with the failure event
// when there is one
func (s *Store) FinishRun(ctx context.Context, run *cycle.Run, stage cycle.Stage, outcome cycle.Outcome, errMsg string, event *analysis.Event) error {
	if !cycle.CanTransition(run.Stage, stage) {
		return errors.Wrapf(errors.ErrInvalidInput, "illegal stage transition %s → %s", run.Stage, stage)
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if event != nil {
			if err := NewAnalysisEventRepository(tx).Create(ctx, event); err != nil {
				return errors.Wrap(err, "insert analysis event")
			}
		}
		return NewCycleRunRepository(tx).Finish(ctx, run.ID, stage, outcome, errMsg)
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	run.Stage = stage
	run.Outcome = outcome
	run.Error = errMsg
	run.UpdatedAt = now
	run.FinishedAt = &now
	return nil
}

// SaveDebate commits the debate, its event and the move to PROPOSING
func (s *Store) SaveDebate(ctx context.Context, run *cycle.Run, d *debate.Debate, event *analysis.Event) error {
	if !cycle.CanTransition(run.Stage, cycle.StageProposing) {
		return errors.Wrapf(errors.ErrInvalidInput, "illegal stage transition %s → %s", run.Stage, cycle.StageProposing)
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := NewDebateRepository(tx).Create(ctx, d); err != nil {
			return errors.Wrap(err, "insert debate")
		}
		if err := NewAnalysisEventRepository(tx).Create(ctx, event); err != nil {
			return errors.Wrap(err, "insert analysis event")
		}
		return NewCycleRunRepository(tx).UpdateStage(ctx, run.ID, cycle.StageProposing)
	})
	if err != nil {
		return err
	}

	run.Stage = cycle.StageProposing
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveProposal commits the PENDING proposal, its event and the move to
// REVIEWING
func (s *Store) SaveProposal(ctx context.Context, run *cycle.Run, p *proposal.TradeProposal, event *analysis.Event) error {
	if !cycle.CanTransition(run.Stage, cycle.StageReviewing) {
		return errors.Wrapf(errors.ErrInvalidInput, "illegal stage transition %s → %s", run.Stage, cycle.StageReviewing)
	}

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := NewProposalRepository(tx).Create(ctx, p); err != nil {
			return errors.Wrap(err, "insert proposal")
		}
		if err := NewAnalysisEventRepository(tx).Create(ctx, event); err != nil {
			return errors.Wrap(err, "insert analysis event")
		}
		return NewCycleRunRepository(tx).UpdateStage(ctx, run.ID, cycle.StageReviewing)
	})
	if err != nil {
		return err
	}

	run.Stage = cycle.StageReviewing
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// ApproveProposal flips PENDING→APPROVED with the review event and moves
// the run to EXECUTING. The proposal's quantity is persisted alongside the
// flip so a reviewer's size adjustment lands in the same transaction.
func (s *Store) ApproveProposal(ctx context.Context, run *cycle.Run, p *proposal.TradeProposal, event *analysis.Event) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := NewProposalRepository(tx).Approve(ctx, p.ID, p.Quantity); err != nil {
			return err
		}
		if err := NewAnalysisEventRepository(tx).Create(ctx, event); err != nil {
			return errors.Wrap(err, "insert analysis event")
		}
		return NewCycleRunRepository(tx).UpdateStage(ctx, run.ID, cycle.StageExecuting)
	})
	if err != nil {
		return err
	}

	run.Stage = cycle.StageExecuting
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// RejectProposal flips PENDING→REJECTED with the review event and finishes
// the run DONE with outcome HELD
func (s *Store) RejectProposal(ctx context.Context, run *cycle.Run, proposalID uuid.UUID, event *analysis.Event) error {
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := NewProposalRepository(tx).UpdateStatus(ctx, proposalID, proposal.StatusPending, proposal.StatusRejected); err != nil {
			return err
		}
		if err := NewAnalysisEventRepository(tx).Create(ctx, event); err != nil {
			return errors.Wrap(err, "insert analysis event")
		}
		return NewCycleRunRepository(tx).Finish(ctx, run.ID, cycle.StageDone, cycle.OutcomeHeld, "")
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	run.Stage = cycle.StageDone
	run.Outcome = cycle.OutcomeHeld
	run.UpdatedAt = now
	run.FinishedAt = &now
	return nil
}

// CompleteExecution records the broker's terminal verdict. A fill flips
// the proposal APPROVED→EXECUTED in the same transaction as the trade
// insert; anything else keeps the proposal APPROVED and aborts the run.
func (s *Store) CompleteExecution(ctx context.Context, run *cycle.Run, t *trade.ExecutedTrade, event *analysis.Event) error {
	filled := t.Status.Filled()

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if filled {
			// The single-submission latch: fails with ErrAlreadySubmitted
			// when another writer already flipped the status.
			if err := NewProposalRepository(tx).UpdateStatus(ctx, t.ProposalID, proposal.StatusApproved, proposal.StatusExecuted); err != nil {
				return err
			}
		}
		if err := NewTradeRepository(tx).Create(ctx, t); err != nil {
			return errors.Wrap(err, "insert executed trade")
		}
		if err := NewAnalysisEventRepository(tx).Create(ctx, event); err != nil {
			return errors.Wrap(err, "insert analysis event")
		}

		if filled {
			return NewCycleRunRepository(tx).Finish(ctx, run.ID, cycle.StageDone, cycle.OutcomeExecuted, "")
		}
		return NewCycleRunRepository(tx).Finish(ctx, run.ID, cycle.StageAborted, cycle.OutcomeAborted,
			fmt.Sprintf("order %s", t.Status))
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if filled {
		run.Stage = cycle.StageDone
		run.Outcome = cycle.OutcomeExecuted
	} else {
		run.Stage = cycle.StageAborted
		run.Outcome = cycle.OutcomeAborted
		run.Error = fmt.Sprintf("order %s", t.Status)
	}
	run.UpdatedAt = now
	run.FinishedAt = &now
	return nil
}

// LatestSnapshot returns the most recent stored snapshot for a ticker
func (s *Store) LatestSnapshot(ctx context.Context, ticker string) (*market.PriceSnapshot, error) {
	return s.snapshots.Latest(ctx, ticker)
}

// SaveSnapshot persists a price snapshot
func (s *Store) SaveSnapshot(ctx context.Context, snap *market.PriceSnapshot) error {
	return s.snapshots.Save(ctx, snap)
}

// RecentHeadlines returns title-only article views for the analysis stage
func (s *Store) RecentHeadlines(ctx context.Context, ticker string, since time.Time, limit int) ([]news.Headline, error) {
	return s.articles.RecentHeadlines(ctx, ticker, since, limit)
}

// RecentArticles returns full article bodies for the debate stage
func (s *Store) RecentArticles(ctx context.Context, ticker string, since time.Time, limit int) ([]news.Article, error) {
	return s.articles.RecentArticles(ctx, ticker, since, limit)
}

// RelatedArticles returns articles closest in embedding space to the
// given article, excluding the article itself. ErrNotFound when the
// seed article has no stored embedding yet.
func (s *Store) RelatedArticles(ctx context.Context, articleID int64, limit int) ([]news.Article, error) {
	embedding, err := s.articles.ArticleEmbedding(ctx, articleID)
	if err != nil {
		return nil, err
	}

	// Over-fetch by one: the seed article is its own nearest neighbor.
	candidates, err := s.articles.SimilarArticles(ctx, embedding, limit+1)
	if err != nil {
		return nil, err
	}

	related := make([]news.Article, 0, limit)
	for _, a := range candidates {
		if a.ID == articleID {
			continue
		}
		related = append(related, a)
		if len(related) == limit {
			break
		}
	}
	return related, nil
}

// RecentTrades returns executed trades since the cutoff; empty ticker
// means across the whole portfolio
func (s *Store) RecentTrades(ctx context.Context, ticker string, since time.Time, limit int) ([]trade.ExecutedTrade, error) {
	return s.trades.ListSince(ctx, ticker, since, limit)
}
