package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"helios/internal/agents"
	"helios/internal/agents/schemas"
	"helios/internal/domain/analysis"
	"helios/internal/domain/cycle"
	"helios/internal/domain/debate"
	"helios/internal/domain/news"
	"helios/pkg/errors"
)

// debate runs the bull-vs-bear exchange and synthesizes the consensus.
// Round 1 opening arguments run in parallel with no mutual visibility;
// exactly one rebuttal round follows where each side sees both openings,
// unless the round cap forces immediate synthesis. The debate record and
// its audit event commit together with the move to PROPOSING.
func (e *Engine) debate(ctx context.Context, run *cycle.Run, traderEventID uuid.UUID) (*debate.Debate, schemas.Consensus, error) {
	sctx, cancel := e.stageContext(ctx)
	defer cancel()
	defer e.timeStage(cycle.StageDebating)()

	in, err := e.debateContext(sctx, run.Ticker)
	if err != nil {
		return nil, schemas.Consensus{}, err
	}

	transcript := debate.Transcript{}

	opening, err := e.debateRound(sctx, func(rctx context.Context) (string, error) {
		return e.bull.Argue(rctx, in)
	}, func(rctx context.Context) (string, error) {
		return e.bear.Argue(rctx, in)
	})
	if err != nil {
		return nil, schemas.Consensus{}, err
	}
	transcript.Rounds = append(transcript.Rounds, opening)

	if e.cfg.MaxDebateRounds >= 2 {
		rebuttal, err := e.debateRound(sctx, func(rctx context.Context) (string, error) {
			return e.bull.Rebut(rctx, in, opening.Bull, opening.Bear)
		}, func(rctx context.Context) (string, error) {
			return e.bear.Rebut(rctx, in, opening.Bear, opening.Bull)
		})
		if err != nil {
			return nil, schemas.Consensus{}, err
		}
		transcript.Rounds = append(transcript.Rounds, rebuttal)
	}

	rendered, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return nil, schemas.Consensus{}, errors.Wrap(err, "render transcript")
	}

	var consensus schemas.Consensus
	if err := e.reasonRetry.Do(sctx, func() error {
		var cerr error
		consensus, cerr = e.trader.SynthesizeConsensus(sctx, run.Ticker, string(rendered))
		return cerr
	}); err != nil {
		return nil, schemas.Consensus{}, err
	}

	deb, err := debate.New(run.Ticker, transcript, consensus.Consensus, traderEventID)
	if err != nil {
		return nil, schemas.Consensus{}, errors.Wrap(err, "build debate record")
	}

	event := analysis.NewEvent(run.Ticker, analysis.EventDebate, agents.RoleTrader.String(),
		consensus.Consensus, jsonBytes(in), jsonBytes(consensus))

	if err := e.store.SaveDebate(sctx, run, deb, event); err != nil {
		return nil, schemas.Consensus{}, errors.Wrap(err, "save debate")
	}

	return deb, consensus, nil
}

// debateRound runs one bull call and one bear call concurrently. Each call
// carries its own transient-retry budget; the round fails if either side
// fails.
func (e *Engine) debateRound(ctx context.Context, bullFn, bearFn func(context.Context) (string, error)) (debate.Round, error) {
	var (
		wg      sync.WaitGroup
		round   debate.Round
		bullErr error
		bearErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		bullErr = e.reasonRetry.Do(ctx, func() error {
			arg, err := bullFn(ctx)
			if err != nil {
				return err
			}
			round.Bull = arg
			return nil
		})
	}()
	go func() {
		defer wg.Done()
		bearErr = e.reasonRetry.Do(ctx, func() error {
			arg, err := bearFn(ctx)
			if err != nil {
				return err
			}
			round.Bear = arg
			return nil
		})
	}()
	wg.Wait()

	if bullErr != nil {
		return debate.Round{}, errors.Wrap(bullErr, "bull argument")
	}
	if bearErr != nil {
		return debate.Round{}, errors.Wrap(bearErr, "bear argument")
	}

	return round, nil
}

// debateContext assembles the full-article context both debaters share
func (e *Engine) debateContext(ctx context.Context, ticker string) (agents.DebateContext, error) {
	snap, err := e.snapshot(ctx, ticker)
	if err != nil {
		return agents.DebateContext{}, err
	}

	articles, err := e.store.RecentArticles(ctx, ticker, time.Now().UTC().Add(-headlineWindow), articleLimit)
	if err != nil {
		return agents.DebateContext{}, errors.Wrap(err, "load recent articles")
	}

	trades, err := e.store.RecentTrades(ctx, ticker, time.Now().UTC().AddDate(0, 0, -30), tradeContextLen)
	if err != nil {
		return agents.DebateContext{}, errors.Wrap(err, "load recent trades")
	}

	texts := make([]string, 0, len(articles))
	for _, a := range articles {
		if a.ContentText == "" {
			continue
		}
		texts = append(texts, a.Excerpt(articleExcerpt))
	}

	return agents.DebateContext{
		Ticker:          ticker,
		CurrentPrice:    snap.Price,
		Articles:        texts,
		ArticleCount:    len(texts),
		RelatedArticles: e.relatedArticles(ctx, articles),
		RecentTrades:    tradeRefs(trades),
	}, nil
}

// relatedArticles widens the debate context with articles closest in
// embedding space to the freshest recent article, so the debaters see
// coverage beyond the ticker's own feed. The enrichment is supplemental:
// a missing embedding or a lookup failure never fails the debate.
func (e *Engine) relatedArticles(ctx context.Context, recent []news.Article) []string {
	if len(recent) == 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(recent))
	for _, a := range recent {
		seen[a.ID] = struct{}{}
	}

	related, err := e.store.RelatedArticles(ctx, recent[0].ID, relatedArticleLimit)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			e.log.Warnw("Related article lookup failed", "article_id", recent[0].ID, "error", err)
		}
		return nil
	}

	texts := make([]string, 0, len(related))
	for _, a := range related {
		if a.ContentText == "" {
			continue
		}
		if _, ok := seen[a.ID]; ok {
			continue
		}
		texts = append(texts, a.Excerpt(articleExcerpt))
	}
	return texts
}
