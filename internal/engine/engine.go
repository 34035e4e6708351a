// Package engine drives one ticker through the trading workflow:
// ANALYZING → DEBATING → PROPOSING → REVIEWING → EXECUTING → DONE, with
// ABORTED and FAILED absorbing stages. Each stage transition is persisted
// atomically with its audit event; a cycle failure never escapes to the
// caller as a panic or error storm, it is recorded and the run finishes in
// an absorbing stage.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"helios/internal/agents"
	"helios/internal/agents/schemas"
	"helios/internal/domain/analysis"
	"helios/internal/domain/cycle"
	"helios/internal/domain/market"
	"helios/internal/domain/proposal"
	"helios/internal/domain/risk"
	"helios/internal/domain/trade"
	"helios/internal/metrics"
	"helios/pkg/errors"
	"helios/pkg/logger"
	"helios/pkg/retry"
)

const (
	headlineWindow      = 24 * time.Hour
	headlineLimit       = 30
	articleLimit        = 20
	articleExcerpt      = 1000
	relatedArticleLimit = 5
	tradeContextLen     = 5
)

// Config bounds a single cycle's behavior
type Config struct {
	MinConfidence   float64
	MaxDebateRounds int
	StageDeadline   time.Duration
	SnapshotMaxAge  time.Duration
	ReasoningRetry  retry.Config
	MarketRetry     retry.Config
}

// Engine owns cycle runs from creation to their absorbing stage
type Engine struct {
	store   Store
	data    market.DataPort
	exec    market.ExecutionPort
	trader  *agents.Trader
	bull    *agents.Debater
	bear    *agents.Debater
	manager *agents.PortfolioManager
	guard   *risk.Guard

	reasonRetry *retry.Middleware
	marketRetry *retry.Middleware

	cfg Config
	log *logger.Logger
}

// New creates a workflow engine
func New(
	store Store,
	data market.DataPort,
	exec market.ExecutionPort,
	trader *agents.Trader,
	bull, bear *agents.Debater,
	manager *agents.PortfolioManager,
	guard *risk.Guard,
	cfg Config,
) *Engine {
	if cfg.MaxDebateRounds <= 0 {
		cfg.MaxDebateRounds = 2
	}
	if cfg.StageDeadline <= 0 {
		cfg.StageDeadline = 5 * time.Minute
	}
	if cfg.SnapshotMaxAge <= 0 {
		cfg.SnapshotMaxAge = 30 * time.Minute
	}

	return &Engine{
		store:       store,
		data:        data,
		exec:        exec,
		trader:      trader,
		bull:        bull,
		bear:        bear,
		manager:     manager,
		guard:       guard,
		reasonRetry: retry.New(cfg.ReasoningRetry),
		marketRetry: retry.New(cfg.MarketRetry),
		cfg:         cfg,
		log:         logger.Get().With("component", "engine"),
	}
}

// RunCycle drives one ticker through the full workflow. It always returns
// a run in an absorbing stage; stage failures are persisted and reported
// through the run's outcome, never propagated. The returned error is
// non-nil only when persistence itself is broken.
//
// Shutdown is honored at stage checkpoints: ctx cancellation is checked
// after each persisted transition, and stage work in flight is allowed to
// finish under its own deadline rather than being cut mid-stage.
func (e *Engine) RunCycle(ctx context.Context, ticker string) (*cycle.Run, error) {
	run := cycle.NewRun(ticker)
	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, errors.Wrapf(err, "create run for %s", ticker)
	}

	log := e.log.With("ticker", ticker, "run_id", run.ID)
	log.Infow("Cycle started")

	// ANALYZING
	analysisEventID, err := e.analyze(ctx, run)
	if err != nil {
		return run, e.fail(ctx, run, cycle.StageAnalyzing, err)
	}
	if run.Finished() {
		// not interesting, finished DONE/HELD inside analyze
		e.recordOutcome(run)
		return run, nil
	}
	if e.checkpoint(ctx, run) {
		return run, nil
	}

	// DEBATING
	deb, consensus, err := e.debate(ctx, run, analysisEventID)
	if err != nil {
		return run, e.fail(ctx, run, cycle.StageDebating, err)
	}
	if e.checkpoint(ctx, run) {
		return run, nil
	}

	// PROPOSING
	prop, err := e.propose(ctx, run, analysisEventID, deb.ID, consensus)
	if err != nil {
		return run, e.fail(ctx, run, cycle.StageProposing, err)
	}
	if e.checkpoint(ctx, run) {
		return run, nil
	}

	// REVIEWING
	reviewerReasoning, approved, err := e.review(ctx, run, prop)
	if err != nil {
		return run, e.fail(ctx, run, cycle.StageReviewing, err)
	}
	if !approved {
		e.recordOutcome(run)
		return run, nil
	}
	if e.checkpoint(ctx, run) {
		return run, nil
	}

	// EXECUTING
	if err := e.execute(ctx, run, prop, reviewerReasoning); err != nil {
		return run, e.fail(ctx, run, cycle.StageExecuting, err)
	}

	e.recordOutcome(run)
	log.Infow("Cycle finished", "outcome", run.Outcome)
	return run, nil
}

// stageContext detaches stage work from shutdown cancellation and bounds
// it by the stage deadline. Shutdown is honored between stages, at the
// persisted checkpoints, never mid-stage.
func (e *Engine) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.cfg.StageDeadline)
}

// checkpoint finishes the run as ABORTED when shutdown was requested.
// Returns true when the cycle must stop here.
func (e *Engine) checkpoint(ctx context.Context, run *cycle.Run) bool {
	if ctx.Err() == nil {
		return false
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	event := analysis.NewEvent(run.Ticker, analysis.EventStageFailure, "engine",
		fmt.Sprintf("shutdown requested during stage %s", run.Stage), nil, nil)
	if err := e.store.FinishRun(pctx, run, cycle.StageAborted, cycle.OutcomeAborted, "shutdown", event); err != nil {
		e.log.Errorw("Failed to persist shutdown abort", "ticker", run.Ticker, "error", err)
	}
	e.recordOutcome(run)
	return true
}

// analyze runs the headline scan. A not-interesting verdict finishes the
// run DONE/HELD right here; an interesting one advances it to DEBATING.
func (e *Engine) analyze(ctx context.Context, run *cycle.Run) (uuid.UUID, error) {
	sctx, cancel := e.stageContext(ctx)
	defer cancel()
	defer e.timeStage(cycle.StageAnalyzing)()

	snap, err := e.snapshot(sctx, run.Ticker)
	if err != nil {
		return uuid.Nil, err
	}

	headlines, err := e.store.RecentHeadlines(sctx, run.Ticker, time.Now().UTC().Add(-headlineWindow), headlineLimit)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "load recent headlines")
	}

	in := agents.AnalysisContext{
		Ticker:             run.Ticker,
		CurrentPrice:       snap.Price,
		PriceChangePercent: snap.ChangePercent(),
		HeadlineCount:      len(headlines),
		Headlines:          make([]agents.HeadlineRef, 0, len(headlines)),
	}
	for _, h := range headlines {
		ref := agents.HeadlineRef{Title: h.Title}
		if h.Timestamp != nil {
			ref.PublishedAt = h.Timestamp.Format(time.RFC3339)
		}
		in.Headlines = append(in.Headlines, ref)
	}

	var verdict schemas.AnalysisVerdict
	if err := e.reasonRetry.Do(sctx, func() error {
		var aerr error
		verdict, aerr = e.trader.AnalyzeHeadlines(sctx, in)
		return aerr
	}); err != nil {
		return uuid.Nil, err
	}

	event := analysis.NewEvent(run.Ticker, analysis.EventTickerAnalysis, agents.RoleTrader.String(),
		verdict.Reasoning, jsonBytes(in), jsonBytes(verdict))

	if !verdict.IsInteresting {
		if err := e.store.FinishRun(sctx, run, cycle.StageDone, cycle.OutcomeHeld, "", event); err != nil {
			return uuid.Nil, errors.Wrap(err, "finish uninteresting run")
		}
		return event.ID, nil
	}

	if err := e.store.AdvanceStage(sctx, run, cycle.StageDebating, event); err != nil {
		return uuid.Nil, errors.Wrap(err, "advance to debating")
	}

	return event.ID, nil
}

// propose turns the debate consensus into a persisted PENDING proposal and
// advances the run to REVIEWING
func (e *Engine) propose(ctx context.Context, run *cycle.Run, analysisEventID, debateID uuid.UUID, consensus schemas.Consensus) (*proposal.TradeProposal, error) {
	sctx, cancel := e.stageContext(ctx)
	defer cancel()
	defer e.timeStage(cycle.StageProposing)()

	snap, err := e.snapshot(sctx, run.Ticker)
	if err != nil {
		return nil, err
	}

	trades, err := e.store.RecentTrades(sctx, run.Ticker, time.Now().UTC().AddDate(0, 0, -7), tradeContextLen)
	if err != nil {
		return nil, errors.Wrap(err, "load recent trades")
	}

	in := agents.ProposalContext{
		Ticker:       run.Ticker,
		CurrentPrice: snap.Price,
		Consensus:    consensus.Consensus,
		Lean:         consensus.Lean,
		RecentTrades: tradeRefs(trades),
	}

	var decision schemas.ProposalDecision
	if err := e.reasonRetry.Do(sctx, func() error {
		var perr error
		decision, perr = e.trader.ProposeTrade(sctx, in)
		return perr
	}); err != nil {
		return nil, err
	}

	prop := proposal.New(run.Ticker, proposal.Action(decision.Action), decision.Quantity,
		snap.Price, decision.Reasoning, decision.ConfidenceScore, analysisEventID, debateID)

	event := analysis.NewEvent(run.Ticker, analysis.EventTradeProposal, agents.RoleTrader.String(),
		decision.Reasoning, jsonBytes(in), jsonBytes(decision))

	if err := e.store.SaveProposal(sctx, run, prop, event); err != nil {
		return nil, errors.Wrap(err, "save proposal")
	}

	return prop, nil
}

// review applies the manager's judgment and the hard risk gates. The
// concentration check and the approval write run under the guard's lock so
// concurrent reviews cannot jointly breach a limit. Returns the manager's
// reasoning and whether execution should follow.
func (e *Engine) review(ctx context.Context, run *cycle.Run, prop *proposal.TradeProposal) (string, bool, error) {
	sctx, cancel := e.stageContext(ctx)
	defer cancel()
	defer e.timeStage(cycle.StageReviewing)()

	// A HOLD carries nothing to execute; it settles the cycle as HELD
	// without consulting the manager.
	if !prop.Action.Tradeable() {
		event := analysis.NewEvent(run.Ticker, analysis.EventProposalReview, agents.RolePortfolioManager.String(),
			"HOLD proposal, nothing to execute", jsonBytes(prop), nil)
		if err := e.store.RejectProposal(sctx, run, prop.ID, event); err != nil {
			return "", false, errors.Wrap(err, "settle hold proposal")
		}
		return "", false, nil
	}

	account, positions, err := e.portfolioState(sctx)
	if err != nil {
		return "", false, err
	}

	in := agents.ReviewContext{
		Proposal: agents.ProposalView{
			Ticker:          prop.Ticker,
			Action:          prop.Action.String(),
			Quantity:        prop.Quantity,
			ProposedPrice:   prop.ProposedPrice,
			Reasoning:       prop.Reasoning,
			ConfidenceScore: prop.ConfidenceScore,
		},
		Account: agents.AccountView{
			Cash:           account.Cash,
			BuyingPower:    account.BuyingPower,
			PortfolioValue: account.PortfolioValue,
		},
		Positions: make([]agents.PositionView, 0, len(positions)),
	}
	for _, pos := range positions {
		view := agents.PositionView{
			Symbol:       pos.Symbol,
			Qty:          pos.Qty,
			CurrentPrice: pos.CurrentPrice,
			MarketValue:  pos.MarketValue,
			UnrealizedPL: pos.UnrealizedPL,
		}
		if pos.Symbol == prop.Ticker {
			current := view
			in.CurrentPosition = &current
		}
		in.Positions = append(in.Positions, view)
	}

	trades, err := e.store.RecentTrades(sctx, "", time.Now().UTC().AddDate(0, 0, -7), 10)
	if err != nil {
		return "", false, errors.Wrap(err, "load recent trades")
	}
	in.RecentTrades = tradeRefs(trades)

	var decision schemas.ReviewDecision
	if err := e.reasonRetry.Do(sctx, func() error {
		var rerr error
		decision, rerr = e.manager.Review(sctx, in)
		return rerr
	}); err != nil {
		return "", false, err
	}

	// Hard gates override the manager: minimum confidence and the
	// concentration limits hold no matter what the review answered.
	rejectReason := ""
	if decision.Approved() && prop.ConfidenceScore < e.cfg.MinConfidence {
		rejectReason = fmt.Sprintf("confidence %.0f below required %.0f", prop.ConfidenceScore, e.cfg.MinConfidence)
		metrics.ReviewRejections.WithLabelValues(prop.Ticker, "confidence").Inc()
	}

	quantity := prop.Quantity
	if decision.AdjustedQuantity != nil {
		quantity = *decision.AdjustedQuantity
	}

	approved := false
	err = e.guard.Serialized(func() error {
		check := e.guard.Check(risk.CheckInput{
			Ticker:    prop.Ticker,
			Action:    prop.Action,
			Quantity:  quantity,
			Price:     prop.ProposedPrice,
			Account:   account,
			Positions: positions,
		})

		if decision.Approved() && rejectReason == "" && !check.Approved {
			rejectReason = fmt.Sprintf("risk gate: %v", check.Reasons)
			metrics.ReviewRejections.WithLabelValues(prop.Ticker, "concentration").Inc()
		}

		reasoning := decision.Reasoning
		if rejectReason != "" {
			reasoning = fmt.Sprintf("%s [Rejected: %s]", reasoning, rejectReason)
		}

		event := analysis.NewEvent(run.Ticker, analysis.EventProposalReview, agents.RolePortfolioManager.String(),
			reasoning, jsonBytes(in), jsonBytes(decision))

		if decision.Approved() && rejectReason == "" {
			approved = true
			prop.Quantity = quantity
			return e.store.ApproveProposal(sctx, run, prop, event)
		}

		if decision.Approved() && rejectReason != "" {
			decision.Decision = "REJECT"
			decision.Reasoning = reasoning
		} else {
			metrics.ReviewRejections.WithLabelValues(prop.Ticker, "manager").Inc()
		}
		return e.store.RejectProposal(sctx, run, prop.ID, event)
	})
	if err != nil {
		return "", false, errors.Wrap(err, "persist review decision")
	}

	return decision.Reasoning, approved, nil
}

// execute submits the approved proposal's order exactly once and settles
// the run. A fill (full or partial) finishes DONE/EXECUTED; a definitive
// broker rejection finishes ABORTED; market unavailability past the retry
// budget finishes ABORTED with the proposal left APPROVED for manual
// reconciliation.
func (e *Engine) execute(ctx context.Context, run *cycle.Run, prop *proposal.TradeProposal, reviewerReasoning string) error {
	sctx, cancel := e.stageContext(ctx)
	defer cancel()
	defer e.timeStage(cycle.StageExecuting)()

	var result *market.ExecutionResult
	err := e.marketRetry.Do(sctx, func() error {
		r, perr := e.exec.PlaceOrder(sctx, prop.Ticker, prop.Action.String(), prop.Quantity)
		if perr != nil {
			return perr
		}
		result = r
		return nil
	})

	switch {
	case err == nil:
		// fall through to record the broker's verdict

	case errors.Is(err, errors.ErrOrderRejected):
		// Definitive broker refusal: auditable trade row, cycle ABORTED,
		// proposal stays APPROVED.
		rejected := &trade.ExecutedTrade{
			ID:                uuid.New(),
			ProposalID:        prop.ID,
			Ticker:            prop.Ticker,
			Action:            prop.Action.String(),
			Quantity:          prop.Quantity,
			ExecutionPrice:    prop.ProposedPrice,
			ReviewerReasoning: reviewerReasoning,
			Status:            trade.StatusRejected,
			ExecutedAt:        time.Now().UTC(),
		}
		event := analysis.NewEvent(run.Ticker, analysis.EventTradeExecution, agents.RolePortfolioManager.String(),
			err.Error(), jsonBytes(prop), nil)
		metrics.TradesSubmitted.WithLabelValues(prop.Ticker, prop.Action.String(), trade.StatusRejected.String()).Inc()
		return errors.Wrap(e.store.CompleteExecution(sctx, run, rejected, event), "record rejected execution")

	case errors.Is(err, errors.ErrRetryBudget) || errors.Is(err, errors.ErrMarketUnavailable):
		// The broker was never confirmed to have the order. Abort loudly
		// and leave the proposal APPROVED so reconciliation can find it.
		e.log.Errorw("Execution aborted, proposal left APPROVED for reconciliation",
			"ticker", prop.Ticker, "proposal_id", prop.ID, "error", err)
		event := analysis.NewEvent(run.Ticker, analysis.EventStageFailure, "engine",
			fmt.Sprintf("market unavailable, order not confirmed: %v", err), jsonBytes(prop), nil)
		return errors.Wrap(
			e.store.FinishRun(sctx, run, cycle.StageAborted, cycle.OutcomeAborted, err.Error(), event),
			"abort unexecutable run")

	default:
		return err
	}

	price := result.FillPrice
	if price.IsZero() {
		price = prop.ProposedPrice
	}
	quantity := result.FilledQty
	if quantity == 0 {
		quantity = prop.Quantity
	}

	executed := &trade.ExecutedTrade{
		ID:                uuid.New(),
		ProposalID:        prop.ID,
		Ticker:            prop.Ticker,
		Action:            prop.Action.String(),
		Quantity:          quantity,
		ExecutionPrice:    price,
		AlpacaOrderID:     result.OrderID,
		ReviewerReasoning: reviewerReasoning,
		Status:            trade.Status(result.Status),
		ExecutedAt:        time.Now().UTC(),
	}

	event := analysis.NewEvent(run.Ticker, analysis.EventTradeExecution, agents.RolePortfolioManager.String(),
		reviewerReasoning, jsonBytes(prop), jsonBytes(result))

	metrics.TradesSubmitted.WithLabelValues(prop.Ticker, prop.Action.String(), executed.Status.String()).Inc()

	return errors.Wrap(e.store.CompleteExecution(sctx, run, executed, event), "record execution")
}

// fail persists the stage failure event and finishes the run FAILED. The
// returned error is reserved for persistence breakage.
func (e *Engine) fail(ctx context.Context, run *cycle.Run, stage cycle.Stage, cause error) error {
	e.log.Errorw("Cycle stage failed",
		"ticker", run.Ticker,
		"run_id", run.ID,
		"stage", stage,
		"error", cause,
	)

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	event := analysis.NewEvent(run.Ticker, analysis.EventStageFailure, "engine",
		fmt.Sprintf("stage %s failed: %v", stage, cause), nil, nil)

	if err := e.store.FinishRun(pctx, run, cycle.StageFailed, cycle.OutcomeFailed, cause.Error(), event); err != nil {
		return errors.Wrapf(err, "persist failure of run %s", run.ID)
	}
	e.recordOutcome(run)
	return nil
}

// snapshot returns a usable price snapshot, fetching and persisting a
// fresh one when the stored snapshot is missing or stale. A stale stored
// snapshot is still used as a fallback when the vendor is down.
func (e *Engine) snapshot(ctx context.Context, ticker string) (*market.PriceSnapshot, error) {
	stored, err := e.store.LatestSnapshot(ctx, ticker)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Wrap(err, "load snapshot")
	}
	if stored != nil && !stored.Stale(e.cfg.SnapshotMaxAge) {
		return stored, nil
	}

	var fresh *market.PriceSnapshot
	fetchErr := e.marketRetry.Do(ctx, func() error {
		f, ferr := e.data.GetSnapshot(ctx, ticker)
		if ferr != nil {
			return ferr
		}
		fresh = f
		return nil
	})
	if fetchErr != nil {
		if stored != nil {
			e.log.Warnw("Snapshot fetch failed, using stale snapshot",
				"ticker", ticker, "age", time.Since(stored.SnapshotTime), "error", fetchErr)
			return stored, nil
		}
		return nil, errors.Wrapf(errors.ErrSnapshotStale, "no snapshot for %s: %v", ticker, fetchErr)
	}

	if err := e.store.SaveSnapshot(ctx, fresh); err != nil {
		e.log.Warnw("Failed to persist snapshot", "ticker", ticker, "error", err)
	}

	return fresh, nil
}

// portfolioState reads the broker account and positions for review
func (e *Engine) portfolioState(ctx context.Context) (*market.Account, []market.Position, error) {
	var account *market.Account
	if err := e.marketRetry.Do(ctx, func() error {
		a, aerr := e.exec.GetAccount(ctx)
		if aerr != nil {
			return aerr
		}
		account = a
		return nil
	}); err != nil {
		return nil, nil, errors.Wrap(err, "fetch account")
	}

	var positions []market.Position
	if err := e.marketRetry.Do(ctx, func() error {
		p, perr := e.exec.GetPositions(ctx)
		if perr != nil {
			return perr
		}
		positions = p
		return nil
	}); err != nil {
		return nil, nil, errors.Wrap(err, "fetch positions")
	}

	return account, positions, nil
}

func (e *Engine) recordOutcome(run *cycle.Run) {
	if run.Outcome != "" {
		metrics.RecordCycleOutcome(run.Ticker, run.Outcome.String())
	}
}

func (e *Engine) timeStage(stage cycle.Stage) func() {
	start := time.Now()
	return func() {
		metrics.RecordStageDuration(stage.String(), time.Since(start))
	}
}

func tradeRefs(trades []trade.ExecutedTrade) []agents.TradeRef {
	refs := make([]agents.TradeRef, 0, len(trades))
	for _, t := range trades {
		refs = append(refs, agents.TradeRef{
			Ticker:     t.Ticker,
			Action:     t.Action,
			Quantity:   t.Quantity,
			FillPrice:  t.ExecutionPrice,
			ExecutedAt: t.ExecutedAt.Format(time.RFC3339),
		})
	}
	return refs
}

func jsonBytes(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}
	return b
}
