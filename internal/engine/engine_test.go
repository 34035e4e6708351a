package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios/internal/agents"
	"helios/internal/domain/analysis"
	"helios/internal/domain/cycle"
	"helios/internal/domain/debate"
	"helios/internal/domain/market"
	"helios/internal/domain/news"
	"helios/internal/domain/proposal"
	"helios/internal/domain/risk"
	"helios/internal/domain/trade"
	"helios/pkg/errors"
	"helios/pkg/retry"
)

// scriptedPort answers reasoning calls from per-role reply queues. The last
// reply in a queue is sticky so a role can be called more often than it was
// scripted for.
type scriptedPort struct {
	mu      sync.Mutex
	replies map[agents.Role][]string
	fail    map[agents.Role]error
	calls   map[agents.Role]int
	prompts map[agents.Role][]string
}

func (p *scriptedPort) Invoke(_ context.Context, req agents.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.calls == nil {
		p.calls = map[agents.Role]int{}
	}
	p.calls[req.Role]++

	if p.prompts == nil {
		p.prompts = map[agents.Role][]string{}
	}
	p.prompts[req.Role] = append(p.prompts[req.Role], req.Prompt)

	if err := p.fail[req.Role]; err != nil {
		return "", err
	}

	queue := p.replies[req.Role]
	if len(queue) == 0 {
		return "", errors.ErrInvalidOutput
	}
	body := queue[0]
	if len(queue) > 1 {
		p.replies[req.Role] = queue[1:]
	}
	return body, nil
}

func (p *scriptedPort) callCount(role agents.Role) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[role]
}

func (p *scriptedPort) promptsFor(role agents.Role) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts[role]...)
}

type fakeData struct {
	mu    sync.Mutex
	snap  *market.PriceSnapshot
	err   error
	calls int
}

func (d *fakeData) GetSnapshot(_ context.Context, ticker string) (*market.PriceSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	snap := *d.snap
	snap.Ticker = ticker
	return &snap, nil
}

func (d *fakeData) IsMarketOpen(context.Context) (bool, error) {
	return true, nil
}

type placedOrder struct {
	ticker string
	side   string
	qty    int64
}

type fakeBroker struct {
	mu        sync.Mutex
	account   *market.Account
	positions []market.Position
	placeErr  error
	result    *market.ExecutionResult
	orders    []placedOrder
}

func (b *fakeBroker) GetAccount(context.Context) (*market.Account, error) {
	acct := *b.account
	return &acct, nil
}

func (b *fakeBroker) GetPositions(context.Context) ([]market.Position, error) {
	return append([]market.Position(nil), b.positions...), nil
}

func (b *fakeBroker) PlaceOrder(_ context.Context, ticker, side string, qty int64) (*market.ExecutionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.placeErr != nil {
		return nil, b.placeErr
	}
	b.orders = append(b.orders, placedOrder{ticker: ticker, side: side, qty: qty})
	if b.result != nil {
		r := *b.result
		return &r, nil
	}
	return &market.ExecutionResult{
		OrderID:   fmt.Sprintf("ord-%d", len(b.orders)),
		Status:    market.FillStatusFilled,
		FilledQty: qty,
		FillPrice: decimal.NewFromFloat(187.5),
	}, nil
}

// memStore is an in-memory Store with the same transition rules as the
// postgres store: stage moves validate the workflow edge set and the
// proposal latch flips only APPROVED→EXECUTED.
type memStore struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*cycle.Run
	proposals map[uuid.UUID]*proposal.TradeProposal
	debates   []*debate.Debate
	trades    []trade.ExecutedTrade
	events    []*analysis.Event
	snapshots map[string]*market.PriceSnapshot
	headlines []news.Headline
	articles  []news.Article
	related   map[int64][]news.Article
}

func newMemStore() *memStore {
	return &memStore{
		runs:      map[uuid.UUID]*cycle.Run{},
		proposals: map[uuid.UUID]*proposal.TradeProposal{},
		snapshots: map[string]*market.PriceSnapshot{},
	}
}

func (s *memStore) CreateRun(_ context.Context, run *cycle.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *memStore) advance(run *cycle.Run, to cycle.Stage) error {
	if !cycle.CanTransition(run.Stage, to) {
		return fmt.Errorf("illegal transition %s -> %s", run.Stage, to)
	}
	run.Stage = to
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *memStore) finish(run *cycle.Run, stage cycle.Stage, outcome cycle.Outcome, errMsg string) error {
	if err := s.advance(run, stage); err != nil {
		return err
	}
	run.Outcome = outcome
	run.Error = errMsg
	now := time.Now().UTC()
	run.FinishedAt = &now
	return nil
}

func (s *memStore) AdvanceStage(_ context.Context, run *cycle.Run, to cycle.Stage, event *analysis.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.advance(run, to)
}

func (s *memStore) FinishRun(_ context.Context, run *cycle.Run, stage cycle.Stage, outcome cycle.Outcome, errMsg string, event *analysis.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event != nil {
		s.events = append(s.events, event)
	}
	return s.finish(run, stage, outcome, errMsg)
}

func (s *memStore) SaveDebate(_ context.Context, run *cycle.Run, d *debate.Debate, event *analysis.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debates = append(s.debates, d)
	s.events = append(s.events, event)
	return s.advance(run, cycle.StageProposing)
}

func (s *memStore) SaveProposal(_ context.Context, run *cycle.Run, p *proposal.TradeProposal, event *analysis.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.proposals[p.ID] = &copied
	s.events = append(s.events, event)
	return s.advance(run, cycle.StageReviewing)
}

func (s *memStore) ApproveProposal(_ context.Context, run *cycle.Run, p *proposal.TradeProposal, event *analysis.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.proposals[p.ID]
	if !stored.Status.CanTransition(proposal.StatusApproved) {
		return fmt.Errorf("illegal proposal transition %s -> APPROVED", stored.Status)
	}
	stored.Status = proposal.StatusApproved
	stored.Quantity = p.Quantity
	s.events = append(s.events, event)
	return s.advance(run, cycle.StageExecuting)
}

func (s *memStore) RejectProposal(_ context.Context, run *cycle.Run, proposalID uuid.UUID, event *analysis.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.proposals[proposalID]
	if !p.Status.CanTransition(proposal.StatusRejected) {
		return fmt.Errorf("illegal proposal transition %s -> REJECTED", p.Status)
	}
	p.Status = proposal.StatusRejected
	s.events = append(s.events, event)
	return s.finish(run, cycle.StageDone, cycle.OutcomeHeld, "")
}

func (s *memStore) CompleteExecution(_ context.Context, run *cycle.Run, t *trade.ExecutedTrade, event *analysis.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Status.Filled() {
		p := s.proposals[t.ProposalID]
		if p.Status == proposal.StatusExecuted {
			return errors.ErrAlreadySubmitted
		}
		if !p.Status.CanTransition(proposal.StatusExecuted) {
			return fmt.Errorf("illegal proposal transition %s -> EXECUTED", p.Status)
		}
		p.Status = proposal.StatusExecuted
		s.trades = append(s.trades, *t)
		s.events = append(s.events, event)
		return s.finish(run, cycle.StageDone, cycle.OutcomeExecuted, "")
	}

	s.trades = append(s.trades, *t)
	s.events = append(s.events, event)
	return s.finish(run, cycle.StageAborted, cycle.OutcomeAborted, fmt.Sprintf("order %s", t.Status))
}

func (s *memStore) LatestSnapshot(_ context.Context, ticker string) (*market.PriceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[ticker]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *snap
	return &copied, nil
}

func (s *memStore) SaveSnapshot(_ context.Context, snap *market.PriceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *snap
	s.snapshots[snap.Ticker] = &copied
	return nil
}

func (s *memStore) RecentHeadlines(_ context.Context, ticker string, _ time.Time, limit int) ([]news.Headline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []news.Headline{}
	for _, h := range s.headlines {
		if h.Ticker == ticker && len(out) < limit {
			out = append(out, h)
		}
	}
	return out, nil
}

func (s *memStore) RecentArticles(_ context.Context, ticker string, _ time.Time, limit int) ([]news.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []news.Article{}
	for _, a := range s.articles {
		if a.Ticker == ticker && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) RelatedArticles(_ context.Context, articleID int64, limit int) ([]news.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	related, ok := s.related[articleID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	if len(related) > limit {
		related = related[:limit]
	}
	return append([]news.Article(nil), related...), nil
}

func (s *memStore) RecentTrades(_ context.Context, ticker string, since time.Time, limit int) ([]trade.ExecutedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []trade.ExecutedTrade{}
	for _, t := range s.trades {
		if (ticker == "" || t.Ticker == ticker) && t.ExecutedAt.After(since) && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) proposalFor(ticker string) *proposal.TradeProposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.proposals {
		if p.Ticker == ticker {
			return p
		}
	}
	return nil
}

func (s *memStore) eventTypes() []analysis.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]analysis.EventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

// fixture wires an engine over the fakes with fast retry budgets
type fixture struct {
	port   *scriptedPort
	store  *memStore
	data   *fakeData
	broker *fakeBroker
	guard  *risk.Guard
	cfg    Config
}

func newFixture() *fixture {
	now := time.Now().UTC()
	store := newMemStore()
	store.headlines = []news.Headline{
		{Title: "AAPL unveils new product line", Ticker: "AAPL", Timestamp: &now},
		{Title: "Analysts raise AAPL target", Ticker: "AAPL", Timestamp: &now},
	}
	store.articles = []news.Article{
		{ID: 1, Title: "AAPL unveils new product line", Ticker: "AAPL", ContentText: "Full article body about the launch.", CreatedAt: now},
		{ID: 2, Title: "Analysts raise AAPL target", Ticker: "AAPL", ContentText: "Full article body about the upgrade.", CreatedAt: now},
	}
	store.snapshots["AAPL"] = &market.PriceSnapshot{
		ID:           uuid.New(),
		Ticker:       "AAPL",
		Price:        decimal.NewFromInt(190),
		PrevClose:    decimal.NewFromInt(185),
		SnapshotTime: now,
		DataSource:   "finnhub",
	}

	return &fixture{
		port: &scriptedPort{
			replies: map[agents.Role][]string{
				agents.RoleTrader: {
					`{"is_interesting": true, "reasoning": "unusual volume of product coverage", "confidence": 80}`,
					`{"consensus": "coverage supports near-term upside", "lean": "bullish"}`,
					`{"action": "BUY", "quantity": 10, "reasoning": "bullish consensus with fresh catalysts", "confidence_score": 72}`,
				},
				agents.RoleBull:             {`{"argument": "product cycle and upgrades point up"}`},
				agents.RoleBear:             {`{"argument": "the move is already priced in"}`},
				agents.RolePortfolioManager: {`{"decision": "APPROVE", "reasoning": "position sizing acceptable"}`},
			},
			fail: map[agents.Role]error{},
		},
		store: store,
		data: &fakeData{snap: &market.PriceSnapshot{
			Price:        decimal.NewFromInt(190),
			PrevClose:    decimal.NewFromInt(185),
			SnapshotTime: now,
			DataSource:   "finnhub",
		}},
		broker: &fakeBroker{
			account: &market.Account{
				Cash:           decimal.NewFromInt(50_000),
				BuyingPower:    decimal.NewFromInt(100_000),
				PortfolioValue: decimal.NewFromInt(100_000),
			},
		},
		guard: risk.NewGuard(25, 90),
		cfg: Config{
			MinConfidence:  70,
			StageDeadline:  time.Minute,
			SnapshotMaxAge: 30 * time.Minute,
			ReasoningRetry: retry.Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
			MarketRetry:    retry.Config{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		},
	}
}

func (f *fixture) engine() *Engine {
	return New(
		f.store,
		f.data,
		f.broker,
		agents.NewTrader(f.port, 1, f.cfg.MinConfidence),
		agents.NewBull(f.port, 1),
		agents.NewBear(f.port, 1),
		agents.NewPortfolioManager(f.port, 1),
		f.guard,
		f.cfg,
	)
}

func TestRunCycle_ApprovedProposalExecutes(t *testing.T) {
	f := newFixture()

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageDone, run.Stage)
	assert.Equal(t, cycle.OutcomeExecuted, run.Outcome)
	require.NotNil(t, run.FinishedAt)

	prop := f.store.proposalFor("AAPL")
	require.NotNil(t, prop)
	assert.Equal(t, proposal.StatusExecuted, prop.Status)
	assert.Equal(t, proposal.ActionBuy, prop.Action)

	require.Len(t, f.broker.orders, 1)
	assert.Equal(t, placedOrder{ticker: "AAPL", side: "BUY", qty: 10}, f.broker.orders[0])

	require.Len(t, f.store.trades, 1)
	executed := f.store.trades[0]
	assert.Equal(t, trade.StatusFilled, executed.Status)
	assert.Equal(t, "ord-1", executed.AlpacaOrderID)
	assert.Equal(t, prop.ID, executed.ProposalID)

	assert.Equal(t, []analysis.EventType{
		analysis.EventTickerAnalysis,
		analysis.EventDebate,
		analysis.EventTradeProposal,
		analysis.EventProposalReview,
		analysis.EventTradeExecution,
	}, f.store.eventTypes())
}

func TestRunCycle_DebateRecordsOpeningsAndRebuttals(t *testing.T) {
	f := newFixture()
	f.cfg.MaxDebateRounds = 2

	_, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	require.Len(t, f.store.debates, 1)
	deb := f.store.debates[0]
	assert.Equal(t, "product cycle and upgrades point up", deb.BullArgument)
	assert.Equal(t, "the move is already priced in", deb.BearArgument)
	assert.Equal(t, "coverage supports near-term upside", deb.FinalConsensus)

	// opening round plus one rebuttal round per side
	assert.Equal(t, 2, f.port.callCount(agents.RoleBull))
	assert.Equal(t, 2, f.port.callCount(agents.RoleBear))
}

func TestRunCycle_UninterestingFinishesHeld(t *testing.T) {
	f := newFixture()
	f.port.replies[agents.RoleTrader] = []string{
		`{"is_interesting": false, "reasoning": "routine coverage only", "confidence": 85}`,
	}

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageDone, run.Stage)
	assert.Equal(t, cycle.OutcomeHeld, run.Outcome)
	assert.Empty(t, f.store.debates)
	assert.Empty(t, f.store.proposals)
	assert.Equal(t, 0, f.port.callCount(agents.RoleBull))
	assert.Equal(t, 1, f.port.callCount(agents.RoleTrader))
}

func TestRunCycle_LowConfidenceDowngradedToHold(t *testing.T) {
	f := newFixture()
	f.port.replies[agents.RoleTrader] = []string{
		`{"is_interesting": true, "reasoning": "some coverage", "confidence": 75}`,
		`{"consensus": "mixed signals", "lean": "neutral"}`,
		`{"action": "BUY", "quantity": 10, "reasoning": "weak conviction", "confidence_score": 60}`,
	}

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageDone, run.Stage)
	assert.Equal(t, cycle.OutcomeHeld, run.Outcome)

	prop := f.store.proposalFor("AAPL")
	require.NotNil(t, prop)
	assert.Equal(t, proposal.ActionHold, prop.Action)
	assert.Equal(t, proposal.StatusRejected, prop.Status)
	assert.Contains(t, prop.Reasoning, "Downgraded to HOLD")

	// a HOLD settles without consulting the manager or the broker
	assert.Equal(t, 0, f.port.callCount(agents.RolePortfolioManager))
	assert.Empty(t, f.broker.orders)
}

func TestRunCycle_ManagerRejectionHolds(t *testing.T) {
	f := newFixture()
	f.port.replies[agents.RolePortfolioManager] = []string{
		`{"decision": "REJECT", "reasoning": "too much recent churn in this name"}`,
	}

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageDone, run.Stage)
	assert.Equal(t, cycle.OutcomeHeld, run.Outcome)
	assert.Equal(t, proposal.StatusRejected, f.store.proposalFor("AAPL").Status)
	assert.Empty(t, f.broker.orders)
	assert.Empty(t, f.store.trades)
}

func TestRunCycle_ConcentrationGateOverridesApproval(t *testing.T) {
	f := newFixture()
	// manager approves but the buy is 1.9% of a portfolio capped at 1%
	f.guard = risk.NewGuard(1, 90)

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageDone, run.Stage)
	assert.Equal(t, cycle.OutcomeHeld, run.Outcome)

	prop := f.store.proposalFor("AAPL")
	assert.Equal(t, proposal.StatusRejected, prop.Status)
	assert.Empty(t, f.broker.orders)
}

func TestRunCycle_AdjustedQuantityFlowsToOrder(t *testing.T) {
	f := newFixture()
	f.port.replies[agents.RolePortfolioManager] = []string{
		`{"decision": "APPROVE", "reasoning": "approve at reduced size", "adjusted_quantity": 5}`,
	}

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.OutcomeExecuted, run.Outcome)
	require.Len(t, f.broker.orders, 1)
	assert.Equal(t, int64(5), f.broker.orders[0].qty)
	require.Len(t, f.store.trades, 1)
	assert.Equal(t, int64(5), f.store.trades[0].Quantity)

	// the stored proposal carries the reviewed size, not the proposed one
	assert.Equal(t, int64(5), f.store.proposalFor("AAPL").Quantity)
}

func TestRunCycle_RelatedArticlesReachDebaters(t *testing.T) {
	f := newFixture()
	now := time.Now().UTC()
	f.store.related = map[int64][]news.Article{
		1: {
			{ID: 7, Title: "Supplier guides up", Ticker: "TSM", ContentText: "Chip supplier guidance lifts the whole complex.", CreatedAt: now},
			{ID: 2, Title: "Analysts raise AAPL target", Ticker: "AAPL", ContentText: "Full article body about the upgrade.", CreatedAt: now},
		},
	}

	_, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	prompts := f.port.promptsFor(agents.RoleBull)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "Chip supplier guidance lifts the whole complex.")
	// articles already in the recent set are not repeated as related
	assert.Equal(t, 1, strings.Count(prompts[0], "Full article body about the upgrade."))
}

func TestRunCycle_MissingEmbeddingSkipsRelatedArticles(t *testing.T) {
	f := newFixture()

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.OutcomeExecuted, run.Outcome)
	prompts := f.port.promptsFor(agents.RoleBull)
	require.Len(t, prompts, 1)
	assert.NotContains(t, prompts[0], "related_articles")
}

func TestRunCycle_PartialFillCountsAsExecuted(t *testing.T) {
	f := newFixture()
	f.broker.result = &market.ExecutionResult{
		OrderID:   "ord-partial",
		Status:    market.FillStatusPartial,
		FilledQty: 4,
		FillPrice: decimal.NewFromFloat(189.2),
	}

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageDone, run.Stage)
	assert.Equal(t, cycle.OutcomeExecuted, run.Outcome)
	assert.Equal(t, proposal.StatusExecuted, f.store.proposalFor("AAPL").Status)

	require.Len(t, f.store.trades, 1)
	assert.Equal(t, trade.StatusPartial, f.store.trades[0].Status)
	assert.Equal(t, int64(4), f.store.trades[0].Quantity)
}

func TestRunCycle_OrderRejectionAborts(t *testing.T) {
	f := newFixture()
	f.broker.placeErr = errors.ErrOrderRejected

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageAborted, run.Stage)
	assert.Equal(t, cycle.OutcomeAborted, run.Outcome)

	// the refusal is auditable but the latch never flips
	require.Len(t, f.store.trades, 1)
	assert.Equal(t, trade.StatusRejected, f.store.trades[0].Status)
	assert.Empty(t, f.store.trades[0].AlpacaOrderID)
	assert.Equal(t, proposal.StatusApproved, f.store.proposalFor("AAPL").Status)
}

func TestRunCycle_MarketUnavailableLeavesProposalApproved(t *testing.T) {
	f := newFixture()
	f.broker.placeErr = errors.ErrMarketUnavailable

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageAborted, run.Stage)
	assert.Equal(t, cycle.OutcomeAborted, run.Outcome)
	assert.NotEmpty(t, run.Error)

	// no trade row and the proposal stays APPROVED for reconciliation
	assert.Empty(t, f.store.trades)
	assert.Equal(t, proposal.StatusApproved, f.store.proposalFor("AAPL").Status)
}

func TestRunCycle_ReasoningFailureFinishesFailed(t *testing.T) {
	f := newFixture()
	f.port.fail[agents.RoleTrader] = errors.ErrUpstreamUnavailable

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageFailed, run.Stage)
	assert.Equal(t, cycle.OutcomeFailed, run.Outcome)
	assert.NotEmpty(t, run.Error)
	assert.Contains(t, f.store.eventTypes(), analysis.EventStageFailure)
}

func TestRunCycle_InvalidOutputExhaustsValidationRetries(t *testing.T) {
	f := newFixture()
	f.port.replies[agents.RoleTrader] = []string{`не json`}

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageFailed, run.Stage)
	assert.Equal(t, cycle.OutcomeFailed, run.Outcome)
	// invalid output is retried with a reformulated prompt, not backoff
	assert.Equal(t, 2, f.port.callCount(agents.RoleTrader))
}

func TestRunCycle_ShutdownHonoredAtCheckpoint(t *testing.T) {
	f := newFixture()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := f.engine().RunCycle(ctx, "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageAborted, run.Stage)
	assert.Equal(t, cycle.OutcomeAborted, run.Outcome)
	assert.Equal(t, "shutdown", run.Error)

	// analysis completed under its own deadline; the debate never started
	assert.Equal(t, 1, f.port.callCount(agents.RoleTrader))
	assert.Equal(t, 0, f.port.callCount(agents.RoleBull))
	assert.Empty(t, f.store.debates)
}

func TestRunCycle_StaleSnapshotUsedWhenVendorDown(t *testing.T) {
	f := newFixture()
	f.port.replies[agents.RoleTrader] = []string{
		`{"is_interesting": false, "reasoning": "nothing actionable", "confidence": 90}`,
	}
	f.data.err = errors.ErrMarketUnavailable
	stale := f.store.snapshots["AAPL"]
	stale.SnapshotTime = time.Now().UTC().Add(-2 * time.Hour)

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageDone, run.Stage)
	assert.Equal(t, cycle.OutcomeHeld, run.Outcome)
	assert.Greater(t, f.data.calls, 0)
}

func TestRunCycle_NoSnapshotAnywhereFails(t *testing.T) {
	f := newFixture()
	f.data.err = errors.ErrMarketUnavailable
	delete(f.store.snapshots, "AAPL")

	run, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, cycle.StageFailed, run.Stage)
	assert.Equal(t, cycle.OutcomeFailed, run.Outcome)
	assert.Equal(t, 0, f.port.callCount(agents.RoleTrader))
}

func TestCompleteExecution_LatchAdmitsExactlyOneFill(t *testing.T) {
	f := newFixture()
	store := f.store

	run := cycle.NewRun("AAPL")
	require.NoError(t, store.CreateRun(context.Background(), run))
	prop := proposal.New("AAPL", proposal.ActionBuy, 10, decimal.NewFromInt(190), "r", 80, uuid.New(), uuid.New())
	prop.Status = proposal.StatusApproved
	store.proposals[prop.ID] = prop
	run.Stage = cycle.StageExecuting

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			filled := &trade.ExecutedTrade{
				ID:             uuid.New(),
				ProposalID:     prop.ID,
				Ticker:         "AAPL",
				Action:         "BUY",
				Quantity:       10,
				ExecutionPrice: decimal.NewFromInt(190),
				Status:         trade.StatusFilled,
				ExecutedAt:     time.Now().UTC(),
			}
			errs[i] = store.CompleteExecution(context.Background(), run,
				filled, analysis.NewEvent("AAPL", analysis.EventTradeExecution, "engine", "fill", nil, nil))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, errors.ErrAlreadySubmitted))
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, store.trades, 1)
	assert.Equal(t, proposal.StatusExecuted, prop.Status)
}

func TestRunCycle_DeterministicWithFixedResponses(t *testing.T) {
	first := newFixture()
	runA, err := first.engine().RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)

	second := newFixture()
	runB, err := second.engine().RunCycle(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, runA.Stage, runB.Stage)
	assert.Equal(t, runA.Outcome, runB.Outcome)
	assert.Equal(t, first.store.eventTypes(), second.store.eventTypes())
	assert.Equal(t, first.broker.orders, second.broker.orders)
}

func TestRunCycle_SingleDebateRoundWhenCapped(t *testing.T) {
	f := newFixture()
	f.cfg.MaxDebateRounds = 1

	_, err := f.engine().RunCycle(context.Background(), "AAPL")

	require.NoError(t, err)
	assert.Equal(t, 1, f.port.callCount(agents.RoleBull))
	assert.Equal(t, 1, f.port.callCount(agents.RoleBear))
}
