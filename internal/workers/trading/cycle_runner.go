// Package trading hosts the cycle runner worker: each tick it fans the
// configured ticker set out over the workflow engine with bounded
// concurrency.
package trading

import (
	"context"
	"sync"
	"time"

	"helios/internal/domain/cycle"
	"helios/internal/domain/market"
	"helios/internal/domain/trade"
	"helios/internal/metrics"
	"helios/internal/workers"
)

// Engine runs one full workflow cycle for a ticker
type Engine interface {
	RunCycle(ctx context.Context, ticker string) (*cycle.Run, error)
}

// Config controls the cycle runner's gating and fan-out
type Config struct {
	Tickers        []string
	Interval       time.Duration
	MaxConcurrency int

	// OncePerDay skips the tick when any trade already executed since UTC
	// midnight
	OncePerDay bool
}

// CycleRunner launches one workflow engine run per ticker each tick.
// Cycles for the same ticker never overlap: a ticker whose previous run is
// still in flight is skipped until it reaches an absorbing stage.
type CycleRunner struct {
	*workers.BaseWorker

	engine Engine
	data   market.DataPort
	trades trade.Repository
	cfg    Config

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewCycleRunner creates the trading cycle worker
func NewCycleRunner(eng Engine, data market.DataPort, trades trade.Repository, cfg Config) *CycleRunner {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}

	return &CycleRunner{
		BaseWorker: workers.NewBaseWorker("trading_cycle", cfg.Interval, len(cfg.Tickers) > 0),
		engine:     eng,
		data:       data,
		trades:     trades,
		cfg:        cfg,
		inFlight:   make(map[string]bool),
	}
}

// Run executes one scheduling tick
func (w *CycleRunner) Run(ctx context.Context) error {
	start := time.Now()

	ok, err := w.shouldRun(ctx)
	if err != nil {
		w.RecordError(err, time.Since(start))
		return err
	}
	if !ok {
		return nil
	}

	w.Log().Infow("Starting trading cycle", "tickers", w.cfg.Tickers)

	var wg sync.WaitGroup
	sem := make(chan struct{}, w.cfg.MaxConcurrency)

	for _, ticker := range w.cfg.Tickers {
		if !w.claim(ticker) {
			w.Log().Warnw("Previous cycle still in flight, skipping", "ticker", ticker)
			continue
		}

		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			defer w.release(ticker)

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			metrics.CyclesInFlight.Inc()
			defer metrics.CyclesInFlight.Dec()

			// A failed or panicking cycle is isolated: it must never take
			// the worker, or the other tickers' cycles, down with it.
			defer func() {
				if r := recover(); r != nil {
					w.Log().Errorw("Cycle run panicked", "ticker", ticker, "panic", r)
				}
			}()

			if _, err := w.engine.RunCycle(ctx, ticker); err != nil {
				w.Log().Errorw("Cycle run failed", "ticker", ticker, "error", err)
			}
		}(ticker)
	}

	wg.Wait()
	w.RecordRun(time.Since(start))
	w.Log().Infow("Trading cycle complete", "duration", time.Since(start))

	return nil
}

// shouldRun applies the market-hours and once-per-day gates
func (w *CycleRunner) shouldRun(ctx context.Context) (bool, error) {
	open, err := w.data.IsMarketOpen(ctx)
	if err != nil {
		return false, err
	}
	if !open {
		w.Log().Debug("Market is closed, skipping trading cycle")
		return false, nil
	}

	if w.cfg.OncePerDay {
		traded, err := w.trades.HasTradedToday(ctx)
		if err != nil {
			return false, err
		}
		if traded {
			w.Log().Info("Already traded today, skipping trading cycle")
			return false, nil
		}
	}

	return true, nil
}

func (w *CycleRunner) claim(ticker string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[ticker] {
		return false
	}
	w.inFlight[ticker] = true
	return true
}

func (w *CycleRunner) release(ticker string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, ticker)
}
