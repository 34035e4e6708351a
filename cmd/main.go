package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"helios/internal/adapters/config"
	"helios/internal/adapters/errors/noop"
	"helios/internal/adapters/errors/sentry"
	"helios/internal/adapters/market/alpaca"
	"helios/internal/adapters/market/finnhub"
	"helios/internal/adapters/postgres"
	"helios/internal/adapters/reasoning"
	"helios/internal/agents"
	"helios/internal/domain/risk"
	"helios/internal/engine"
	"helios/internal/metrics"
	repo "helios/internal/repository/postgres"
	"helios/internal/workers"
	"helios/internal/workers/marketdata"
	"helios/internal/workers/trading"
	"helios/pkg/errors"
	"helios/pkg/logger"
	"helios/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	pg, err := postgres.NewClient(cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer func() { _ = pg.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Runs interrupted by the previous shutdown or crash never resume
	// mid-cycle; the next scheduler tick starts them fresh.
	store := repo.NewStore(pg.DB())
	runs := repo.NewCycleRunRepository(pg.DB())
	if aborted, err := runs.AbortStale(ctx); err != nil {
		log.Fatalf("Failed to reconcile stale runs: %v", err)
	} else if aborted > 0 {
		log.Warnw("Aborted stale cycle runs from previous instance", "count", aborted)
	}

	reasoningPort, err := reasoning.NewOpenAIPort(
		cfg.AI.OpenAIKey, cfg.AI.ChatModel, cfg.AI.RequestTimeout, cfg.AI.RequestsPerMin)
	if err != nil {
		log.Fatalf("Failed to create reasoning port: %v", err)
	}

	dataPort, err := finnhub.NewClient(cfg.Market.FinnhubKey, cfg.Market.RequestTimeout)
	if err != nil {
		log.Fatalf("Failed to create market data client: %v", err)
	}

	execPort, err := alpaca.NewClient(
		cfg.Market.AlpacaKey, cfg.Market.AlpacaSecret, cfg.Market.AlpacaPaper, cfg.Market.RequestTimeout)
	if err != nil {
		log.Fatalf("Failed to create brokerage client: %v", err)
	}

	validationRetries := cfg.Trading.ValidationRetries
	eng := engine.New(
		store,
		dataPort,
		execPort,
		agents.NewTrader(reasoningPort, validationRetries, cfg.Trading.MinConfidence),
		agents.NewBull(reasoningPort, validationRetries),
		agents.NewBear(reasoningPort, validationRetries),
		agents.NewPortfolioManager(reasoningPort, validationRetries),
		risk.NewGuard(cfg.Trading.MaxPositionPct, cfg.Trading.MaxExposurePct),
		engine.Config{
			MinConfidence:   cfg.Trading.MinConfidence,
			MaxDebateRounds: cfg.Trading.MaxDebateRounds,
			StageDeadline:   cfg.Trading.StageDeadline,
			SnapshotMaxAge:  cfg.Market.SnapshotMaxAge,
			ReasoningRetry:  retryConfig(cfg.Trading.ReasoningRetries),
			MarketRetry:     retryConfig(cfg.Trading.ExecutionRetries),
		},
	)

	tickers := cfg.Trading.NormalizedTickers()

	scheduler := workers.NewScheduler()
	scheduler.RegisterWorker(trading.NewCycleRunner(eng, dataPort, repo.NewTradeRepository(pg.DB()), trading.Config{
		Tickers:        tickers,
		Interval:       cfg.Trading.CycleInterval,
		MaxConcurrency: cfg.Trading.MaxConcurrency,
		OncePerDay:     cfg.Trading.OncePerDay,
	}))
	scheduler.RegisterWorker(marketdata.NewSnapshotCollector(
		dataPort, repo.NewSnapshotRepository(pg.DB()), tickers, cfg.Trading.SnapshotInterval))

	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	metricsSrv := startMetrics(cfg, log)

	log.Infow("System started", "tickers", tickers)

	waitForShutdown(ctx, cancel, scheduler, metricsSrv, errorTracker, log)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// startMetrics registers and serves Prometheus metrics
func startMetrics(cfg *config.Config, log *logger.Logger) *http.Server {
	if !cfg.Metrics.Enabled {
		log.Info("Metrics disabled")
		return nil
	}

	metrics.Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
	go func() {
		log.Infow("Metrics server listening", "addr", cfg.Metrics.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server error: %v", err)
		}
	}()

	return srv
}

// retryConfig builds a backoff policy with the configured attempt budget
func retryConfig(maxRetries int) retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = maxRetries
	return cfg
}

// waitForShutdown blocks until SIGINT/SIGTERM and shuts everything down
// in order: workers first (cycles finish at their next checkpoint), then
// the metrics server, then the error tracker flush.
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, scheduler *workers.Scheduler, metricsSrv *http.Server, errorTracker errors.Tracker, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	log.Info("Shutting down...")

	cancel()

	if err := scheduler.Stop(); err != nil {
		log.Warnf("Scheduler shutdown: %v", err)
	}

	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Metrics server shutdown: %v", err)
		}
	}

	if errorTracker != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := errorTracker.Flush(flushCtx); err != nil {
			log.Warnf("Failed to flush error tracker: %v", err)
		}
	}

	log.Info("Shutdown complete")
}
