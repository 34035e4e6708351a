// Package marketdata hosts the snapshot collector worker that keeps the
// stock_snapshots table warm so cycles rarely block on a vendor fetch.
package marketdata

import (
	"context"
	"time"

	"helios/internal/domain/market"
	"helios/internal/workers"
)

// SnapshotCollector polls the market data vendor for the configured ticker
// set and persists a price snapshot per ticker
type SnapshotCollector struct {
	*workers.BaseWorker

	data      market.DataPort
	snapshots market.SnapshotRepository
	tickers   []string
}

// NewSnapshotCollector creates the snapshot collector worker
func NewSnapshotCollector(data market.DataPort, snapshots market.SnapshotRepository, tickers []string, interval time.Duration) *SnapshotCollector {
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	return &SnapshotCollector{
		BaseWorker: workers.NewBaseWorker("snapshot_collector", interval, len(tickers) > 0),
		data:       data,
		snapshots:  snapshots,
		tickers:    tickers,
	}
}

// Run fetches and stores one snapshot per ticker. A failing ticker is
// logged and skipped; it must not starve the rest of the set.
func (w *SnapshotCollector) Run(ctx context.Context) error {
	start := time.Now()

	var lastErr error
	saved := 0
	for _, ticker := range w.tickers {
		if ctx.Err() != nil {
			break
		}

		snap, err := w.data.GetSnapshot(ctx, ticker)
		if err != nil {
			w.Log().Warnw("Snapshot fetch failed", "ticker", ticker, "error", err)
			lastErr = err
			continue
		}

		if err := w.snapshots.Save(ctx, snap); err != nil {
			w.Log().Errorw("Snapshot save failed", "ticker", ticker, "error", err)
			lastErr = err
			continue
		}
		saved++
	}

	if lastErr != nil {
		w.RecordError(lastErr, time.Since(start))
	} else {
		w.RecordRun(time.Since(start))
	}

	w.Log().Debugw("Snapshot collection complete", "saved", saved, "tickers", len(w.tickers))
	return nil
}
