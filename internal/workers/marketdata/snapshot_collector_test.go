package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios/internal/domain/market"
	"helios/pkg/errors"
)

type fakeData struct {
	failFor map[string]bool
}

func (d *fakeData) GetSnapshot(_ context.Context, ticker string) (*market.PriceSnapshot, error) {
	if d.failFor[ticker] {
		return nil, errors.ErrMarketUnavailable
	}
	return &market.PriceSnapshot{
		Ticker:       ticker,
		Price:        decimal.NewFromInt(100),
		SnapshotTime: time.Now().UTC(),
	}, nil
}

func (d *fakeData) IsMarketOpen(context.Context) (bool, error) {
	return true, nil
}

type fakeSnapshots struct {
	saved []string
}

func (r *fakeSnapshots) Save(_ context.Context, s *market.PriceSnapshot) error {
	r.saved = append(r.saved, s.Ticker)
	return nil
}

func (r *fakeSnapshots) Latest(context.Context, string) (*market.PriceSnapshot, error) {
	return nil, errors.ErrNotFound
}

func TestRun_SavesSnapshotPerTicker(t *testing.T) {
	repo := &fakeSnapshots{}
	w := NewSnapshotCollector(&fakeData{}, repo, []string{"AAPL", "MSFT"}, time.Minute)

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, []string{"AAPL", "MSFT"}, repo.saved)
	assert.Equal(t, int64(0), w.Health().ErrorCount)
}

func TestRun_FailingTickerDoesNotStarveRest(t *testing.T) {
	repo := &fakeSnapshots{}
	data := &fakeData{failFor: map[string]bool{"AAPL": true}}
	w := NewSnapshotCollector(data, repo, []string{"AAPL", "MSFT"}, time.Minute)

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, []string{"MSFT"}, repo.saved)
	assert.Equal(t, int64(1), w.Health().ErrorCount)
}

func TestRun_StopsOnCancelledContext(t *testing.T) {
	repo := &fakeSnapshots{}
	w := NewSnapshotCollector(&fakeData{}, repo, []string{"AAPL", "MSFT"}, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, w.Run(ctx))
	assert.Empty(t, repo.saved)
}

func TestNewSnapshotCollector_Defaults(t *testing.T) {
	w := NewSnapshotCollector(&fakeData{}, &fakeSnapshots{}, nil, 0)

	assert.Equal(t, "snapshot_collector", w.Name())
	assert.Equal(t, 15*time.Minute, w.Interval())
	assert.False(t, w.Enabled())
}
