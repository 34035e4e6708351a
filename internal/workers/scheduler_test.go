package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWorker struct {
	*BaseWorker
	runCount int32
	runFunc  func(ctx context.Context) error
}

func newMockWorker(name string, interval time.Duration, enabled bool) *mockWorker {
	return &mockWorker{
		BaseWorker: NewBaseWorker(name, interval, enabled),
		runFunc:    func(ctx context.Context) error { return nil },
	}
}

func (m *mockWorker) Run(ctx context.Context) error {
	atomic.AddInt32(&m.runCount, 1)
	return m.runFunc(ctx)
}

func (m *mockWorker) GetRunCount() int {
	return int(atomic.LoadInt32(&m.runCount))
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler := NewScheduler()

	worker := newMockWorker("ticks", 100*time.Millisecond, true)
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	assert.True(t, scheduler.IsRunning())

	time.Sleep(250 * time.Millisecond)

	require.NoError(t, scheduler.Stop())
	assert.False(t, scheduler.IsRunning())

	// immediate run plus at least one tick
	assert.GreaterOrEqual(t, worker.GetRunCount(), 2)
}

func TestScheduler_GracefulShutdownWaitsForIteration(t *testing.T) {
	scheduler := NewScheduler()

	worker := newMockWorker("slow", 100*time.Millisecond, true)
	worker.runFunc = func(ctx context.Context) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	time.Sleep(150 * time.Millisecond)

	require.NoError(t, scheduler.Stop())
}

func TestScheduler_ContextCancellationStopsWorkers(t *testing.T) {
	scheduler := NewScheduler()
	scheduler.RegisterWorker(newMockWorker("ticks", 100*time.Millisecond, true))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, scheduler.Start(ctx))

	cancel()
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, scheduler.Stop())
}

func TestScheduler_SkipsDisabledWorker(t *testing.T) {
	scheduler := NewScheduler()

	enabled := newMockWorker("enabled", 100*time.Millisecond, true)
	disabled := newMockWorker("disabled", 100*time.Millisecond, false)
	scheduler.RegisterWorker(enabled)
	scheduler.RegisterWorker(disabled)

	require.NoError(t, scheduler.Start(context.Background()))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, scheduler.Stop())

	assert.GreaterOrEqual(t, enabled.GetRunCount(), 1)
	assert.Equal(t, 0, disabled.GetRunCount())
}

func TestScheduler_PanicDoesNotKillLoop(t *testing.T) {
	scheduler := NewScheduler()

	worker := newMockWorker("panics", 50*time.Millisecond, true)
	worker.runFunc = func(ctx context.Context) error {
		panic("boom")
	}
	scheduler.RegisterWorker(worker)

	require.NoError(t, scheduler.Start(context.Background()))
	time.Sleep(180 * time.Millisecond)
	require.NoError(t, scheduler.Stop())

	// the loop survived the panic and kept ticking
	assert.GreaterOrEqual(t, worker.GetRunCount(), 2)
}

func TestScheduler_DoubleStartFails(t *testing.T) {
	scheduler := NewScheduler()
	scheduler.RegisterWorker(newMockWorker("ticks", time.Second, true))

	require.NoError(t, scheduler.Start(context.Background()))
	assert.Error(t, scheduler.Start(context.Background()))
	require.NoError(t, scheduler.Stop())
}

func TestBaseWorker_HealthTracking(t *testing.T) {
	w := NewBaseWorker("health", time.Minute, true)

	w.RecordRun(10 * time.Millisecond)
	w.RecordError(assert.AnError, 30*time.Millisecond)

	health := w.Health()
	assert.Equal(t, int64(2), health.RunCount)
	assert.Equal(t, int64(1), health.ErrorCount)
	assert.Equal(t, assert.AnError, health.LastError)
	assert.Equal(t, 20*time.Millisecond, health.AvgDuration)
}
