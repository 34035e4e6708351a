package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios/pkg/errors"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	m := New(DefaultConfig())

	calls := 0
	err := m.Do(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesTransientErrors(t *testing.T) {
	m := New(Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	})

	calls := 0
	err := m.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.ErrRateLimited
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_DoesNotRetryPermanentErrors(t *testing.T) {
	m := New(Config{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
	})

	calls := 0
	err := m.Do(context.Background(), func() error {
		calls++
		return errors.ErrInvalidOutput
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, errors.ErrInvalidOutput))
}

func TestDo_ExhaustsBudget(t *testing.T) {
	m := New(Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
	})

	calls := 0
	err := m.Do(context.Background(), func() error {
		calls++
		return errors.ErrUpstreamUnavailable
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
	assert.True(t, errors.Is(err, errors.ErrRetryBudget))
}

func TestDo_ContextCancellation(t *testing.T) {
	m := New(Config{
		MaxRetries:   10,
		InitialDelay: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := m.Do(ctx, func() error {
		return errors.ErrReasoningTimeout
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDelay_BoundedByMaxDelay(t *testing.T) {
	m := New(Config{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     2 * time.Second,
		Multiplier:   10,
		Jitter:       0,
	})

	for attempt := 0; attempt < 5; attempt++ {
		assert.LessOrEqual(t, m.delay(attempt), 2*time.Second)
	}
}
