package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"helios/pkg/errors"
)

// Config contains retry configuration
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // fraction of the delay randomized, 0..1
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     15 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Middleware provides retry with exponential backoff and jitter.
// Only errors classified transient by errors.IsTransient are retried;
// everything else returns immediately.
type Middleware struct {
	config Config
}

// New creates a new retry middleware
func New(config Config) *Middleware {
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 15 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.Jitter < 0 || config.Jitter > 1 {
		config.Jitter = 0.2
	}

	return &Middleware{config: config}
}

// Do executes fn with retry logic. The context bounds the total time spent;
// cancellation between attempts returns the context error wrapped.
func (m *Middleware) Do(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !errors.IsTransient(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == m.config.MaxRetries {
			break
		}

		delay := m.delay(attempt)

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(delay):
		}
	}

	return errors.Wrapf(errors.ErrRetryBudget, "max retries (%d) exceeded: %v", m.config.MaxRetries, lastErr)
}

// delay computes the backoff for the given attempt with jitter applied
func (m *Middleware) delay(attempt int) time.Duration {
	base := float64(m.config.InitialDelay) * math.Pow(m.config.Multiplier, float64(attempt))
	if base > float64(m.config.MaxDelay) {
		base = float64(m.config.MaxDelay)
	}

	if m.config.Jitter > 0 {
		// Spread delay over [base*(1-jitter), base*(1+jitter)]
		span := base * m.config.Jitter
		base = base - span + rand.Float64()*2*span
	}

	return time.Duration(base)
}
