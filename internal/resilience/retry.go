// Package resilience provides retry-with-backoff and a circuit breaker.
// The Lead Processor wraps each model scoring call with them, so a flaky
// model provider degrades gracefully instead of aborting a run; tenant-
// store and tracking-store calls are not wrapped.
package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/PartnerPiloting/leadscorer/internal/core"
)

// RetryConfig configures Retry's backoff schedule.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryConfig returns three attempts, a 100ms initial delay, and
// at most five seconds between tries.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterEnabled: true,
	}
}

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// nextSleep computes the delay before the next attempt using "decorrelated
// jitter" (AWS Architecture Blog, "Exponential Backoff And Jitter"): each
// sleep is a random draw between the configured floor and three times the
// previous sleep, capped at MaxDelay. Unlike a pure multiplicative
// backoff, this does not repeat the same fixed delays on every lead's
// retry sequence.
func nextSleep(prev time.Duration, cfg *RetryConfig) time.Duration {
	if !cfg.JitterEnabled {
		next := time.Duration(float64(prev) * cfg.BackoffFactor)
		if next > cfg.MaxDelay {
			next = cfg.MaxDelay
		}
		return next
	}

	ceiling := time.Duration(float64(prev) * 3)
	if ceiling <= cfg.InitialDelay {
		ceiling = cfg.InitialDelay
	}
	if ceiling > cfg.MaxDelay {
		ceiling = cfg.MaxDelay
	}
	span := ceiling - cfg.InitialDelay
	if span <= 0 {
		return cfg.InitialDelay
	}
	return cfg.InitialDelay + time.Duration(rng.Int63n(int64(span)))
}

// Retry runs fn until it succeeds, the context is done, or MaxAttempts is
// exhausted, sleeping between tries per nextSleep's decorrelated-jitter
// schedule.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	sleep := config.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if attempt == config.MaxAttempts {
			break
		}

		if attempt > 1 {
			sleep = nextSleep(sleep, config)
		}

		if err := sleepOrDone(ctx, sleep); err != nil {
			return err
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", config.MaxAttempts, lastErr)
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryWithCircuitBreaker composes Retry with a CircuitBreaker guard,
// short-circuiting immediately when the breaker is open instead of
// spending the retry budget against a dependency known to be down.
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		if !cb.Allow() {
			return core.ErrCircuitBreakerOpen
		}
		if err := fn(); err != nil {
			cb.RecordFailure(err)
			return err
		}
		cb.RecordSuccess()
		return nil
	})
}
