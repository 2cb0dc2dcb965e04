package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/mozilla-releng/balrogagent/internal/apperrors"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterEnabled bool
}

// DefaultRetryConfig provides sensible defaults for calls against the admin
// service within a single polling cycle.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 3.0,
		JitterEnabled: true,
	}
}

// Retry executes fn, retrying on error until MaxAttempts is reached or ctx
// is cancelled. Backoff follows the decorrelated-jitter schedule in
// nextDelay.
func Retry(ctx context.Context, config *RetryConfig, fn func() error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == config.MaxAttempts {
			break
		}

		delay = nextDelay(delay, config)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return apperrors.NewTransportError("retry", "", fmt.Errorf("max retry attempts (%d) exceeded: %w", config.MaxAttempts, lastErr))
}

// nextDelay computes the next sleep using decorrelated jitter: uniformly
// random between InitialDelay and the previous delay scaled by
// BackoffFactor, capped at MaxDelay. Unlike a delay that is a pure function
// of the attempt number, this only depends on the call's own retry
// history, so concurrent agent instances retrying the same admin service
// don't converge back onto a shared schedule. Falls back to a plain
// exponential step when jitter is disabled.
func nextDelay(prev time.Duration, config *RetryConfig) time.Duration {
	ceiling := time.Duration(float64(prev) * config.BackoffFactor)
	if ceiling > config.MaxDelay {
		ceiling = config.MaxDelay
	}

	if !config.JitterEnabled {
		return ceiling
	}

	if ceiling <= config.InitialDelay {
		return config.InitialDelay
	}
	span := ceiling - config.InitialDelay
	return config.InitialDelay + time.Duration(rand.Int63n(int64(span)))
}

// RetryWithCircuitBreaker wraps fn in both a retry loop and a circuit
// breaker, so a flapping admin service fails fast once the breaker opens
// instead of burning through every retry attempt on every call.
func RetryWithCircuitBreaker(ctx context.Context, config *RetryConfig, cb *CircuitBreaker, fn func() error) error {
	return Retry(ctx, config, func() error {
		return cb.Execute(ctx, fn)
	})
}
