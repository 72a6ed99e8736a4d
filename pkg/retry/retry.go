// Package retry wraps calls to external dependencies in bounded
// exponential backoff. Recoverability is decided by the faults package:
// a non-recoverable failure aborts immediately without consuming the
// retry budget.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/overseerd/overseer/pkg/faults"
)

// Policy holds backoff configuration. It is always passed explicitly,
// never read from package-level state, so each call site is
// independently testable.
type Policy struct {
	MaxAttempts    int           // Total attempts including the first
	InitialBackoff time.Duration // Sleep before the first retry
	MaxBackoff     time.Duration // Cap on any single sleep
	Multiplier     float64       // Exponential growth factor
	JitterFraction float64       // 0.1 = ±10% on each sleep, 0 disables
}

// DefaultPolicy returns the standard policy for infrastructure calls
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Minute,
		Multiplier:     2.0,
	}
}

// Backoff returns the sleep before retry number n (1-based):
// initial * multiplier^(n-1), capped at MaxBackoff.
func (p Policy) Backoff(n int) time.Duration {
	if n <= 0 {
		n = 1
	}
	d := float64(p.InitialBackoff)
	for i := 1; i < n; i++ {
		d *= p.Multiplier
	}
	backoff := time.Duration(d)
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}

// Connector runs operations against one external dependency with retries.
// Sleep and Rand are injection points for tests; both have working
// defaults.
type Connector struct {
	Policy Policy
	Sleep  func(ctx context.Context, d time.Duration) error
	Rand   func() float64
}

// New creates a connector with the given policy
func New(policy Policy) *Connector {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Connector{
		Policy: policy,
		Sleep:  sleepCtx,
		Rand:   rand.Float64,
	}
}

// Attempt runs op until it succeeds, fails non-recoverably, or the
// attempt budget is exhausted. On exhaustion the returned error keeps
// the category of the last underlying failure and reports the number of
// attempts made and the total backoff waited.
func (c *Connector) Attempt(ctx context.Context, op func() error) error {
	var lastErr *faults.ClassifiedError
	var totalWait time.Duration

	for attempt := 1; attempt <= c.Policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry canceled: %w", err)
		}

		err := op()
		if err == nil {
			return nil
		}

		cerr := faults.Classify(err)
		if !cerr.Recoverable {
			return cerr
		}
		lastErr = cerr

		if attempt == c.Policy.MaxAttempts {
			break
		}

		backoff := c.jittered(c.Policy.Backoff(attempt))
		totalWait += backoff
		if err := c.Sleep(ctx, backoff); err != nil {
			return fmt.Errorf("retry canceled: %w", err)
		}
	}

	exhausted := faults.Wrap(lastErr, lastErr.Category, "retry_exhausted",
		fmt.Sprintf("gave up after %d attempts (waited %s total): %s",
			c.Policy.MaxAttempts, totalWait.Round(time.Millisecond), lastErr.Message),
		false)
	exhausted.Context = lastErr.Context
	return exhausted
}

// jittered applies ± JitterFraction to a backoff duration
func (c *Connector) jittered(d time.Duration) time.Duration {
	if c.Policy.JitterFraction <= 0 {
		return d
	}
	// Spread uniformly over [d*(1-j), d*(1+j)]
	spread := c.Policy.JitterFraction * (2*c.Rand() - 1)
	return time.Duration(float64(d) * (1 + spread))
}

// sleepCtx sleeps for d or until the context is canceled
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
