// Package retry re-runs an attempt while it fails with a retryable kind,
// with capped exponential backoff and a total latency ceiling.
package retry

import (
	"context"
	"math"
	"time"

	"btpctl/internal/failure"
	"btpctl/internal/logging"
)

// Policy bounds the retry loop.
type Policy struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt; it doubles each retry.
	BaseDelay time.Duration

	// MaxDelay caps a single wait.
	MaxDelay time.Duration

	// LatencyCeiling caps attempts plus waits. Zero means no ceiling.
	LatencyCeiling time.Duration
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       8 * time.Second,
		LatencyCeiling: 240 * time.Second,
	}
}

// Delay returns the wait after attempt n (1-based): BaseDelay * 2^(n-1),
// capped at MaxDelay. It never decreases as n grows.
func (p Policy) Delay(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		if (p.MaxDelay > 0 && d >= p.MaxDelay) || d > math.MaxInt64/2 {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stats describes one Do call.
type Stats struct {
	Attempts int
	Delays   []time.Duration
	Elapsed  time.Duration
}

// Controller runs attempts under a Policy.
type Controller struct {
	policy Policy
	sleep  Sleeper
	now    func() time.Time
}

// New creates a controller. MaxAttempts below 1 is treated as 1.
func New(policy Policy) *Controller {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Controller{
		policy: policy,
		sleep:  SleepContext,
		now:    time.Now,
	}
}

// WithSleeper replaces the backoff sleeper (tests use a recording sleeper).
func (c *Controller) WithSleeper(s Sleeper) *Controller {
	c.sleep = s
	return c
}

// Policy returns the controller's policy.
func (c *Controller) Policy() Policy {
	return c.policy
}

// Do calls attempt until it succeeds, fails with a non-retryable error, the
// attempt budget is spent, or the next wait would cross the latency ceiling.
// The last error is returned unchanged.
func (c *Controller) Do(ctx context.Context, attempt func(ctx context.Context, n int) error) (Stats, error) {
	var stats Stats
	var elapsed time.Duration

	for n := 1; ; n++ {
		start := c.now()
		err := attempt(ctx, n)
		elapsed += c.now().Sub(start)
		stats.Attempts = n
		stats.Elapsed = elapsed

		if err == nil {
			if n > 1 {
				logging.Retry("Succeeded on attempt %d after %s", n, elapsed)
			}
			return stats, nil
		}

		if !failure.IsRetryable(err) {
			logging.RetryDebug("Attempt %d failed with %s, not retrying", n, failure.KindOf(err))
			return stats, err
		}

		if n >= c.policy.MaxAttempts {
			logging.RetryWarn("Giving up after %d attempts: %v", n, err)
			return stats, err
		}

		delay := c.policy.Delay(n)
		if c.policy.LatencyCeiling > 0 && elapsed+delay > c.policy.LatencyCeiling {
			logging.RetryWarn("Giving up after %d attempts: next wait %s would exceed latency ceiling %s",
				n, delay, c.policy.LatencyCeiling)
			return stats, err
		}

		logging.Retry("Attempt %d failed with %s, retrying in %s", n, failure.KindOf(err), delay)
		if serr := c.sleep(ctx, delay); serr != nil {
			logging.RetryDebug("Backoff interrupted: %v", serr)
			return stats, err
		}
		stats.Delays = append(stats.Delays, delay)
		elapsed += delay
		stats.Elapsed = elapsed
	}
}
