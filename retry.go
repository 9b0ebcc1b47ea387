package pmcheck

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// RetryPolicy bounds a polling loop: at most Attempts tries, started no
// closer together than Interval.
type RetryPolicy struct {
	Attempts int
	Interval time.Duration
}

func (p RetryPolicy) validate() error {
	if p.Attempts < 1 {
		return fmt.Errorf("attempts must be at least 1, got %d", p.Attempts)
	}
	if p.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", p.Interval)
	}
	return nil
}

// poll runs attempt until it succeeds or the policy is exhausted. Each
// attempt is handed the interval as its own deadline; an attempt that fails
// early is followed by a pause for the rest of its interval.
//
// A cancelled context ends the loop with false.
func poll(ctx context.Context, clk clock.Clock, policy RetryPolicy, attempt func(timeout time.Duration) error) bool {
	for i := 0; i < policy.Attempts; i++ {
		if ctx.Err() != nil {
			return false
		}

		start := clk.Now()
		err := attempt(policy.Interval)
		if err == nil {
			return true
		}
		slog.Debug("poll attempt failed",
			"attempt", i+1,
			"of", policy.Attempts,
			"error", err)

		if i == policy.Attempts-1 {
			break
		}

		remaining := policy.Interval - clk.Since(start)
		if remaining <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return false
		case <-clk.After(remaining):
		}
	}
	return false
}
