package pmcheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

var errNotReady = errors.New("not ready")

func TestPollFirstAttemptSucceeds(t *testing.T) {
	// The mock clock never advances, so any pause would block forever.
	mock := clock.NewMock()
	attempts := 0

	ok := poll(context.Background(), mock, RetryPolicy{Attempts: 80, Interval: 100 * time.Millisecond}, func(time.Duration) error {
		attempts++
		return nil
	})

	assert.True(t, ok)
	assert.Equal(t, 1, attempts)
}

func TestPollSlowAttemptsAreNotPaused(t *testing.T) {
	mock := clock.NewMock()
	policy := RetryPolicy{Attempts: 5, Interval: time.Second}
	attempts := 0

	ok := poll(context.Background(), mock, policy, func(timeout time.Duration) error {
		attempts++
		assert.Equal(t, policy.Interval, timeout)
		// The attempt used its whole slot, as a request timing out would.
		mock.Add(timeout)
		return errNotReady
	})

	assert.False(t, ok)
	assert.Equal(t, 5, attempts)
	assert.Equal(t, 5*time.Second, mock.Now().Sub(time.Unix(0, 0)))
}

func TestPollCancelledDuringPause(t *testing.T) {
	mock := clock.NewMock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	attempts := 0

	ok := poll(ctx, mock, RetryPolicy{Attempts: 5, Interval: time.Second}, func(time.Duration) error {
		attempts++
		cancel()
		return errNotReady
	})

	assert.False(t, ok)
	assert.Equal(t, 1, attempts)
}

func TestPollPacesFailedAttempts(t *testing.T) {
	policy := RetryPolicy{Attempts: 4, Interval: 5 * time.Millisecond}
	attempts := 0

	start := time.Now()
	ok := poll(context.Background(), clock.New(), policy, func(time.Duration) error {
		attempts++
		if attempts == 3 {
			return nil
		}
		return errNotReady
	})

	assert.True(t, ok)
	assert.Equal(t, 3, attempts)
	// Two pauses separate the three attempts.
	assert.GreaterOrEqual(t, time.Since(start), 2*policy.Interval)
}

func TestRetryPolicyValidate(t *testing.T) {
	assert.NoError(t, RetryPolicy{Attempts: 1, Interval: time.Millisecond}.validate())
	assert.Error(t, RetryPolicy{Attempts: 0, Interval: time.Millisecond}.validate())
	assert.Error(t, RetryPolicy{Attempts: 5, Interval: 0}.validate())
}
