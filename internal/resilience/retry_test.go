package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	clock := NewFakeClock()
	calls := 0
	err := Do(context.Background(), clock, DefaultRetryConfig(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, clock.PendingCount(), "no timers when the first attempt succeeds")
}

func TestDoStopsOnPermanentError(t *testing.T) {
	clock := NewFakeClock()
	permanent := eris.New("bad request")
	calls := 0
	err := Do(context.Background(), clock, DefaultRetryConfig(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls, "non-transient errors are not retried")
}

func TestDoRespectsContextCancellation(t *testing.T) {
	clock := NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, clock, RetryConfig{MaxAttempts: 5, Delay: time.Second}, func(ctx context.Context) error {
		calls++
		cancel()
		return NewTransientError(eris.New("boom"), 503)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrierBoundedAttempts(t *testing.T) {
	clock := NewFakeClock()
	r := NewRetrier(RetryConfig{MaxAttempts: 5, Delay: 300 * time.Millisecond, ShouldRetry: func(error) bool { return true }}, clock)

	attempts := 0
	var gaveUp error
	r.Start(func() error {
		attempts++
		return eris.New("still not ready")
	}, func(err error) { gaveUp = err })

	// First attempt runs synchronously; the rest are timer-driven.
	assert.Equal(t, 1, attempts)
	for i := 0; i < 10; i++ {
		clock.Advance(300 * time.Millisecond)
	}
	assert.Equal(t, 5, attempts, "attempt bound must hold no matter how long the clock runs")
	require.Error(t, gaveUp)
	assert.False(t, r.Running())
}

func TestRetrierStopsOnPermanentError(t *testing.T) {
	clock := NewFakeClock()
	r := NewRetrier(RetryConfig{MaxAttempts: 5, Delay: 300 * time.Millisecond}, clock)

	permanent := eris.New("invalid style URL")
	attempts := 0
	var gaveUp error
	r.Start(func() error {
		attempts++
		return permanent
	}, func(err error) { gaveUp = err })

	clock.Advance(time.Minute)
	assert.Equal(t, 1, attempts, "a permanent error must not burn the attempt budget")
	assert.ErrorIs(t, gaveUp, permanent)
	assert.False(t, r.Running())
	assert.Equal(t, 0, clock.PendingCount(), "no timers may survive a permanent failure")
}

func TestRetrierHonorsShouldRetry(t *testing.T) {
	clock := NewFakeClock()
	retryable := eris.New("backend busy")
	r := NewRetrier(RetryConfig{
		MaxAttempts: 5,
		Delay:       100 * time.Millisecond,
		ShouldRetry: func(err error) bool { return eris.Is(err, retryable) },
	}, clock)

	attempts := 0
	r.Start(func() error {
		attempts++
		if attempts < 3 {
			return retryable
		}
		return eris.New("gone for good")
	}, nil)

	clock.Advance(time.Second)
	assert.Equal(t, 3, attempts, "the chain stops on the first non-retryable error")
	assert.False(t, r.Running())
}

func TestRetrierStopsOnSuccess(t *testing.T) {
	clock := NewFakeClock()
	r := NewRetrier(RetryConfig{MaxAttempts: 5, Delay: 100 * time.Millisecond}, clock)

	attempts := 0
	r.Start(func() error {
		attempts++
		if attempts < 3 {
			return NewTransientError(eris.New("not yet"), 0)
		}
		return nil
	}, nil)

	clock.Advance(time.Second)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 0, clock.PendingCount(), "no stray timers after success")
}

func TestRetrierAttemptsAreSequential(t *testing.T) {
	clock := NewFakeClock()
	r := NewRetrier(RetryConfig{MaxAttempts: 4, Delay: 100 * time.Millisecond, ShouldRetry: func(error) bool { return true }}, clock)

	inFlight := 0
	r.Start(func() error {
		inFlight++
		defer func() { inFlight-- }()
		assert.Equal(t, 1, inFlight, "overlapping retry chains are forbidden")
		return eris.New("fail")
	}, nil)

	clock.Advance(time.Minute)
	// At most one pending timer existed at any point.
	assert.LessOrEqual(t, clock.PendingCount(), 1)
}

func TestRetrierStopCancelsPending(t *testing.T) {
	clock := NewFakeClock()
	r := NewRetrier(RetryConfig{MaxAttempts: 5, Delay: time.Second}, clock)

	attempts := 0
	r.Start(func() error {
		attempts++
		return NewTransientError(eris.New("no"), 0)
	}, nil)
	require.Equal(t, 1, attempts)

	r.Stop()
	clock.Advance(time.Minute)
	assert.Equal(t, 1, attempts, "stopped retriers must not fire against a torn-down backend")
}

func TestDelayForFixedBackoff(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, Delay: 300 * time.Millisecond, Multiplier: 1.0}.withDefaults()
	for attempt := 0; attempt < 4; attempt++ {
		assert.Equal(t, 300*time.Millisecond, cfg.delayFor(attempt))
	}
}

func TestDelayForExponentialCapped(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, Delay: time.Second, Multiplier: 2.0, MaxDelay: 5 * time.Second}.withDefaults()
	assert.Equal(t, time.Second, cfg.delayFor(0))
	assert.Equal(t, 2*time.Second, cfg.delayFor(1))
	assert.Equal(t, 4*time.Second, cfg.delayFor(2))
	assert.Equal(t, 5*time.Second, cfg.delayFor(3), "delay must cap at MaxDelay")
}
