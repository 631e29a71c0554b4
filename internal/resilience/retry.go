// Package resilience provides bounded retry, watchdog clocks, and a
// circuit breaker for the engine's dealings with flaky collaborators: the
// rendering backend during style reloads and the remote dataset service.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is an explicit, testable retry policy: the attempt bound and
// delay live in data, not in nested timer callbacks.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first.
	// Default: 5.
	MaxAttempts int

	// Delay is the base wait between attempts. Default: 300ms.
	Delay time.Duration

	// Multiplier scales the delay after each attempt. 1.0 keeps the delay
	// fixed, which is what the style-reload replay wants. Default: 1.0.
	Multiplier float64

	// MaxDelay caps the scaled delay. Default: 10s.
	MaxDelay time.Duration

	// JitterFraction adds ±fraction random jitter to each delay. Only the
	// network paths set this; backend replay stays deterministic.
	JitterFraction float64

	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry is called before each wait with the attempt number and error.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is the policy for backend replay after a style swap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		Delay:       300 * time.Millisecond,
		Multiplier:  1.0,
		MaxDelay:    10 * time.Second,
	}
}

func (cfg RetryConfig) withDefaults() RetryConfig {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 300 * time.Millisecond
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1.0
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

func (cfg RetryConfig) delayFor(attempt int) time.Duration {
	d := float64(cfg.Delay) * math.Pow(cfg.Multiplier, float64(attempt))
	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if cfg.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * cfg.JitterFraction
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Do executes fn with blocking retries on clock. Context cancellation
// stops the chain immediately. Used on fetch paths where the caller is
// already off the event loop.
func Do(ctx context.Context, clock Clock, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil || !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt >= cfg.MaxAttempts-1 {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, lastErr)
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-clock.After(cfg.delayFor(attempt)):
		}
	}
	return lastErr
}

// DoVal is Do preserving the successful call's value.
func DoVal[T any](ctx context.Context, clock Clock, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, clock, cfg, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Retrier runs an operation on a bounded schedule without blocking,
// rescheduling itself through the clock. It replaces ad hoc setTimeout
// chains: attempts are strictly sequential and there is never more than
// one pending timer per Retrier.
type Retrier struct {
	cfg     RetryConfig
	clock   Clock
	pending Timer
	stopped bool
	running bool
}

// NewRetrier creates a Retrier with the given policy and clock.
func NewRetrier(cfg RetryConfig, clock Clock) *Retrier {
	if clock == nil {
		clock = SystemClock
	}
	return &Retrier{cfg: cfg.withDefaults(), clock: clock}
}

// Start begins a retry chain. op runs immediately; on a retryable error
// it is rescheduled after the policy delay until it succeeds, fails
// permanently, or the attempt bound is hit, at which point onGiveUp (if
// non-nil) receives the last error. Starting again cancels any chain in
// flight.
func (r *Retrier) Start(op func() error, onGiveUp func(err error)) {
	r.Stop()
	r.stopped = false
	r.running = true
	r.attempt(1, op, onGiveUp)
}

func (r *Retrier) attempt(n int, op func() error, onGiveUp func(err error)) {
	if r.stopped {
		return
	}
	err := op()
	if err == nil {
		r.running = false
		return
	}
	shouldRetry := r.cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsTransient
	}
	if !shouldRetry(err) {
		r.running = false
		zap.L().Warn("resilience: permanent error, giving up",
			zap.Int("attempts", n),
			zap.Error(err),
		)
		if onGiveUp != nil {
			onGiveUp(err)
		}
		return
	}
	if n >= r.cfg.MaxAttempts {
		r.running = false
		zap.L().Warn("resilience: retry bound exceeded, giving up",
			zap.Int("attempts", n),
			zap.Error(err),
		)
		if onGiveUp != nil {
			onGiveUp(err)
		}
		return
	}
	if r.cfg.OnRetry != nil {
		r.cfg.OnRetry(n, err)
	}
	r.pending = r.clock.AfterFunc(r.cfg.delayFor(n-1), func() {
		r.attempt(n+1, op, onGiveUp)
	})
}

// Stop cancels any pending attempt.
func (r *Retrier) Stop() {
	r.stopped = true
	r.running = false
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

// Running reports whether a chain is in flight.
func (r *Retrier) Running() bool { return r.running }

// RetryLogger returns an OnRetry callback that logs each retry attempt.
func RetryLogger(component, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying operation",
			zap.String("component", component),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
