package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitOpensAfterThreshold(t *testing.T) {
	clock := NewFakeClock()
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 3, ResetTimeout: 30 * time.Second}, clock)

	fail := func(ctx context.Context) error { return eris.New("remote down") }
	for i := 0; i < 3; i++ {
		assert.Error(t, cb.Execute(context.Background(), fail))
	}
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(context.Background(), fail)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitHalfOpenProbeRecovers(t *testing.T) {
	clock := NewFakeClock()
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second}, clock)

	require.Error(t, cb.Execute(context.Background(), func(ctx context.Context) error {
		return eris.New("down")
	}))
	require.Equal(t, CircuitOpen, cb.State())

	clock.Advance(10 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// Successful probe closes the circuit.
	require.NoError(t, cb.Execute(context.Background(), func(ctx context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitHalfOpenProbeFailureReopens(t *testing.T) {
	clock := NewFakeClock()
	cb := NewCircuitBreaker(CircuitConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Second}, clock)

	require.Error(t, cb.Execute(context.Background(), func(ctx context.Context) error {
		return eris.New("down")
	}))
	clock.Advance(10 * time.Second)

	require.Error(t, cb.Execute(context.Background(), func(ctx context.Context) error {
		return eris.New("still down")
	}))
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitShouldTripFilter(t *testing.T) {
	clock := NewFakeClock()
	cb := NewCircuitBreaker(CircuitConfig{
		FailureThreshold: 1,
		ShouldTrip:       IsTransient,
	}, clock)

	// Permanent errors pass through without tripping the breaker.
	require.Error(t, cb.Execute(context.Background(), func(ctx context.Context) error {
		return eris.New("validation failed")
	}))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitReset(t *testing.T) {
	clock := NewFakeClock()
	var transitions []CircuitState
	cb := NewCircuitBreaker(CircuitConfig{
		FailureThreshold: 1,
		OnStateChange:    func(from, to CircuitState) { transitions = append(transitions, to) },
	}, clock)

	require.Error(t, cb.Execute(context.Background(), func(ctx context.Context) error {
		return eris.New("down")
	}))
	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, []CircuitState{CircuitOpen, CircuitClosed}, transitions)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(eris.New("parse error")))
	assert.True(t, IsTransient(NewTransientError(eris.New("503"), 503)))
	assert.True(t, IsTransient(eris.New("dial tcp: i/o timeout")))
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}
