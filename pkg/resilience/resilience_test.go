package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []State
	cb := NewCircuitBreaker("content-store", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
		OnStateChange: func(_ string, _, to State) {
			transitions = append(transitions, to)
		},
	})

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
	assert.Equal(t, []State{StateOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	notFound := errors.New("not found")
	cb := NewCircuitBreaker("content-store", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	})
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(func() error { return notFound }), notFound)
	}
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := NewCircuitBreaker("content-store", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Millisecond,
	})
	_ = cb.Execute(func() error { return errBoom })
	require.Equal(t, StateOpen, cb.GetState())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestRetryValue(t *testing.T) {
	attempts := 0
	v, err := RetryValue(context.Background(), "dial", RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	}, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errBoom
		}
		return "connected", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "connected", v)
	assert.Equal(t, 3, attempts)
}

func TestRetry_GivesUp(t *testing.T) {
	err := Retry(context.Background(), "dial", RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	}, func() error { return errBoom })
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
}
