package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := New(&Config{Name: "test", FailureThreshold: 3, SleepWindow: time.Hour, HalfOpenRequests: 1})

	for i := 0; i < 3; i++ {
		assert.True(t, cb.Allow())
		cb.RecordFailure(errors.New("boom"))
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestCircuitBreakerIgnoresErrorsTheClassifierRejects(t *testing.T) {
	cb := New(&Config{Name: "test", FailureThreshold: 2, SleepWindow: time.Hour})
	classified := func(err error) bool { return false }
	cb.cfg.ErrorClassifier = classified

	for i := 0; i < 5; i++ {
		cb.RecordFailure(errors.New("ignored"))
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenClosesAfterSuccesses(t *testing.T) {
	cb := New(&Config{Name: "test", FailureThreshold: 1, SleepWindow: 10 * time.Millisecond, HalfOpenRequests: 2})

	cb.RecordFailure(errors.New("boom"))
	assert.Equal(t, StateOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New(&Config{Name: "test", FailureThreshold: 1, SleepWindow: 10 * time.Millisecond, HalfOpenRequests: 2})

	cb.RecordFailure(errors.New("boom"))
	time.Sleep(15 * time.Millisecond)
	assert.True(t, cb.Allow())

	cb.RecordFailure(errors.New("still broken"))
	assert.Equal(t, StateOpen, cb.State())
}
