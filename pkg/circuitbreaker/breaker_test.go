package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(true, 3, time.Minute, time.Minute)

	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())

	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.GetTripTime().IsZero())
}

func TestFailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	cb := NewCircuitBreaker(true, 2, 10*time.Millisecond, time.Minute)

	assert.False(t, cb.RecordFailure())
	time.Sleep(20 * time.Millisecond)

	// The earlier failure aged out; this starts a new count.
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())

	failures, _, _, _ := cb.GetState()
	assert.Equal(t, 1, failures)
}

func TestHalfOpensAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker(true, 1, time.Minute, 10*time.Millisecond)

	require.True(t, cb.RecordFailure())
	require.True(t, cb.IsOpen())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, cb.IsOpen(), "circuit half-opens after the reset timeout")

	// The next failure trips it again immediately at threshold 1.
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
}

func TestRecordSuccessClearsFailures(t *testing.T) {
	cb := NewCircuitBreaker(true, 2, time.Minute, time.Minute)

	require.False(t, cb.RecordFailure())
	cb.RecordSuccess()

	// The success reset the count: one more failure does not trip.
	assert.False(t, cb.RecordFailure())
	assert.False(t, cb.IsOpen())
}

func TestManualReset(t *testing.T) {
	cb := NewCircuitBreaker(true, 1, time.Minute, time.Minute)

	require.True(t, cb.RecordFailure())
	require.True(t, cb.IsOpen())

	cb.Reset()
	assert.False(t, cb.IsOpen())

	failures, _, _, _ := cb.GetState()
	assert.Equal(t, 0, failures)
}

func TestDisabledBreakerNeverOpens(t *testing.T) {
	cb := NewCircuitBreaker(false, 1, time.Minute, time.Minute)

	assert.False(t, cb.IsEnabled())
	for i := 0; i < 10; i++ {
		assert.False(t, cb.RecordFailure())
	}
	assert.False(t, cb.IsOpen())
}
