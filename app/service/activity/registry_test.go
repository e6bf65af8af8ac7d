package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_StatusTransitions(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	r.Register("analytics")
	r.Register("healthTracker")

	state := r.Snapshot()
	assert.True(t, state.Connected)
	assert.Empty(t, state.FailedServices)

	r.SetStatus("analytics", false)

	state = r.Snapshot()
	assert.False(t, state.Connected)
	assert.Equal(t, []string{"analytics"}, state.FailedServices)

	r.SetStatus("healthTracker", false)

	state = r.Snapshot()
	assert.Equal(t, []string{"analytics", "healthTracker"}, state.FailedServices)

	r.SetStatus("analytics", true)

	state = r.Snapshot()
	assert.False(t, state.Connected)
	assert.Equal(t, []string{"healthTracker"}, state.FailedServices)

	r.SetStatus("healthTracker", true)
	assert.True(t, r.Snapshot().Connected)
}

func TestRegistry_UnregisterClearsFailure(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	r.Register("analytics")
	r.SetStatus("analytics", false)
	require.False(t, r.Snapshot().Connected)

	r.Unregister("analytics")

	state := r.Snapshot()
	assert.True(t, state.Connected)
	assert.Empty(t, state.FailedServices)
}

func TestRegistry_RetryingNeverSticks(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	// Overlapping manual and periodic checks.
	r.BeginRetry()
	r.BeginRetry()
	assert.True(t, r.Snapshot().Retrying)

	r.EndRetry()
	assert.True(t, r.Snapshot().Retrying)

	r.EndRetry()
	assert.False(t, r.Snapshot().Retrying)

	// A stray EndRetry must not underflow.
	r.EndRetry()
	r.BeginRetry()
	assert.True(t, r.Snapshot().Retrying)
	r.EndRetry()
	assert.False(t, r.Snapshot().Retrying)
}

func TestRegistry_RetryCountMonotonic(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		r.IncrementRetryCount()
	}

	assert.Equal(t, 5, r.Snapshot().RetryCount)
}
