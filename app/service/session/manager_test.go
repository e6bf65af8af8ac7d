package session

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, store *Store) *Manager {
	t.Helper()

	return &Manager{
		timeout:       150 * time.Millisecond,
		warningWindow: 60 * time.Millisecond,
		checkInterval: 10 * time.Millisecond,
		store:         store,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	return NewStore(filepath.Join(t.TempDir(), "admin_session.json"))
}

func TestManager_WarningFiresOncePerWindow(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store)

	var warnings atomic.Int32

	require.NoError(t, m.Init(Callbacks{
		OnWarning: func(remaining time.Duration) {
			assert.Greater(t, remaining, time.Duration(0))
			warnings.Add(1)
		},
	}))
	require.NoError(t, m.Login("jwt-token"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	assert.Eventually(t, func() bool {
		return warnings.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// Still inside the same warning window: no second warning.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), warnings.Load())
}

func TestManager_ExpiryTriggersTimeoutAndLogout(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store)

	var timedOut, loggedOut atomic.Int32

	require.NoError(t, m.Init(Callbacks{
		OnTimeout: func() { timedOut.Add(1) },
		OnLogout:  func() { loggedOut.Add(1) },
	}))
	require.NoError(t, m.Login("jwt-token"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	assert.Eventually(t, func() bool {
		return timedOut.Load() == 1 && loggedOut.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// Persisted state is gone, and without a token the loop stays quiet.
	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state.Token)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), timedOut.Load())
}

func TestManager_ReloginAfterLogoutIsMonitoredAgain(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store)

	var timedOut, loggedOut atomic.Int32

	require.NoError(t, m.Init(Callbacks{
		OnTimeout: func() { timedOut.Add(1) },
		OnLogout:  func() { loggedOut.Add(1) },
	}))
	require.NoError(t, m.Login("jwt-token-1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// First session runs out.
	assert.Eventually(t, func() bool {
		return timedOut.Load() == 1 && loggedOut.Load() == 1
	}, time.Second, 5*time.Millisecond)

	// A fresh login on the same process gets the same enforcement.
	require.NoError(t, m.Login("jwt-token-2"))

	assert.Eventually(t, func() bool {
		return timedOut.Load() == 2 && loggedOut.Load() == 2
	}, time.Second, 5*time.Millisecond)

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state.Token)
}

func TestManager_CheckClearsStaleWarningWithoutToken(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store)

	require.NoError(t, m.Init(Callbacks{
		OnWarning: func(time.Duration) { t.Error("warning without a token") },
		OnTimeout: func() { t.Error("timeout without a token") },
	}))
	require.NoError(t, store.Save(State{
		LastActivity: time.Now(),
		WarningShown: true,
	}))

	m.check()

	state, err := store.Load()
	require.NoError(t, err)
	assert.False(t, state.WarningShown)
}

func TestManager_ExtendSessionClearsWarning(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store)

	require.NoError(t, m.Init(Callbacks{}))
	require.NoError(t, m.Login("jwt-token"))

	// Force the state into the warning window.
	state, err := store.Load()
	require.NoError(t, err)
	state.LastActivity = time.Now().Add(-100 * time.Millisecond)
	state.WarningShown = true
	require.NoError(t, store.Save(state))

	status, err := m.GetSessionStatus()
	require.NoError(t, err)
	require.True(t, status.ShouldShowWarning)

	require.NoError(t, m.ExtendSession())

	state, err = store.Load()
	require.NoError(t, err)
	assert.False(t, state.WarningShown)

	status, err = m.GetSessionStatus()
	require.NoError(t, err)
	assert.False(t, status.ShouldShowWarning)
	assert.False(t, status.IsExpired)
}

func TestManager_ClockSurvivesRestart(t *testing.T) {
	store := newTestStore(t)

	first := newTestManager(t, store)
	require.NoError(t, first.Init(Callbacks{}))
	require.NoError(t, first.Login("jwt-token"))

	before, err := first.GetSessionStatus()
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// A reload constructs a new manager over the same persisted state;
	// the inactivity clock must not reset.
	second := newTestManager(t, store)
	require.NoError(t, second.Init(Callbacks{}))

	after, err := second.GetSessionStatus()
	require.NoError(t, err)
	assert.Equal(t, before.LastActivity.UnixNano(), after.LastActivity.UnixNano())
	assert.Less(t, after.TimeRemaining, before.TimeRemaining)
}

func TestManager_GetSessionStatusIsPure(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store)

	require.NoError(t, m.Init(Callbacks{}))
	require.NoError(t, m.Login("jwt-token"))

	stateBefore, err := store.Load()
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = m.GetSessionStatus()
		require.NoError(t, err)
	}

	stateAfter, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, stateBefore, stateAfter)
}

func TestManager_NoTokenMeansNoCallbacks(t *testing.T) {
	store := newTestStore(t)
	m := newTestManager(t, store)

	require.NoError(t, m.Init(Callbacks{
		OnWarning: func(time.Duration) { t.Error("warning without a token") },
		OnTimeout: func() { t.Error("timeout without a token") },
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	time.Sleep(200 * time.Millisecond)
}

func TestStore_ClearIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(State{Token: "x", LastActivity: time.Now()}))
	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())

	state, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, state.Token)
	assert.True(t, state.LastActivity.IsZero())
}
