package session

import (
	"carepulse/app/config"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/do"
)

type Status struct {
	IsExpired         bool          `json:"isExpired"`
	TimeRemaining     time.Duration `json:"timeRemaining"`
	ShouldShowWarning bool          `json:"shouldShowWarning"`
	LastActivity      time.Time     `json:"lastActivity"`
}

type Callbacks struct {
	// OnWarning fires once per warning window with the time left.
	OnWarning func(remaining time.Duration)
	// OnTimeout fires when the hard expiry deadline has passed.
	OnTimeout func()
	// OnLogout is the navigation boundary back to the login screen.
	OnLogout func()
}

// Manager tracks the admin session against two deadlines: a warning at
// timeout-warningWindow and a hard expiry at timeout. Last activity is
// persisted, so the clock keeps running across reloads.
type Manager struct {
	timeout       time.Duration
	warningWindow time.Duration
	checkInterval time.Duration

	store *Store

	mu  sync.Mutex
	cbs Callbacks
}

func New(di *do.Injector) (*Manager, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return newManager(cfg, NewStore("")), nil
}

func newManager(cfg *config.Config, store *Store) *Manager {
	return &Manager{
		timeout:       time.Duration(cfg.Admin.TimeoutMinutes) * time.Minute,
		warningWindow: time.Duration(cfg.Admin.WarningMinutes) * time.Minute,
		checkInterval: cfg.Admin.CheckInterval,
		store:         store,
	}
}

// Init loads (or seeds) the persisted last-activity timestamp and
// registers the owner's callbacks. Call before Run.
func (m *Manager) Init(cbs Callbacks) error {
	m.mu.Lock()
	m.cbs = cbs
	m.mu.Unlock()

	state, err := m.store.Load()
	if err != nil {
		return err
	}

	if state.LastActivity.IsZero() {
		state.LastActivity = time.Now()
		return m.store.Save(state)
	}

	return nil
}

func (m *Manager) Login(token string) error {
	return m.store.Save(State{
		Token:        token,
		LastActivity: time.Now(),
	})
}

// UpdateLastActivity persists now and clears the warning-shown flag, so
// the next warning window starts fresh.
func (m *Manager) UpdateLastActivity() error {
	state, err := m.store.Load()
	if err != nil {
		return err
	}

	state.LastActivity = time.Now()
	state.WarningShown = false

	return m.store.Save(state)
}

// ExtendSession is the explicit "keep me signed in" action from a
// displayed warning.
func (m *Manager) ExtendSession() error {
	return m.UpdateLastActivity()
}

// GetSessionStatus is a pure read; it never mutates persisted state.
func (m *Manager) GetSessionStatus() (Status, error) {
	state, err := m.store.Load()
	if err != nil {
		return Status{}, err
	}

	remaining := m.timeout - time.Since(state.LastActivity)
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		IsExpired:         remaining <= 0,
		TimeRemaining:     remaining,
		ShouldShowWarning: remaining > 0 && remaining <= m.warningWindow,
		LastActivity:      state.LastActivity,
	}, nil
}

// Run lives for the whole process. While no session is logged in the
// checks idle, so a logout followed by a fresh login picks monitoring
// right back up.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check()
		}
	}
}

func (m *Manager) check() {
	state, err := m.store.Load()
	if err != nil {
		slog.Error("Failed to load session state", "error", err)
		return
	}

	if state.Token == "" {
		// Stale warning flags without a session (crash between the save
		// calls of a logout) must not leak into the next login.
		if state.WarningShown {
			state.WarningShown = false
			if err = m.store.Save(state); err != nil {
				slog.Error("Failed to clear stale warning flag", "error", err)
			}
		}

		return
	}

	status, err := m.GetSessionStatus()
	if err != nil {
		slog.Error("Failed to compute session status", "error", err)
		return
	}

	m.mu.Lock()
	cbs := m.cbs
	m.mu.Unlock()

	if status.IsExpired {
		slog.Info("Admin session expired, logging out")

		if cbs.OnTimeout != nil {
			cbs.OnTimeout()
		}

		if err = m.Logout(); err != nil {
			slog.Error("Failed to log out expired session", "error", err)
		}

		return
	}

	if status.ShouldShowWarning && !state.WarningShown {
		state.WarningShown = true
		if err = m.store.Save(state); err != nil {
			slog.Error("Failed to persist warning flag", "error", err)
			return
		}

		if cbs.OnWarning != nil {
			cbs.OnWarning(status.TimeRemaining)
		}
	}
}

// Logout clears persisted session state and hands navigation to the
// owner. The check loop keeps running so a later Login is monitored
// again.
func (m *Manager) Logout() error {
	if err := m.store.Clear(); err != nil {
		return err
	}

	m.mu.Lock()
	cbs := m.cbs
	m.mu.Unlock()

	if cbs.OnLogout != nil {
		cbs.OnLogout()
	}

	return nil
}
