package activity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Prober issues a single reachability check. Satisfied by probe.Client.
type Prober interface {
	Probe(ctx context.Context, endpoint string, timeout time.Duration) bool
}

type TrackerConfig struct {
	// ServiceLabel identifies this tracker in the connection registry,
	// e.g. "analytics" or "healthTracker".
	ServiceLabel string

	TimeoutThreshold time.Duration
	CheckInterval    time.Duration

	Endpoint     string
	ProbeTimeout time.Duration
	PollInterval time.Duration

	PauseOnInvisible bool
}

type TrackerCallbacks struct {
	OnInactivityTimeout func()
	OnConnectionChange  func(connected bool)
}

// Tracker is the per-conversation lifecycle state machine: it keeps the
// last-activity timestamp, runs the inactivity deadline loop and the
// periodic connection poll, and reports connectivity transitions to the
// shared registry and its owner.
//
// Probe failures never escape the public API; they degrade to
// "unreachable". Owner callbacks are isolated so a panicking callback
// cannot kill a timer loop.
type Tracker struct {
	cfg         TrackerConfig
	cbs         TrackerCallbacks
	prober      Prober
	registry    *Registry
	broadcaster *Broadcaster

	mu               sync.Mutex
	lastActivity     time.Time
	paused           bool
	connected        bool
	closed           bool
	elements         map[string]struct{}
	inactivityCancel context.CancelFunc
	inactivityGen    uint64
	pollCancel       context.CancelFunc
}

func NewTracker(cfg TrackerConfig, prober Prober, registry *Registry, broadcaster *Broadcaster, cbs TrackerCallbacks) *Tracker {
	t := &Tracker{
		cfg:          cfg,
		cbs:          cbs,
		prober:       prober,
		registry:     registry,
		broadcaster:  broadcaster,
		lastActivity: time.Now(),
		connected:    true,
		elements:     make(map[string]struct{}),
	}

	registry.Register(cfg.ServiceLabel)
	broadcaster.Register(t)

	return t
}

// RecordActivity refreshes the last-activity timestamp. When the cached
// state says we are offline it also kicks off an opportunistic re-probe,
// so a returning user gets the "connection restored" transition without
// waiting for the next poll tick.
func (t *Tracker) RecordActivity() {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		return
	}

	t.lastActivity = time.Now()
	disconnected := !t.connected

	t.mu.Unlock()

	if disconnected {
		go func() {
			ok := t.CheckConnection(context.Background())
			t.applyProbeResult(ok)
		}()
	}
}

func (t *Tracker) LastActivity() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lastActivity
}

func (t *Tracker) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.connected
}

// StartInactivityTimer arms the recurring deadline check. The timeout
// callback fires at most once per armed timer; arming again restarts
// monitoring. Re-arming while a loop is running replaces it.
func (t *Tracker) StartInactivityTimer() {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		return
	}

	if t.inactivityCancel != nil {
		t.inactivityCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.inactivityCancel = cancel
	t.inactivityGen++
	gen := t.inactivityGen

	t.mu.Unlock()

	go t.runInactivityLoop(ctx, cancel, gen)
}

func (t *Tracker) runInactivityLoop(ctx context.Context, cancel context.CancelFunc, gen uint64) {
	defer cancel()

	ticker := time.NewTicker(t.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()

			// A re-arm may land between this tick and the lock; the
			// superseded loop must not fire or touch the new cancel.
			if t.closed || t.inactivityGen != gen {
				t.mu.Unlock()
				return
			}

			if t.paused {
				t.mu.Unlock()
				continue
			}

			expired := time.Since(t.lastActivity) >= t.cfg.TimeoutThreshold
			if expired {
				t.inactivityCancel = nil
			}

			t.mu.Unlock()

			if expired {
				t.invokeTimeout()
				return
			}
		}
	}
}

func (t *Tracker) invokeTimeout() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Inactivity timeout callback panicked",
				"service", t.cfg.ServiceLabel,
				"panic", r)
		}
	}()

	if t.cbs.OnInactivityTimeout != nil {
		t.cbs.OnInactivityTimeout()
	}
}

// PauseInactivityTimer suppresses deadline checks without stopping the
// loop. Resuming resets the clock so time spent paused can never trip
// the threshold on its own.
func (t *Tracker) PauseInactivityTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.paused = true
}

func (t *Tracker) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.paused
}

func (t *Tracker) ResumeInactivityTimer() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	t.paused = false
	t.lastActivity = time.Now()
}

// CheckConnection runs one probe and returns the raw result without
// touching cached state or the registry.
func (t *Tracker) CheckConnection(ctx context.Context) bool {
	return t.prober.Probe(ctx, t.cfg.Endpoint, t.cfg.ProbeTimeout)
}

// RetryConnection is the user-initiated recheck. The retrying flag is
// released by defer, so it clears even if the prober misbehaves.
func (t *Tracker) RetryConnection(ctx context.Context) bool {
	t.registry.IncrementRetryCount()

	return t.probeAndApply(ctx)
}

func (t *Tracker) probeAndApply(ctx context.Context) bool {
	t.registry.BeginRetry()
	defer t.registry.EndRetry()

	ok := t.CheckConnection(ctx)
	t.applyProbeResult(ok)

	return ok
}

// applyProbeResult is the single mutation path for connectivity: every
// probe resolution (manual, periodic, opportunistic) funnels through it.
// Whichever resolution lands last wins; only actual transitions reach
// the registry and the owner.
func (t *Tracker) applyProbeResult(connected bool) {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		return
	}

	changed := connected != t.connected
	t.connected = connected

	t.mu.Unlock()

	if !changed {
		return
	}

	t.registry.SetStatus(t.cfg.ServiceLabel, connected)

	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Connection change callback panicked",
					"service", t.cfg.ServiceLabel,
					"panic", r)
			}
		}()

		if t.cbs.OnConnectionChange != nil {
			t.cbs.OnConnectionChange(connected)
		}
	}()
}

// StartPeriodicConnectionChecks polls the endpoint on an interval.
// Passing a non-positive interval uses the configured default. May
// overlap freely with RetryConnection; both share probeAndApply.
func (t *Tracker) StartPeriodicConnectionChecks(interval time.Duration) {
	if interval <= 0 {
		interval = t.cfg.PollInterval
	}

	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		return
	}

	if t.pollCancel != nil {
		t.pollCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.pollCancel = cancel

	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.probeAndApply(ctx)
			}
		}
	}()
}

// AttachElementListener registers a scroll-based activity source scoped
// to one UI element. Repeated attach calls for the same element are
// idempotent.
func (t *Tracker) AttachElementListener(elementID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	t.elements[elementID] = struct{}{}
}

func (t *Tracker) RemoveElementListener(elementID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.elements, elementID)
}

// RecordElementScroll counts as activity only for elements this tracker
// is listening to.
func (t *Tracker) RecordElementScroll(elementID string) {
	t.mu.Lock()
	_, attached := t.elements[elementID]
	t.mu.Unlock()

	if attached {
		t.RecordActivity()
	}
}

// Cleanup stops every loop owned by this tracker and deregisters it.
// Safe to call any number of times; a probe still in flight will find
// the closed flag and leave shared state alone.
func (t *Tracker) Cleanup() {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		return
	}

	t.closed = true

	if t.inactivityCancel != nil {
		t.inactivityCancel()
		t.inactivityCancel = nil
	}

	if t.pollCancel != nil {
		t.pollCancel()
		t.pollCancel = nil
	}

	t.elements = make(map[string]struct{})

	t.mu.Unlock()

	t.broadcaster.Unregister(t)
	t.registry.Unregister(t.cfg.ServiceLabel)
}
