package activity

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/do"
)

const eventBufferSize = 64

// InputKind mirrors the shared document-level input sources the web UI
// forwards: pointer-down, key-press, touch-start.
type InputKind string

const (
	InputPointer InputKind = "pointer"
	InputKey     InputKind = "key"
	InputTouch   InputKind = "touch"
)

var _ do.Shutdownable = (*Broadcaster)(nil)

// Broadcaster owns the single shared activity intake and fans input
// events out to every registered tracker. While no tracker is registered
// the intake is detached and events are dropped, so an idle process
// carries no listeners.
//
// It also tracks page visibility and window focus, pausing trackers that
// opted into visibility-based pausing and resuming them only once the
// page is both visible and focused again.
type Broadcaster struct {
	events chan InputKind

	mu       sync.Mutex
	trackers []*Tracker
	visible  bool
	focused  bool
}

func NewBroadcaster(_ *do.Injector) (*Broadcaster, error) {
	return &Broadcaster{
		events:  make(chan InputKind, eventBufferSize),
		visible: true,
		focused: true,
	}, nil
}

func (b *Broadcaster) Register(t *Tracker) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.trackers {
		if existing == t {
			return
		}
	}

	b.trackers = append(b.trackers, t)
}

func (b *Broadcaster) Unregister(t *Tracker) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.trackers {
		if existing == t {
			b.trackers = append(b.trackers[:i], b.trackers[i+1:]...)
			return
		}
	}
}

// Listening reports whether the shared intake is attached, which is the
// case exactly while at least one tracker is registered.
func (b *Broadcaster) Listening() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.trackers) > 0
}

func (b *Broadcaster) Enqueue(kind InputKind) {
	// Sends racing Shutdown land on a closed channel.
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("activity event dropped after shutdown",
				"kind", kind,
				"panic", r)
		}
	}()

	if !b.Listening() {
		return
	}

	select {
	case b.events <- kind:
	default:
		slog.Warn("activity event queue is full")
	}
}

func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case kind, ok := <-b.events:
			if !ok {
				return
			}

			b.Notify(kind)
		}
	}
}

// Notify delivers one input event to every registered tracker in
// registration order. A panicking tracker must not starve the rest.
func (b *Broadcaster) Notify(kind InputKind) {
	b.mu.Lock()
	trackers := make([]*Tracker, len(b.trackers))
	copy(trackers, b.trackers)
	b.mu.Unlock()

	for _, t := range trackers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Tracker activity notification panicked",
						"service", t.cfg.ServiceLabel,
						"kind", kind,
						"panic", r)
				}
			}()

			t.RecordActivity()
		}()
	}
}

func (b *Broadcaster) SetVisibility(visible bool) {
	b.applyPresence(visible, b.currentFocus())
}

func (b *Broadcaster) SetFocus(focused bool) {
	b.applyPresence(b.currentVisibility(), focused)
}

func (b *Broadcaster) currentVisibility() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.visible
}

func (b *Broadcaster) currentFocus() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.focused
}

func (b *Broadcaster) applyPresence(visible, focused bool) {
	b.mu.Lock()

	wasActive := b.visible && b.focused
	b.visible = visible
	b.focused = focused
	isActive := b.visible && b.focused

	trackers := make([]*Tracker, len(b.trackers))
	copy(trackers, b.trackers)

	b.mu.Unlock()

	if wasActive == isActive {
		return
	}

	for _, t := range trackers {
		if !t.cfg.PauseOnInvisible {
			continue
		}

		if isActive {
			t.ResumeInactivityTimer()
		} else {
			t.PauseInactivityTimer()
		}
	}
}

func (b *Broadcaster) Shutdown() error {
	close(b.events)

	return nil
}
