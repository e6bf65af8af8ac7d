package activity

import (
	"sync"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
)

// Registry aggregates connectivity across all active trackers. It is the
// only cross-tracker shared state; every mutation goes through its own
// methods so concurrent trackers can never observe a half-applied update.
type Registry struct {
	mu sync.Mutex

	services   map[string]bool
	retrying   int
	retryCount int
}

type RegistryState struct {
	Connected      bool     `json:"connected"`
	Retrying       bool     `json:"retrying"`
	RetryCount     int      `json:"retryCount"`
	FailedServices []string `json:"failedServices"`
}

func NewRegistry(_ *do.Injector) (*Registry, error) {
	return &Registry{
		services: make(map[string]bool),
	}, nil
}

func (r *Registry) Register(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services[label]; !ok {
		r.services[label] = true
	}
}

func (r *Registry) Unregister(label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.services, label)
}

func (r *Registry) SetStatus(label string, connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.services[label] = connected
}

// BeginRetry must be paired with a deferred EndRetry so that a failing
// probe can never leave the registry stuck in the retrying state. The
// counter tolerates overlapping manual and periodic checks.
func (r *Registry) BeginRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.retrying++
}

func (r *Registry) EndRetry() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.retrying > 0 {
		r.retrying--
	}
}

func (r *Registry) IncrementRetryCount() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.retryCount++
}

func (r *Registry) Snapshot() RegistryState {
	r.mu.Lock()
	defer r.mu.Unlock()

	failed := make([]string, 0)
	for label, connected := range r.services {
		if !connected {
			failed = append(failed, label)
		}
	}

	return RegistryState{
		Connected:      len(failed) == 0,
		Retrying:       r.retrying > 0,
		RetryCount:     r.retryCount,
		FailedServices: pie.Sort(failed),
	}
}
