package session

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/samber/oops"
)

var defaultStatePath = filepath.Join("data", "admin_session.json")

// State is the persisted admin-session record. Keeping it on disk means
// a page reload (or a process restart) does not reset the inactivity
// clock or re-arm an already shown warning.
type State struct {
	Token        string    `json:"token,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
	WarningShown bool      `json:"warningShown"`
}

type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	if path == "" {
		path = defaultStatePath
	}

	return &Store{path: path}
}

func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return State{}, nil
	}
	if err != nil {
		return State{}, oops.Errorf("failed to read session state: %w", err)
	}

	var state State
	if err = json.Unmarshal(data, &state); err != nil {
		return State{}, oops.Errorf("failed to parse session state: %w", err)
	}

	return state, nil
}

func (s *Store) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return oops.Errorf("failed to create state dir: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return oops.Errorf("failed to marshal session state: %w", err)
	}

	if err = os.WriteFile(s.path, data, 0644); err != nil {
		return oops.Errorf("failed to write session state: %w", err)
	}

	return nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return oops.Errorf("failed to clear session state: %w", err)
	}

	return nil
}
