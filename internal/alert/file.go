package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"TradingStation/internal/model"
)

// FileStore keeps alert state in a JSON file that is rewritten on every save.
type FileStore struct {
	mu     sync.Mutex
	path   string
	states map[model.InstrumentKey]model.AlertState
}

// OpenFileStore reads the state file, creating its directory if needed. A missing file yields an empty store.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, states: make(map[model.InstrumentKey]model.AlertState)}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("read alert state: %w", err)
	}
	var list []model.AlertState
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode alert state: %w", err)
	}
	for _, st := range list {
		s.states[st.Key] = st
	}
	return s, nil
}

// Load returns the state for key from memory.
func (s *FileStore) Load(_ context.Context, key model.InstrumentKey) (model.AlertState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key]
	return st, ok, nil
}

// Save writes the full state set to a temp file and renames it over the old one.
func (s *FileStore) Save(_ context.Context, state model.AlertState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[model.InstrumentKey]model.AlertState, len(s.states)+1)
	for k, v := range s.states {
		next[k] = v
	}
	next[state.Key] = state

	data, err := json.MarshalIndent(sortedStates(next), "", "  ")
	if err != nil {
		return fmt.Errorf("encode alert state: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".alert-state-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write alert state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close alert state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace alert state: %w", err)
	}

	s.states = next
	return nil
}

func (s *FileStore) List(_ context.Context) ([]model.AlertState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedStates(s.states), nil
}

func (s *FileStore) Close() error { return nil }
