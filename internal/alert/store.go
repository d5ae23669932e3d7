package alert

import (
	"context"
	"sort"
	"sync"

	"TradingStation/internal/model"
)

// StateStore persists the per-instrument dedup state. Save replaces the whole AlertState.
type StateStore interface {
	Load(ctx context.Context, key model.InstrumentKey) (model.AlertState, bool, error)
	Save(ctx context.Context, state model.AlertState) error
	List(ctx context.Context) ([]model.AlertState, error)
	Close() error
}

// MemoryStore keeps state in-process; it starts every instrument from the Neutral baseline on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[model.InstrumentKey]model.AlertState
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[model.InstrumentKey]model.AlertState)}
}

// Load returns the state for key. ok is false when the instrument has never been saved.
func (s *MemoryStore) Load(_ context.Context, key model.InstrumentKey) (model.AlertState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[key]
	return st, ok, nil
}

// Save replaces the state for state.Key.
func (s *MemoryStore) Save(_ context.Context, state model.AlertState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Key] = state
	return nil
}

// List returns every state ordered by key.
func (s *MemoryStore) List(_ context.Context) ([]model.AlertState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedStates(s.states), nil
}

func (s *MemoryStore) Close() error { return nil }

func sortedStates(m map[model.InstrumentKey]model.AlertState) []model.AlertState {
	out := make([]model.AlertState, 0, len(m))
	for _, st := range m {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}
