package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// MemoryStore is an in-process ConfigStore for tests and STORAGE=memory
type MemoryStore struct {
	mu      sync.Mutex
	configs []contracts.AlgorithmConfig
	events  []contracts.VersionEvent
}

// NewMemoryStore creates an empty in-memory config store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// ListConfigs returns copies of all stored configs
func (s *MemoryStore) ListConfigs(ctx context.Context) ([]contracts.AlgorithmConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]contracts.AlgorithmConfig, len(s.configs))
	for i, c := range s.configs {
		out[i] = c.Clone()
	}
	return out, nil
}

// InsertConfig appends a config unless (id, version) exists
func (s *MemoryStore) InsertConfig(ctx context.Context, cfg contracts.AlgorithmConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.configs {
		if c.Key() == cfg.Key() {
			return fmt.Errorf("%s: %w", cfg.Key(), contracts.ErrDuplicateVersion)
		}
	}
	s.configs = append(s.configs, cfg.Clone())
	return nil
}

// SetActive swaps the active flag and appends the event
func (s *MemoryStore) SetActive(ctx context.Context, ev contracts.VersionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := -1
	for i, c := range s.configs {
		if c.AlgorithmID == ev.AlgorithmID && c.Version == ev.ToVersion {
			target = i
		}
	}
	if target < 0 {
		return fmt.Errorf("%s@%s: %w", ev.AlgorithmID, ev.ToVersion, contracts.ErrNotFound)
	}

	for i := range s.configs {
		c := &s.configs[i]
		if c.AlgorithmID == ev.AlgorithmID && c.StrategyFamily == ev.StrategyFamily {
			c.IsActive = false
		}
	}
	s.configs[target].IsActive = true
	s.events = append(s.events, ev)
	return nil
}

// ListEvents returns the family's events in insertion order
func (s *MemoryStore) ListEvents(ctx context.Context, family contracts.StrategyFamily) ([]contracts.VersionEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]contracts.VersionEvent, 0)
	for _, ev := range s.events {
		if ev.StrategyFamily == family {
			out = append(out, ev)
		}
	}
	return out, nil
}
