package abtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// MemoryStore is an in-process ABTestStore
type MemoryStore struct {
	mu       sync.Mutex
	tests    map[string]contracts.ABTest
	outcomes map[string][]contracts.ABOutcome
}

// NewMemoryStore creates an empty in-memory A/B store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tests:    make(map[string]contracts.ABTest),
		outcomes: make(map[string][]contracts.ABOutcome),
	}
}

func (s *MemoryStore) CreateTest(ctx context.Context, t contracts.ABTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.IsRunning() {
		for _, existing := range s.tests {
			if existing.IsRunning() && existing.StrategyFamily == t.StrategyFamily {
				return fmt.Errorf("family %s: %w", t.StrategyFamily, contracts.ErrTestAlreadyRunning)
			}
		}
	}
	if _, ok := s.tests[t.TestID]; ok {
		return fmt.Errorf("%w: test %s exists", contracts.ErrInvalidArgument, t.TestID)
	}
	s.tests[t.TestID] = t
	return nil
}

func (s *MemoryStore) GetTest(ctx context.Context, testID string) (*contracts.ABTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tests[testID]
	if !ok {
		return nil, fmt.Errorf("test %s: %w", testID, contracts.ErrNotFound)
	}
	return &t, nil
}

func (s *MemoryStore) ListTests(ctx context.Context) ([]contracts.ABTest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]contracts.ABTest, 0, len(s.tests))
	for _, t := range s.tests {
		out = append(out, t)
	}
	sortTests(out)
	return out, nil
}

func (s *MemoryStore) UpdateTest(ctx context.Context, t contracts.ABTest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tests[t.TestID]; !ok {
		return fmt.Errorf("test %s: %w", t.TestID, contracts.ErrNotFound)
	}
	s.tests[t.TestID] = t
	return nil
}

func (s *MemoryStore) AppendOutcome(ctx context.Context, o contracts.ABOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.outcomes[o.TestID] {
		if existing.RecordID == o.RecordID {
			return nil
		}
	}
	s.outcomes[o.TestID] = append(s.outcomes[o.TestID], o)
	return nil
}

func (s *MemoryStore) ListOutcomes(ctx context.Context, testID string) ([]contracts.ABOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]contracts.ABOutcome, len(s.outcomes[testID]))
	copy(out, s.outcomes[testID])
	return out, nil
}
