package performance

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// MemoryStore is an in-process PerformanceStore
type MemoryStore struct {
	mu      sync.Mutex
	batches []contracts.RecommendationBatch
	records []contracts.PerformanceRecord
	keys    map[string]int // idempotency key → records index
}

// NewMemoryStore creates an empty in-memory performance store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]int)}
}

func (s *MemoryStore) SaveBatch(ctx context.Context, batch contracts.RecommendationBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.batches {
		if b.RunID == batch.RunID {
			return nil
		}
	}
	s.batches = append(s.batches, batch)
	return nil
}

// ListBatches returns saved batches of a family newest first
func (s *MemoryStore) ListBatches(ctx context.Context, family contracts.StrategyFamily, limit int) ([]contracts.RecommendationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]contracts.RecommendationBatch, 0)
	for i := len(s.batches) - 1; i >= 0; i-- {
		if s.batches[i].StrategyFamily != family {
			continue
		}
		out = append(out, s.batches[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetBatch returns one saved batch
func (s *MemoryStore) GetBatch(ctx context.Context, runID string) (*contracts.RecommendationBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range s.batches {
		if b.RunID == runID {
			out := b
			return &out, nil
		}
	}
	return nil, fmt.Errorf("batch %s: %w", runID, contracts.ErrNotFound)
}

func (s *MemoryStore) InsertPending(ctx context.Context, records []contracts.PerformanceRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range records {
		key := r.IdempotencyKey()
		if _, ok := s.keys[key]; ok {
			continue
		}
		s.keys[key] = len(s.records)
		s.records = append(s.records, r)
		inserted++
	}
	return inserted, nil
}

func (s *MemoryStore) ListPending(ctx context.Context, f contracts.PendingFilter) ([]contracts.PerformanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]contracts.PerformanceRecord, 0)
	for _, r := range s.records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecommendedAt.Before(out[j].RecommendedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) CloseRecord(ctx context.Context, rec contracts.PerformanceRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.keys[rec.IdempotencyKey()]
	if !ok {
		return false, fmt.Errorf("record %s: %w", rec.ID, contracts.ErrNotFound)
	}
	if !s.records[idx].IsPending() {
		return false, nil
	}

	stored := &s.records[idx]
	stored.Outcome = rec.Outcome
	stored.EvaluatedAt = rec.EvaluatedAt
	stored.EvaluatedPrice = rec.EvaluatedPrice
	stored.ReturnPct = rec.ReturnPct
	return true, nil
}

func (s *MemoryStore) ListByAlgorithm(ctx context.Context, algorithmID, version string) ([]contracts.PerformanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]contracts.PerformanceRecord, 0)
	for _, r := range s.records {
		if r.AlgorithmID == algorithmID && (version == "" || r.AlgorithmVersion == version) {
			out = append(out, r)
		}
	}
	return out, nil
}
