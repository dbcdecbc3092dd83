package registry

import (
	"context"
	"fmt"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// VersionManager rolls active versions back along the recorded event trail
type VersionManager struct {
	registry *Registry
}

// NewVersionManager creates a version manager over the registry
func NewVersionManager(r *Registry) *VersionManager {
	return &VersionManager{registry: r}
}

// Events returns the family's activation and rollback events, oldest first
func (m *VersionManager) Events(ctx context.Context, family contracts.StrategyFamily) ([]contracts.VersionEvent, error) {
	if !family.Valid() {
		return nil, fmt.Errorf("%w: %q", contracts.ErrInvalidStrategyFamily, family)
	}
	events, err := m.registry.store.ListEvents(ctx, family)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Rollback undoes the latest not yet rolled back activation of the family
// by reactivating the version it replaced
func (m *VersionManager) Rollback(ctx context.Context, family contracts.StrategyFamily) (*contracts.AlgorithmConfig, error) {
	if !family.Valid() {
		return nil, fmt.Errorf("%w: %q", contracts.ErrInvalidStrategyFamily, family)
	}

	r := m.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	events, err := r.store.ListEvents(ctx, family)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	stack := activationStack(events)
	if len(stack) == 0 {
		return nil, fmt.Errorf("family %s: %w", family, contracts.ErrNoPriorVersion)
	}

	last := stack[len(stack)-1]
	if last.FromVersion == "" {
		return nil, fmt.Errorf("family %s: %s has no version before %s: %w",
			family, last.AlgorithmID, last.ToVersion, contracts.ErrNoPriorVersion)
	}

	if _, err := r.activateLocked(ctx, contracts.EventRollback, last.AlgorithmID, last.FromVersion, family); err != nil {
		return nil, err
	}

	cfg := r.current.Load().configs[contracts.ConfigKey{AlgorithmID: last.AlgorithmID, Version: last.FromVersion}]
	out := cfg.Clone()
	return &out, nil
}

// activationStack replays events: activations push, rollbacks pop the
// latest activation of the same algorithm
func activationStack(events []contracts.VersionEvent) []contracts.VersionEvent {
	stack := make([]contracts.VersionEvent, 0, len(events))
	for _, ev := range events {
		switch ev.Kind {
		case contracts.EventActivate:
			stack = append(stack, ev)
		case contracts.EventRollback:
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].AlgorithmID == ev.AlgorithmID {
					stack = append(stack[:i], stack[i+1:]...)
					break
				}
			}
		}
	}
	return stack
}
