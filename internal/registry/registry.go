package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// activeKey identifies the single active slot of one algorithm in a family
type activeKey struct {
	family      contracts.StrategyFamily
	algorithmID string
}

// snapshot is an immutable view of the registry.
// Readers load it without locks; writers build a new one and swap it in.
type snapshot struct {
	configs map[contracts.ConfigKey]contracts.AlgorithmConfig
	active  map[activeKey]string // → version
}

func emptySnapshot() *snapshot {
	return &snapshot{
		configs: make(map[contracts.ConfigKey]contracts.AlgorithmConfig),
		active:  make(map[activeKey]string),
	}
}

func (s *snapshot) clone() *snapshot {
	out := &snapshot{
		configs: make(map[contracts.ConfigKey]contracts.AlgorithmConfig, len(s.configs)),
		active:  make(map[activeKey]string, len(s.active)),
	}
	for k, v := range s.configs {
		out.configs[k] = v
	}
	for k, v := range s.active {
		out.active[k] = v
	}
	return out
}

// Registry owns the versioned algorithm configs and which version is active.
// A run observes either the old or the new active set, never a mix.
// ⭐ SSOT: 활성 버전 상태는 여기서만 관리
type Registry struct {
	store  contracts.ConfigStore
	logger *logger.Logger
	now    func() time.Time

	current atomic.Pointer[snapshot]
	mu      sync.Mutex // 쓰기 직렬화 (저장 → 스냅샷 교체)
}

// New creates an empty registry backed by store. Call Load to read persisted state.
func New(store contracts.ConfigStore, log *logger.Logger) *Registry {
	r := &Registry{
		store:  store,
		logger: log,
		now:    time.Now,
	}
	r.current.Store(emptySnapshot())
	return r
}

// Load replaces the in-memory state with the store's contents
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	configs, err := r.store.ListConfigs(ctx)
	if err != nil {
		return fmt.Errorf("load configs: %w", err)
	}

	snap := emptySnapshot()
	for _, cfg := range configs {
		snap.configs[cfg.Key()] = cfg.Clone()
		if cfg.IsActive {
			snap.active[activeKey{cfg.StrategyFamily, cfg.AlgorithmID}] = cfg.Version
		}
	}
	r.current.Store(snap)

	r.logger.WithFields(map[string]interface{}{
		"configs": len(snap.configs),
		"active":  len(snap.active),
	}).Info("Algorithm registry loaded")

	return nil
}

// GetActive returns the enabled active configs of a family ordered by id
func (r *Registry) GetActive(family contracts.StrategyFamily) ([]contracts.AlgorithmConfig, error) {
	if !family.Valid() {
		return nil, fmt.Errorf("%w: %q", contracts.ErrInvalidStrategyFamily, family)
	}

	snap := r.current.Load()
	out := make([]contracts.AlgorithmConfig, 0)
	for key, version := range snap.active {
		if key.family != family {
			continue
		}
		cfg, ok := snap.configs[contracts.ConfigKey{AlgorithmID: key.algorithmID, Version: version}]
		if !ok || !cfg.Enabled {
			continue
		}
		out = append(out, cfg.Clone())
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: family %s", contracts.ErrConfigurationMissing, family)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].AlgorithmID < out[j].AlgorithmID
	})
	return out, nil
}

// Get returns one registered version
func (r *Registry) Get(algorithmID, version string) (contracts.AlgorithmConfig, error) {
	cfg, ok := r.current.Load().configs[contracts.ConfigKey{AlgorithmID: algorithmID, Version: version}]
	if !ok {
		return contracts.AlgorithmConfig{}, fmt.Errorf("algorithm %s@%s: %w", algorithmID, version, contracts.ErrNotFound)
	}
	return cfg.Clone(), nil
}

// List returns every registered version ordered by (id, created_at, version)
func (r *Registry) List() []contracts.AlgorithmConfig {
	snap := r.current.Load()
	out := make([]contracts.AlgorithmConfig, 0, len(snap.configs))
	for _, cfg := range snap.configs {
		out = append(out, cfg.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AlgorithmID != out[j].AlgorithmID {
			return out[i].AlgorithmID < out[j].AlgorithmID
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// GetHistory returns every version of an algorithm, newest first
func (r *Registry) GetHistory(algorithmID string) ([]contracts.AlgorithmConfig, error) {
	snap := r.current.Load()
	out := make([]contracts.AlgorithmConfig, 0)
	for key, cfg := range snap.configs {
		if key.AlgorithmID == algorithmID {
			out = append(out, cfg.Clone())
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("algorithm %s: %w", algorithmID, contracts.ErrNotFound)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

// Register stores a new version. A config flagged active is activated right
// after it is stored.
func (r *Registry) Register(ctx context.Context, cfg contracts.AlgorithmConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	if _, exists := snap.configs[cfg.Key()]; exists {
		return fmt.Errorf("algorithm %s: %w", cfg.Key(), contracts.ErrDuplicateVersion)
	}

	activate := cfg.IsActive
	stored := cfg.Clone()
	stored.IsActive = false
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = r.now().UTC()
	}

	if err := r.store.InsertConfig(ctx, stored); err != nil {
		return fmt.Errorf("register %s: %w", cfg.Key(), err)
	}

	next := snap.clone()
	next.configs[stored.Key()] = stored
	r.current.Store(next)

	r.logger.WithFields(map[string]interface{}{
		"algorithm_id": stored.AlgorithmID,
		"version":      stored.Version,
		"family":       stored.StrategyFamily,
	}).Info("Algorithm version registered")

	if activate {
		if _, err := r.activateLocked(ctx, contracts.EventActivate, stored.AlgorithmID, stored.Version, stored.StrategyFamily); err != nil {
			return err
		}
	}
	return nil
}

// Activate makes version the active one for (algorithmID, family).
// The change is persisted before the in-memory swap.
func (r *Registry) Activate(ctx context.Context, algorithmID, version string, family contracts.StrategyFamily) (*contracts.VersionEvent, error) {
	if !family.Valid() {
		return nil, fmt.Errorf("%w: %q", contracts.ErrInvalidStrategyFamily, family)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return r.activateLocked(ctx, contracts.EventActivate, algorithmID, version, family)
}

// activateLocked requires r.mu. Activating the already active version is a
// no-op that returns a nil event.
func (r *Registry) activateLocked(ctx context.Context, kind contracts.VersionEventKind, algorithmID, version string, family contracts.StrategyFamily) (*contracts.VersionEvent, error) {
	snap := r.current.Load()
	key := contracts.ConfigKey{AlgorithmID: algorithmID, Version: version}

	cfg, ok := snap.configs[key]
	if !ok {
		return nil, fmt.Errorf("algorithm %s: %w", key, contracts.ErrNotFound)
	}
	if cfg.StrategyFamily != family {
		return nil, fmt.Errorf("%w: %s belongs to family %s, not %s",
			contracts.ErrInvalidArgument, key, cfg.StrategyFamily, family)
	}

	slot := activeKey{family, algorithmID}
	from := snap.active[slot]
	if from == version {
		return nil, nil
	}

	ev := contracts.VersionEvent{
		ID:             uuid.NewString(),
		Kind:           kind,
		AlgorithmID:    algorithmID,
		StrategyFamily: family,
		FromVersion:    from,
		ToVersion:      version,
		At:             r.now().UTC(),
	}

	if err := r.store.SetActive(ctx, ev); err != nil {
		return nil, fmt.Errorf("activate %s: %w", key, err)
	}

	next := snap.clone()
	if from != "" {
		prev := next.configs[contracts.ConfigKey{AlgorithmID: algorithmID, Version: from}]
		prev.IsActive = false
		next.configs[prev.Key()] = prev
	}
	cfg.IsActive = true
	next.configs[key] = cfg
	next.active[slot] = version
	r.current.Store(next)

	r.logger.WithFields(map[string]interface{}{
		"kind":         kind,
		"algorithm_id": algorithmID,
		"family":       family,
		"from":         from,
		"to":           version,
	}).Info("Active version changed")

	return &ev, nil
}
