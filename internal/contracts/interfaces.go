package contracts

import (
	"context"
	"encoding/json"
	"strconv"
	"time"
)

// SeedAlgorithm produces a candidate list for one strategy variant.
// Implementations are pure functions of (universe, parameters) and must be
// safe for concurrent use.
// ⭐ SSOT: 시드 알고리즘 계약
type SeedAlgorithm interface {
	ID() string
	Category() Category
	GenerateCandidates(ctx context.Context, universe *Universe, params Parameters) ([]Candidate, error)
}

// MarketDataProvider supplies the universe seeds screen.
// May return ErrDataUnavailable.
type MarketDataProvider interface {
	FetchUniverse(ctx context.Context, q UniverseQuery) (*Universe, error)
	FetchQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// RunListener observes completed runs (websocket hub, metrics)
type RunListener interface {
	OnRun(batch RecommendationBatch)
}

// ⭐ SSOT: 저장소 인터페이스 정의는 여기서만

// ConfigStore persists algorithm configs and version events
type ConfigStore interface {
	ListConfigs(ctx context.Context) ([]AlgorithmConfig, error)
	// InsertConfig returns ErrDuplicateVersion when (id, version) exists
	InsertConfig(ctx context.Context, cfg AlgorithmConfig) error
	// SetActive deactivates the current active version of (id, family),
	// activates the target version and appends ev, in one transaction
	SetActive(ctx context.Context, ev VersionEvent) error
	// ListEvents returns events for the family oldest first
	ListEvents(ctx context.Context, family StrategyFamily) ([]VersionEvent, error)
}

// ABTestStore persists tests and their attributed outcomes
type ABTestStore interface {
	// CreateTest returns ErrTestAlreadyRunning when the family has a running test
	CreateTest(ctx context.Context, t ABTest) error
	GetTest(ctx context.Context, testID string) (*ABTest, error)
	ListTests(ctx context.Context) ([]ABTest, error)
	UpdateTest(ctx context.Context, t ABTest) error
	// AppendOutcome is idempotent on (test_id, record_id)
	AppendOutcome(ctx context.Context, o ABOutcome) error
	ListOutcomes(ctx context.Context, testID string) ([]ABOutcome, error)
}

// PerformanceStore persists batches and performance records
type PerformanceStore interface {
	SaveBatch(ctx context.Context, batch RecommendationBatch) error
	// InsertPending skips records whose idempotency key exists and
	// returns how many were inserted
	InsertPending(ctx context.Context, records []PerformanceRecord) (int, error)
	ListPending(ctx context.Context, f PendingFilter) ([]PerformanceRecord, error)
	// CloseRecord sets the outcome only if the record is still pending
	// and reports whether this call closed it
	CloseRecord(ctx context.Context, rec PerformanceRecord) (bool, error)
	ListByAlgorithm(ctx context.Context, algorithmID, version string) ([]PerformanceRecord, error)
}

// Parameters is the algorithm-specific parameter bag of an AlgorithmConfig.
// Values decoded from YAML or JSON arrive as int, float64, string or bool.
type Parameters map[string]any

// Float returns a numeric parameter or def
func (p Parameters) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns an integer parameter or def
func (p Parameters) Int(key string, def int) int {
	if _, ok := p[key]; !ok {
		return def
	}
	return int(p.Float(key, float64(def)))
}

// String returns a string parameter or def
func (p Parameters) String(key, def string) string {
	if v, ok := p[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Bool returns a boolean parameter or def
func (p Parameters) Bool(key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Millis returns a duration given in milliseconds or def
func (p Parameters) Millis(key string, def time.Duration) time.Duration {
	ms := p.Float(key, -1)
	if ms <= 0 {
		return def
	}
	return time.Duration(ms * float64(time.Millisecond))
}
