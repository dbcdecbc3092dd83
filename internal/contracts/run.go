package contracts

import "time"

// RequestParams are the per-call options of an orchestration run.
// Zero values are filled from the family defaults of the strategy catalog.
type RequestParams struct {
	LimitPerQuery      int      `json:"limit_per_query,omitempty" validate:"gte=0,lte=1000"`
	MinScore           *float64 `json:"min_score,omitempty" validate:"omitempty,gte=0,lte=100"`
	TopRecommendations int      `json:"top_recommendations,omitempty" validate:"gte=0,lte=500"`
	ForceRefresh       bool     `json:"force_refresh,omitempty"`
	RequestID          string   `json:"request_id,omitempty" validate:"omitempty,max=128"`
}

// Float64 returns a pointer to v, for optional parameters
func Float64(v float64) *float64 {
	return &v
}

// Seed failure reasons recorded in RunMetadata
const (
	FailureError          = "error"
	FailurePanic          = "panic"
	FailureTimeout        = "timeout"
	FailureEmpty          = "empty"
	FailureMalformed      = "malformed"
	FailureCircuitOpen    = "circuit_open"
	FailureRunTimeout     = "run_timeout"
	FailureUnknownVariant = "unknown_variant"
)

// SourceFailure is one isolated seed failure
type SourceFailure struct {
	AlgorithmID string `json:"algorithm_id"`
	Version     string `json:"version"`
	Reason      string `json:"reason"`
	Error       string `json:"error,omitempty"`
}

// ConfigRef identifies one algorithm config used by a run
type ConfigRef struct {
	AlgorithmID string  `json:"algorithm_id"`
	Version     string  `json:"version"`
	Weight      float64 `json:"weight"`
}

// RunMetadata explains how a run produced its result
type RunMetadata struct {
	RunID             string           `json:"run_id"`
	StrategyFamily    StrategyFamily   `json:"strategy_family"`
	StartedAt         time.Time        `json:"started_at"`
	DurationMS        int64            `json:"duration_ms"`
	UniverseSize      int              `json:"universe_size"`
	CacheHit          bool             `json:"cache_hit"`
	CandidateCounts   map[string]int   `json:"candidate_counts"`
	Failures          []SourceFailure  `json:"failures"`
	CategoryBreakdown map[Category]int `json:"category_breakdown"`
	ConfigVersions    []ConfigRef      `json:"config_versions"`
	ABTestID          string           `json:"ab_test_id,omitempty"`
	ABArm             ABArm            `json:"ab_arm,omitempty"`
	ABAlgorithmID     string           `json:"ab_algorithm_id,omitempty"` // 테스트 대상 알고리즘
	TotalCandidates   int              `json:"total_candidates"`
	UniqueSymbols     int              `json:"unique_symbols"`
	FilteredOut       int              `json:"filtered_out"`
	Returned          int              `json:"returned"`
	Partial           bool             `json:"partial"`
	Params            RequestParams    `json:"params"`
}

// Duration returns the wall-clock duration of the run
func (m RunMetadata) Duration() time.Duration {
	return time.Duration(m.DurationMS) * time.Millisecond
}

// Succeeded counts algorithms that contributed candidates
func (m RunMetadata) Succeeded() int {
	return len(m.CandidateCounts)
}
