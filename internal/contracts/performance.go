package contracts

import (
	"fmt"
	"time"
)

// Outcome 추천 성과 판정
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeHit     Outcome = "hit"
	OutcomeMiss    Outcome = "miss"
)

// PerformanceRecord tracks one past recommendation per contributing algorithm.
// Created pending, closed exactly once, never deleted.
type PerformanceRecord struct {
	ID               string         `json:"id"`
	RunID            string         `json:"run_id"`
	Symbol           string         `json:"symbol"`
	AlgorithmID      string         `json:"algorithm_id"`
	AlgorithmVersion string         `json:"algorithm_version"`
	StrategyFamily   StrategyFamily `json:"strategy_family"`
	RecommendedAt    time.Time      `json:"recommended_at"`
	RecommendedPrice float64        `json:"recommended_price"`
	EvaluatedAt      *time.Time     `json:"evaluated_at,omitempty"`
	EvaluatedPrice   *float64       `json:"evaluated_price,omitempty"`
	Outcome          Outcome        `json:"outcome"`
	ReturnPct        *float64       `json:"return_pct,omitempty"`
	ABTestID         string         `json:"ab_test_id,omitempty"`
	ABArm            ABArm          `json:"ab_arm,omitempty"`
}

// IdempotencyKey is (symbol, algorithm id, version, recommended_at)
func (r PerformanceRecord) IdempotencyKey() string {
	return fmt.Sprintf("%s|%s|%s|%d", r.Symbol, r.AlgorithmID, r.AlgorithmVersion, r.RecommendedAt.UnixNano())
}

// IsPending reports whether the record is still open
func (r PerformanceRecord) IsPending() bool {
	return r.Outcome == OutcomePending
}

// PerformanceMetrics aggregates closed records of one algorithm version
type PerformanceMetrics struct {
	AlgorithmID string  `json:"algorithm_id"`
	Version     string  `json:"version"`
	HitRate     float64 `json:"hit_rate"`
	MeanReturn  float64 `json:"mean_return"`
	SampleSize  int     `json:"sample_size"`
	Pending     int     `json:"pending"`
}

// PendingFilter selects open records for evaluation.
// Empty string fields match anything.
type PendingFilter struct {
	Symbol            string
	AlgorithmID       string
	Version           string
	RecommendedBefore time.Time // inclusive upper bound
	Limit             int
}

// Matches applies the filter in memory
func (f PendingFilter) Matches(r PerformanceRecord) bool {
	if !r.IsPending() {
		return false
	}
	if f.Symbol != "" && r.Symbol != f.Symbol {
		return false
	}
	if f.AlgorithmID != "" && r.AlgorithmID != f.AlgorithmID {
		return false
	}
	if f.Version != "" && r.AlgorithmVersion != f.Version {
		return false
	}
	if !f.RecommendedBefore.IsZero() && r.RecommendedAt.After(f.RecommendedBefore) {
		return false
	}
	return true
}
