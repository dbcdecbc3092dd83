package contracts

import (
	"fmt"
	"time"
)

// Candidate is one symbol's output from one seed algorithm run.
// RawScore is only comparable within the same algorithm id + version.
type Candidate struct {
	Symbol                 string             `json:"symbol"`
	RawScore               float64            `json:"raw_score"`
	Category               Category           `json:"category"`
	SourceAlgorithmID      string             `json:"source_algorithm_id"`
	SourceAlgorithmVersion string             `json:"source_algorithm_version"`
	Indicators             map[string]float64 `json:"indicators,omitempty"`
	ObservedAt             time.Time          `json:"observed_at"`
}

// Validate checks the fields the merge stage relies on
func (c Candidate) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("candidate: empty symbol")
	}
	if !finite(c.RawScore) {
		return fmt.Errorf("candidate %s: non-finite raw score", c.Symbol)
	}
	if !c.Category.Valid() {
		return fmt.Errorf("candidate %s: unknown category %q", c.Symbol, c.Category)
	}
	return nil
}

// Recommendation is one symbol's entry in the merged output
// ⭐ SSOT: 오케스트레이터 → HTTP/트래커 전달
type Recommendation struct {
	Rank                   int                `json:"rank"` // 1-based
	Symbol                 string             `json:"symbol"`
	NormalizedScore        float64            `json:"normalized_score"` // 0~100
	Appearances            int                `json:"appearances"`
	CategoryCount          int                `json:"category_count"`
	Categories             map[Category]bool  `json:"categories"`
	ContributingAlgorithms []string           `json:"contributing_algorithms"` // algorithm id 순
	Percentiles            map[string]float64 `json:"percentiles"`             // algorithm id → percentile
	BestRawCandidate       Candidate          `json:"best_raw_candidate"`
	Price                  float64            `json:"price,omitempty"`
}

// HasCategory reports whether a contributing algorithm carried category c
func (r *Recommendation) HasCategory(c Category) bool {
	return r.Categories[c]
}

// IsTopRanked checks if the recommendation is in top N ranks
func (r *Recommendation) IsTopRanked(n int) bool {
	return r.Rank <= n && r.Rank > 0
}

// RecommendationBatch is the append-only snapshot of one run
type RecommendationBatch struct {
	RunID           string           `json:"run_id"`
	StrategyFamily  StrategyFamily   `json:"strategy_family"`
	CreatedAt       time.Time        `json:"created_at"`
	Recommendations []Recommendation `json:"recommendations"`
	Metadata        RunMetadata      `json:"metadata"`
}
