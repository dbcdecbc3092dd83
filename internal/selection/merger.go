package selection

import (
	"math"
	"sort"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// MergeConfig shapes how agreement between algorithms is rewarded
type MergeConfig struct {
	// CategoryBonus is added to the composite per extra distinct category
	CategoryBonus float64 `yaml:"category_bonus" default:"0.25"`
	// Saturation controls how fast the composite approaches 100
	Saturation float64 `yaml:"saturation" default:"2.0"`
}

// DefaultMergeConfig returns the default merge shaping
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{CategoryBonus: 0.25, Saturation: 2.0}
}

// SourceList is one seed algorithm's candidate list within a run
type SourceList struct {
	AlgorithmID string
	Version     string
	Weight      float64
	Candidates  []contracts.Candidate
}

type symbolAgg struct {
	percentiles map[string]float64 // algorithm id → percentile
	algorithms  []string           // algorithm id 순서
	categories  map[contracts.Category]bool
	best        contracts.Candidate
	bestPct     float64
}

// Merge groups candidates by symbol and computes the normalized score:
//
//	composite = Σ weight_a * p_a / 100 + CategoryBonus * (category_count - 1)
//	score     = 100 * (1 - exp(-composite / Saturation))
//
// The score never decreases when a symbol gains a contributing algorithm or
// when a contributing algorithm's weight grows (weights are >= 0).
// Sums run in algorithm-id order so identical inputs give identical floats.
// Output is sorted by symbol; ranking happens in Rank.
// ⭐ SSOT: 병합/중복제거 점수 계산은 여기서만
func Merge(lists []SourceList, cfg MergeConfig) []contracts.Recommendation {
	if cfg.Saturation <= 0 {
		cfg.Saturation = DefaultMergeConfig().Saturation
	}
	if cfg.CategoryBonus < 0 {
		cfg.CategoryBonus = 0
	}

	ordered := make([]SourceList, len(lists))
	copy(ordered, lists)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].AlgorithmID < ordered[j].AlgorithmID
	})

	weights := make(map[string]float64, len(ordered))
	aggs := make(map[string]*symbolAgg)

	for _, list := range ordered {
		weights[list.AlgorithmID] = math.Max(list.Weight, 0)
		pcts := Percentiles(list.Candidates)

		for i, c := range list.Candidates {
			p := pcts[i]
			agg, ok := aggs[c.Symbol]
			if !ok {
				agg = &symbolAgg{
					percentiles: make(map[string]float64),
					categories:  make(map[contracts.Category]bool),
					bestPct:     -1,
				}
				aggs[c.Symbol] = agg
			}

			// 같은 알고리즘이 같은 종목을 두 번 내면 높은 백분위만 유지
			if prev, seen := agg.percentiles[list.AlgorithmID]; seen {
				if p <= prev {
					continue
				}
			} else {
				agg.algorithms = append(agg.algorithms, list.AlgorithmID)
			}
			agg.percentiles[list.AlgorithmID] = p
			agg.categories[c.Category] = true

			if p > agg.bestPct {
				agg.best = c
				agg.bestPct = p
			}
		}
	}

	symbols := make([]string, 0, len(aggs))
	for s := range aggs {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	out := make([]contracts.Recommendation, 0, len(symbols))
	for _, s := range symbols {
		agg := aggs[s]

		composite := 0.0
		for _, id := range agg.algorithms {
			composite += weights[id] * agg.percentiles[id] / 100
		}
		composite += cfg.CategoryBonus * float64(len(agg.categories)-1)

		out = append(out, contracts.Recommendation{
			Symbol:                 s,
			NormalizedScore:        100 * (1 - math.Exp(-composite/cfg.Saturation)),
			Appearances:            len(agg.algorithms),
			CategoryCount:          len(agg.categories),
			Categories:             categoryFlags(agg.categories),
			ContributingAlgorithms: agg.algorithms,
			Percentiles:            agg.percentiles,
			BestRawCandidate:       agg.best,
		})
	}

	return out
}

// categoryFlags expands the observed set to a flag for every category
func categoryFlags(seen map[contracts.Category]bool) map[contracts.Category]bool {
	flags := make(map[contracts.Category]bool, len(contracts.AllCategories()))
	for _, c := range contracts.AllCategories() {
		flags[c] = seen[c]
	}
	return flags
}
