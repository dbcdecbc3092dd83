package selection

import (
	"sort"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// Ranker runs the single-threaded merge → filter → rank stage of a run
// ⭐ SSOT: 랭킹 로직은 여기서만
type Ranker struct {
	config MergeConfig
	logger *logger.Logger
}

// NewRanker creates a new ranker
func NewRanker(config MergeConfig, log *logger.Logger) *Ranker {
	return &Ranker{
		config: config,
		logger: log,
	}
}

// Result is the outcome of one ranking pass
type Result struct {
	Recommendations []contracts.Recommendation
	UniqueSymbols   int
	FilteredOut     int
}

// Rank merges the lists, drops scores below minScore and keeps the top N
func (r *Ranker) Rank(lists []SourceList, minScore float64, top int) Result {
	merged := Merge(lists, r.config)
	kept, dropped := Filter(merged, minScore)
	ranked := Rank(kept, top)

	fields := map[string]interface{}{
		"sources":   len(lists),
		"unique":    len(merged),
		"filtered":  dropped,
		"returned":  len(ranked),
		"min_score": minScore,
		"top_n":     top,
	}
	if len(ranked) > 0 {
		fields["top_symbol"] = ranked[0].Symbol
		fields["top_score"] = ranked[0].NormalizedScore
	}
	r.logger.WithFields(fields).Debug("Ranking completed")

	return Result{
		Recommendations: ranked,
		UniqueSymbols:   len(merged),
		FilteredOut:     dropped,
	}
}

// Filter drops recommendations with NormalizedScore < minScore.
// The comparison is exact; scores are computed deterministically in Merge.
func Filter(recs []contracts.Recommendation, minScore float64) ([]contracts.Recommendation, int) {
	kept := make([]contracts.Recommendation, 0, len(recs))
	for _, rec := range recs {
		if rec.NormalizedScore < minScore {
			continue
		}
		kept = append(kept, rec)
	}
	return kept, len(recs) - len(kept)
}

// Rank orders by score desc, appearances desc, symbol asc, truncates to
// top (0 = unlimited) and assigns 1-based ranks
func Rank(recs []contracts.Recommendation, top int) []contracts.Recommendation {
	ranked := make([]contracts.Recommendation, len(recs))
	copy(ranked, recs)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.NormalizedScore != b.NormalizedScore {
			return a.NormalizedScore > b.NormalizedScore
		}
		if a.Appearances != b.Appearances {
			return a.Appearances > b.Appearances
		}
		return a.Symbol < b.Symbol
	})

	if top > 0 && len(ranked) > top {
		ranked = ranked[:top]
	}

	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return ranked
}

// CategoryBreakdown counts returned recommendations per category flag
func CategoryBreakdown(recs []contracts.Recommendation) map[contracts.Category]int {
	out := make(map[contracts.Category]int)
	for _, rec := range recs {
		for c, on := range rec.Categories {
			if on {
				out[c]++
			}
		}
	}
	return out
}
