package selection

import (
	"sort"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// Percentiles maps each candidate's raw score to a percentile rank in (0,100]
// within its own list: p = 100 * count(raw <= x) / N.
//
// Equal raw scores share one percentile, the top score gets 100 and the
// result is aligned with the input order, so input order among ties is kept.
// ⭐ SSOT: 알고리즘 간 점수 스케일 정규화는 여기서만
func Percentiles(cands []contracts.Candidate) []float64 {
	n := len(cands)
	if n == 0 {
		return nil
	}

	sorted := make([]float64, n)
	for i, c := range cands {
		sorted[i] = c.RawScore
	}
	sort.Float64s(sorted)

	out := make([]float64, n)
	for i, c := range cands {
		x := c.RawScore
		// x 이하 개수 = x보다 큰 첫 위치
		le := sort.Search(n, func(k int) bool { return sorted[k] > x })
		out[i] = 100 * float64(le) / float64(n)
	}
	return out
}
