package seeds

import (
	"math"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// NewTechnical scores a healthy trend confirmed by RSI and MACD.
//
// Parameters: rsi_min (50), rsi_max (70).
// ⭐ SSOT: 기술적 지표 조합 시드
func NewTechnical() contracts.SeedAlgorithm {
	return newVariant("technical", contracts.CategoryPattern, scoreTechnical)
}

func scoreTechnical(q contracts.Quote, p contracts.Parameters) (float64, map[string]float64, bool) {
	rsi, ok := q.Indicator(contracts.IndRSI)
	if !ok {
		return 0, nil, false
	}
	if rsi < p.Float("rsi_min", 50) || rsi > p.Float("rsi_max", 70) {
		return 0, nil, false
	}

	score := 0.0
	// 정배열: 가격 > 20일선 > 50일선
	sma20, ok20 := q.Indicator(contracts.IndSMA20)
	sma50, ok50 := q.Indicator(contracts.IndSMA50)
	if ok20 && q.Price > sma20 {
		score += 1
		if ok50 && sma20 > sma50 {
			score += 1
		}
	}
	if hist, ok := q.Indicator(contracts.IndMACDHist); ok && hist > 0 {
		score += 1 + math.Min(hist, 1)
	}
	if score == 0 {
		return 0, nil, false
	}

	// RSI가 밴드 중앙에 가까울수록 가산
	mid := (p.Float("rsi_min", 50) + p.Float("rsi_max", 70)) / 2
	score += 1 - math.Abs(rsi-mid)/50

	return score, map[string]float64{contracts.IndRSI: rsi}, true
}

// NewBreakout scores names pressing against their 52-week high on volume.
//
// Parameters: within_pct (3.0), min_rel_volume (1.5).
func NewBreakout() contracts.SeedAlgorithm {
	return newVariant("breakout", contracts.CategoryBreakout, scoreBreakout)
}

func scoreBreakout(q contracts.Quote, p contracts.Parameters) (float64, map[string]float64, bool) {
	high, ok := q.Indicator(contracts.IndHigh52W)
	if !ok || high <= 0 {
		return 0, nil, false
	}

	distance := (high - q.Price) / high * 100
	if distance > p.Float("within_pct", 3.0) {
		return 0, nil, false
	}

	rel, ok := q.RelVolume()
	if !ok || rel < p.Float("min_rel_volume", 1.5) {
		return 0, nil, false
	}

	// 신고가 돌파(distance < 0)는 가산
	score := 100 - distance + 5*math.Min(rel, 6)
	return score, map[string]float64{
		"distance_to_high_pct": distance,
		contracts.IndRelVolume: rel,
	}, true
}

// NewPullback scores uptrending names retracing toward the 20-day average.
//
// Parameters: min_pullback (1.0), max_pullback (8.0), max_rsi (55).
func NewPullback() contracts.SeedAlgorithm {
	return newVariant("pullback", contracts.CategoryReversal, scorePullback)
}

func scorePullback(q contracts.Quote, p contracts.Parameters) (float64, map[string]float64, bool) {
	sma20, ok20 := q.Indicator(contracts.IndSMA20)
	sma50, ok50 := q.Indicator(contracts.IndSMA50)
	if !ok20 || !ok50 || sma20 <= 0 || sma50 <= 0 {
		return 0, nil, false
	}
	// 상승 추세 안에서의 눌림만
	if sma20 <= sma50 {
		return 0, nil, false
	}

	pullback := (sma20 - q.Price) / sma20 * 100
	maxPullback := p.Float("max_pullback", 8.0)
	if pullback < p.Float("min_pullback", 1.0) || pullback > maxPullback {
		return 0, nil, false
	}
	if rsi, ok := q.Indicator(contracts.IndRSI); ok && rsi > p.Float("max_rsi", 55) {
		return 0, nil, false
	}

	trend := (sma20/sma50 - 1) * 100
	score := trend + (maxPullback - pullback)
	return score, map[string]float64{
		"pullback_pct": pullback,
		"trend_pct":    trend,
	}, true
}

// NewReversal scores oversold names that start to bounce.
//
// Parameters: oversold (30), min_change (0).
func NewReversal() contracts.SeedAlgorithm {
	return newVariant("reversal", contracts.CategoryReversal, scoreReversal)
}

func scoreReversal(q contracts.Quote, p contracts.Parameters) (float64, map[string]float64, bool) {
	rsi, ok := q.Indicator(contracts.IndRSI)
	oversold := p.Float("oversold", 30)
	if !ok || rsi > oversold {
		return 0, nil, false
	}
	if q.ChangePct <= p.Float("min_change", 0) {
		return 0, nil, false
	}

	score := (oversold - rsi) + q.ChangePct
	if low, ok := q.Indicator(contracts.IndLow52W); ok && low > 0 {
		// 52주 저가 근처 반등 가산
		if (q.Price-low)/low*100 < 5 {
			score += 5
		}
	}
	return score, map[string]float64{
		contracts.IndRSI: rsi,
		"change_pct":     q.ChangePct,
	}, true
}

// NewPattern consumes the provider's chart pattern score.
//
// Parameters: min_pattern (0.5).
func NewPattern() contracts.SeedAlgorithm {
	return newVariant("pattern", contracts.CategoryPattern, scorePattern)
}

func scorePattern(q contracts.Quote, p contracts.Parameters) (float64, map[string]float64, bool) {
	ps, ok := q.Indicator(contracts.IndPattern)
	if !ok || ps < p.Float("min_pattern", 0.5) {
		return 0, nil, false
	}
	score := ps * 100
	if rel, ok := q.RelVolume(); ok {
		score += math.Min(rel, 5)
	}
	return score, map[string]float64{contracts.IndPattern: ps}, true
}

// NewValue scores cheap, profitable companies.
//
// Parameters: max_pe (15), max_pb (2), min_roe (10).
func NewValue() contracts.SeedAlgorithm {
	return newVariant("value", contracts.CategoryValue, scoreValue)
}

func scoreValue(q contracts.Quote, p contracts.Parameters) (float64, map[string]float64, bool) {
	pe, okPE := q.Indicator(contracts.IndPE)
	pb, okPB := q.Indicator(contracts.IndPB)
	roe, okROE := q.Indicator(contracts.IndROE)
	if !okPE || !okPB || !okROE {
		return 0, nil, false
	}
	if pe <= 0 || pe > p.Float("max_pe", 15) {
		return 0, nil, false
	}
	if pb <= 0 || pb > p.Float("max_pb", 2) {
		return 0, nil, false
	}
	if roe < p.Float("min_roe", 10) {
		return 0, nil, false
	}

	score := roe/pe + 1/pb
	return score, map[string]float64{
		contracts.IndPE:  pe,
		contracts.IndPB:  pb,
		contracts.IndROE: roe,
	}, true
}
