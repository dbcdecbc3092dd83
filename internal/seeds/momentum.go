package seeds

import (
	"math"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// NewMomentum scores price momentum over several horizons.
//
// Parameters: min_change (0), direction ("up"|"down"), require_trend (true),
// w_day (0.4), w_1m (0.4), w_3m (0.2).
// ⭐ SSOT: 모멘텀 시드
func NewMomentum() contracts.SeedAlgorithm {
	return newVariant("momentum", contracts.CategoryMomentum, scoreMomentum)
}

func scoreMomentum(q contracts.Quote, p contracts.Parameters) (float64, map[string]float64, bool) {
	sign := 1.0
	if p.String("direction", "up") == "down" {
		sign = -1.0
	}

	change := sign * q.ChangePct
	if change < p.Float("min_change", 0) {
		return 0, nil, false
	}

	// 추세 필터: 50일선 위(매도는 아래)
	if p.Bool("require_trend", true) {
		if sma50, ok := q.Indicator(contracts.IndSMA50); ok && sign*(q.Price-sma50) < 0 {
			return 0, nil, false
		}
	}

	perf1M, _ := q.Indicator(contracts.IndPerf1M)
	perf3M, _ := q.Indicator(contracts.IndPerf3M)

	score := p.Float("w_day", 0.4)*change +
		p.Float("w_1m", 0.4)*sign*perf1M +
		p.Float("w_3m", 0.2)*sign*perf3M

	return score, map[string]float64{
		"change_pct":        q.ChangePct,
		contracts.IndPerf1M: perf1M,
		contracts.IndPerf3M: perf3M,
	}, true
}

// NewVolumeSurge scores unusual volume accompanied by a positive move.
//
// Parameters: min_rel_volume (2.0), min_change (0).
func NewVolumeSurge() contracts.SeedAlgorithm {
	return newVariant("volume_surge", contracts.CategoryMomentum, scoreVolumeSurge)
}

func scoreVolumeSurge(q contracts.Quote, p contracts.Parameters) (float64, map[string]float64, bool) {
	rel, ok := q.RelVolume()
	if !ok || rel < p.Float("min_rel_volume", 2.0) {
		return 0, nil, false
	}
	if q.ChangePct < p.Float("min_change", 0) {
		return 0, nil, false
	}

	score := rel * (1 + math.Max(q.ChangePct, 0)/100)
	return score, map[string]float64{
		contracts.IndRelVolume: rel,
		"change_pct":           q.ChangePct,
	}, true
}

// NewGap scores opening gaps that hold into the session.
//
// Parameters: min_gap (2.0 percent), direction ("up"|"down"), require_hold (true).
func NewGap() contracts.SeedAlgorithm {
	return newVariant("gap", contracts.CategoryBreakout, scoreGap)
}

func scoreGap(q contracts.Quote, p contracts.Parameters) (float64, map[string]float64, bool) {
	gap, ok := q.GapPct()
	if !ok {
		return 0, nil, false
	}

	sign := 1.0
	if p.String("direction", "up") == "down" {
		sign = -1.0
	}
	if sign*gap < p.Float("min_gap", 2.0) {
		return 0, nil, false
	}

	// 갭 유지: 상승 갭이면 현재가 >= 시가
	held := sign*(q.Price-q.Open) >= 0
	if p.Bool("require_hold", true) && !held {
		return 0, nil, false
	}

	score := sign * gap
	if held {
		score *= 1.25
	}
	if rel, ok := q.RelVolume(); ok {
		score *= 1 + math.Min(rel, 5)/10
	}

	return score, map[string]float64{"gap_pct": gap}, true
}

// NewVolatility scores liquid names inside an ATR band.
//
// Parameters: min_atr_pct (2.0), max_atr_pct (15.0), min_volume (100000).
func NewVolatility() contracts.SeedAlgorithm {
	return newVariant("volatility", contracts.CategoryBreakout, scoreVolatility)
}

func scoreVolatility(q contracts.Quote, p contracts.Parameters) (float64, map[string]float64, bool) {
	atr, ok := q.Indicator(contracts.IndATR)
	if !ok || atr <= 0 {
		return 0, nil, false
	}
	if q.Volume < p.Float("min_volume", 100000) {
		return 0, nil, false
	}

	atrPct := atr / q.Price * 100
	if atrPct < p.Float("min_atr_pct", 2.0) || atrPct > p.Float("max_atr_pct", 15.0) {
		return 0, nil, false
	}

	score := atrPct
	if rel, ok := q.RelVolume(); ok {
		score *= math.Max(rel, 0.5)
	}
	return score, map[string]float64{"atr_pct": atrPct}, true
}
