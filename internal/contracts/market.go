package contracts

import (
	"fmt"
	"math"
	"time"
)

// Well-known indicator keys supplied by the market data provider.
// 지표 계산은 외부 제공자의 책임, 코어는 값만 소비
const (
	IndRSI       = "rsi"
	IndMACD      = "macd"
	IndMACDHist  = "macd_hist"
	IndSMA20     = "sma20"
	IndSMA50     = "sma50"
	IndSMA200    = "sma200"
	IndHigh52W   = "high_52w"
	IndLow52W    = "low_52w"
	IndATR       = "atr"
	IndPE        = "pe"
	IndPB        = "pb"
	IndROE       = "roe"
	IndPerf1W    = "perf_1w"
	IndPerf1M    = "perf_1m"
	IndPerf3M    = "perf_3m"
	IndRelVolume = "rel_volume"
	IndPattern   = "pattern_score"
)

// Quote is one symbol's raw market fields
type Quote struct {
	Symbol     string             `json:"symbol" yaml:"symbol"`
	Name       string             `json:"name,omitempty" yaml:"name,omitempty"`
	Sector     string             `json:"sector,omitempty" yaml:"sector,omitempty"`
	Price      float64            `json:"price" yaml:"price"`
	PrevClose  float64            `json:"prev_close" yaml:"prev_close"`
	Open       float64            `json:"open" yaml:"open"`
	High       float64            `json:"high" yaml:"high"`
	Low        float64            `json:"low" yaml:"low"`
	Volume     float64            `json:"volume" yaml:"volume"`
	AvgVolume  float64            `json:"avg_volume" yaml:"avg_volume"`
	ChangePct  float64            `json:"change_pct" yaml:"change_pct"`
	Indicators map[string]float64 `json:"indicators,omitempty" yaml:"indicators,omitempty"`
}

// Valid reports whether the quote is usable by a seed.
// 손상된 시세는 시드가 건너뜀
func (q Quote) Valid() bool {
	if q.Symbol == "" {
		return false
	}
	if !finite(q.Price) || q.Price <= 0 {
		return false
	}
	if !finite(q.Volume) || q.Volume < 0 {
		return false
	}
	return finite(q.ChangePct)
}

// Indicator returns a finite indicator value
func (q Quote) Indicator(name string) (float64, bool) {
	v, ok := q.Indicators[name]
	if !ok || !finite(v) {
		return 0, false
	}
	return v, true
}

// GapPct returns the opening gap versus previous close in percent
func (q Quote) GapPct() (float64, bool) {
	if q.PrevClose <= 0 || q.Open <= 0 {
		return 0, false
	}
	return (q.Open - q.PrevClose) / q.PrevClose * 100, true
}

// RelVolume returns volume relative to its average
func (q Quote) RelVolume() (float64, bool) {
	if v, ok := q.Indicator(IndRelVolume); ok {
		return v, true
	}
	if q.AvgVolume <= 0 {
		return 0, false
	}
	return q.Volume / q.AvgVolume, true
}

func (q Quote) clone() Quote {
	out := q
	if q.Indicators != nil {
		out.Indicators = make(map[string]float64, len(q.Indicators))
		for k, v := range q.Indicators {
			out.Indicators[k] = v
		}
	}
	return out
}

// Universe is the snapshot of symbols a run screens
// ⭐ SSOT: 제공자 → 시드 입력 전달
type Universe struct {
	AsOf   time.Time `json:"as_of" yaml:"as_of"`
	Source string    `json:"source" yaml:"source"`
	Quotes []Quote   `json:"quotes" yaml:"quotes"`
	Cached bool      `json:"cached,omitempty" yaml:"-"` // 캐시에서 제공됨
}

// Len returns the number of quotes
func (u *Universe) Len() int {
	if u == nil {
		return 0
	}
	return len(u.Quotes)
}

// Clone returns a deep copy so each seed owns its input
func (u *Universe) Clone() *Universe {
	if u == nil {
		return nil
	}
	out := &Universe{AsOf: u.AsOf, Source: u.Source, Cached: u.Cached, Quotes: make([]Quote, len(u.Quotes))}
	for i, q := range u.Quotes {
		out.Quotes[i] = q.clone()
	}
	return out
}

// Prices returns the last price per symbol
func (u *Universe) Prices() map[string]float64 {
	out := make(map[string]float64, u.Len())
	if u == nil {
		return out
	}
	for _, q := range u.Quotes {
		if q.Valid() {
			out[q.Symbol] = q.Price
		}
	}
	return out
}

// UniverseQuery selects the universe for a run
type UniverseQuery struct {
	Family StrategyFamily `json:"family"`
	Market string         `json:"market,omitempty"`
	Limit  int            `json:"limit,omitempty"`
	// ForceRefresh bypasses provider caches; not part of the cache key
	ForceRefresh bool `json:"-"`
}

// CacheKey is a stable identity for caching the query result
func (q UniverseQuery) CacheKey() string {
	return fmt.Sprintf("%s:%s:%d", q.Family, q.Market, q.Limit)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
