package contracts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStrategyFamily(t *testing.T) {
	tests := []struct {
		input   string
		want    StrategyFamily
		wantErr bool
	}{
		{"swing", FamilySwing, false},
		{" LongTerm ", FamilyLongterm, false},
		{"intraday_sell", FamilyIntradaySell, false},
		{"weekly", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStrategyFamily(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStrategyFamily)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"wrapped duplicate", fmt.Errorf("register: %w", ErrDuplicateVersion), CodeDuplicateVersion},
		{"all failed wraps unavailable", fmt.Errorf("%w: %w", ErrAllSourcesFailed, ErrDataUnavailable), CodeAllSourcesFailed},
		{"context cancel", context.Canceled, CodeCancelled},
		{"unknown", errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestQuote_Valid(t *testing.T) {
	tests := []struct {
		name  string
		quote Quote
		want  bool
	}{
		{"ok", Quote{Symbol: "AAPL", Price: 190, Volume: 1e6}, true},
		{"no symbol", Quote{Price: 10}, false},
		{"zero price", Quote{Symbol: "X", Price: 0}, false},
		{"nan price", Quote{Symbol: "X", Price: math.NaN()}, false},
		{"negative volume", Quote{Symbol: "X", Price: 1, Volume: -1}, false},
		{"inf change", Quote{Symbol: "X", Price: 1, ChangePct: math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.quote.Valid())
		})
	}
}

func TestUniverse_CloneIsDeep(t *testing.T) {
	u := &Universe{
		AsOf:   time.Now(),
		Quotes: []Quote{{Symbol: "AAPL", Price: 100, Indicators: map[string]float64{IndRSI: 55}}},
	}

	c := u.Clone()
	c.Quotes[0].Price = 1
	c.Quotes[0].Indicators[IndRSI] = 99

	assert.Equal(t, 100.0, u.Quotes[0].Price)
	assert.Equal(t, 55.0, u.Quotes[0].Indicators[IndRSI])
	assert.Nil(t, (*Universe)(nil).Clone())
}

func TestQuote_Derived(t *testing.T) {
	q := Quote{Symbol: "X", Price: 10, PrevClose: 10, Open: 10.5, Volume: 300, AvgVolume: 100}

	gap, ok := q.GapPct()
	require.True(t, ok)
	assert.InDelta(t, 5.0, gap, 1e-9)

	rv, ok := q.RelVolume()
	require.True(t, ok)
	assert.Equal(t, 3.0, rv)

	q.Indicators = map[string]float64{IndRelVolume: 7}
	rv, _ = q.RelVolume()
	assert.Equal(t, 7.0, rv)
}

func TestParameters_Getters(t *testing.T) {
	p := Parameters{
		"min_change":  2,
		"threshold":   1.5,
		"lookback":    "20",
		"enabled":     true,
		"timeout_ms":  250,
		"category":    "breakout",
		"bad_numeric": "abc",
	}

	assert.Equal(t, 2.0, p.Float("min_change", 0))
	assert.Equal(t, 1.5, p.Float("threshold", 0))
	assert.Equal(t, 20, p.Int("lookback", 0))
	assert.Equal(t, 7, p.Int("missing", 7))
	assert.Equal(t, 3.0, p.Float("bad_numeric", 3))
	assert.True(t, p.Bool("enabled", false))
	assert.Equal(t, "breakout", p.String("category", ""))
	assert.Equal(t, 250*time.Millisecond, p.Millis("timeout_ms", time.Second))
	assert.Equal(t, time.Second, p.Millis("missing", time.Second))

	var nilParams Parameters
	assert.Equal(t, 4.0, nilParams.Float("x", 4))
}

func TestAlgorithmConfig_Validate(t *testing.T) {
	base := AlgorithmConfig{AlgorithmID: "momentum", Version: "1.0.0", StrategyFamily: FamilySwing, Weight: 1}
	require.NoError(t, base.Validate())

	noVersion := base
	noVersion.Version = ""
	assert.ErrorIs(t, noVersion.Validate(), ErrInvalidArgument)

	badFamily := base
	badFamily.StrategyFamily = "weekly"
	assert.ErrorIs(t, badFamily.Validate(), ErrInvalidStrategyFamily)

	negWeight := base
	negWeight.Weight = -0.1
	assert.ErrorIs(t, negWeight.Validate(), ErrInvalidArgument)

	assert.Equal(t, "momentum", base.VariantKey())
	base.Variant = "volume_surge"
	assert.Equal(t, "volume_surge", base.VariantKey())
}

func TestPendingFilter_Matches(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	rec := PerformanceRecord{
		Symbol: "AAPL", AlgorithmID: "momentum", AlgorithmVersion: "1.0.0",
		RecommendedAt: now.Add(-48 * time.Hour), Outcome: OutcomePending,
	}

	assert.True(t, PendingFilter{}.Matches(rec))
	assert.True(t, PendingFilter{Symbol: "AAPL", RecommendedBefore: now.Add(-24 * time.Hour)}.Matches(rec))
	assert.False(t, PendingFilter{RecommendedBefore: now.Add(-72 * time.Hour)}.Matches(rec))
	assert.False(t, PendingFilter{Version: "2.0.0"}.Matches(rec))

	rec.Outcome = OutcomeHit
	assert.False(t, PendingFilter{}.Matches(rec))
}
