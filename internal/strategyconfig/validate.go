package strategyconfig

import (
	"fmt"
	"math"

	"github.com/robfig/cron/v3"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning 권장 위반 (경고만)
type Warning struct {
	Code    string
	Message string
}

// scheduler와 같은 초 단위 cron 문법
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks all required constraints
// 실패 시 error 반환 (프로그램 중단)
func Validate(cat *Catalog) error {
	// === Meta ===
	if cat.Meta.CatalogID == "" {
		return ValidationError{"meta.catalog_id", "required"}
	}

	// === Families ===
	seenFamily := make(map[contracts.StrategyFamily]bool)
	for i, f := range cat.Families {
		field := fmt.Sprintf("families[%d]", i)
		if !f.Name.Valid() {
			return ValidationError{field + ".name", fmt.Sprintf("unknown strategy family %q", f.Name)}
		}
		if seenFamily[f.Name] {
			return ValidationError{field + ".name", fmt.Sprintf("duplicate family %q", f.Name)}
		}
		seenFamily[f.Name] = true

		if f.LimitPerQuery < 1 || f.LimitPerQuery > 1000 {
			return ValidationError{field + ".limit_per_query", "must be in [1, 1000]"}
		}
		if f.MinScore != nil && (*f.MinScore < 0 || *f.MinScore > 100) {
			return ValidationError{field + ".min_score", "must be in [0, 100]"}
		}
		if f.TopRecommendations < 0 {
			return ValidationError{field + ".top_recommendations", "must be >= 0"}
		}
		if f.RefreshCron != "" {
			if _, err := cronParser.Parse(f.RefreshCron); err != nil {
				return ValidationError{field + ".refresh_cron", err.Error()}
			}
		}
	}

	// === Merge ===
	if !(cat.Merge.Saturation > 0) || math.IsInf(cat.Merge.Saturation, 0) {
		return ValidationError{"merge.saturation", "must be > 0"}
	}
	if cat.Merge.CategoryBonus < 0 || math.IsNaN(cat.Merge.CategoryBonus) {
		return ValidationError{"merge.category_bonus", "must be >= 0"}
	}

	// === Evaluation ===
	if cat.Evaluation.Window <= 0 {
		return ValidationError{"evaluation.window", "must be > 0"}
	}
	if _, err := cronParser.Parse(cat.Evaluation.Cron); err != nil {
		return ValidationError{"evaluation.cron", err.Error()}
	}

	// === ABTest ===
	if cat.ABTest.DefaultSplit < 0 || cat.ABTest.DefaultSplit > 1 {
		return ValidationError{"ab_test.default_split", "must be in range [0, 1]"}
	}
	if cat.ABTest.MinSamples < 1 {
		return ValidationError{"ab_test.min_samples", "must be >= 1"}
	}

	// === Algorithms ===
	seenKey := make(map[contracts.ConfigKey]bool)
	activeFor := make(map[string]string) // family/id → version
	for i, a := range cat.Algorithms {
		field := fmt.Sprintf("algorithms[%d]", i)
		if err := a.Validate(); err != nil {
			return ValidationError{field, err.Error()}
		}
		if seenKey[a.Key()] {
			return ValidationError{field, fmt.Sprintf("duplicate version %s", a.Key())}
		}
		seenKey[a.Key()] = true

		if a.IsActive {
			k := string(a.StrategyFamily) + "/" + a.AlgorithmID
			if prev, ok := activeFor[k]; ok {
				return ValidationError{field + ".active", fmt.Sprintf("%s already has active version %s", k, prev)}
			}
			activeFor[k] = a.Version
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cat *Catalog, variants []string) []Warning {
	var warnings []Warning

	known := make(map[string]bool, len(variants))
	for _, v := range variants {
		known[v] = true
	}

	activeFamilies := make(map[contracts.StrategyFamily]bool)
	for _, a := range cat.Algorithms {
		if a.IsActive && a.Enabled {
			activeFamilies[a.StrategyFamily] = true
		}
		// 알 수 없는 variant는 실행 시 unknown_variant 실패로 기록됨
		if len(variants) > 0 && !known[a.VariantKey()] {
			warnings = append(warnings, Warning{
				Code:    "UNKNOWN_VARIANT",
				Message: fmt.Sprintf("%s uses variant %q which is not in the seed catalog", a.Key(), a.VariantKey()),
			})
		}
	}

	for _, f := range cat.Families {
		if !activeFamilies[f.Name] {
			warnings = append(warnings, Warning{
				Code:    "NO_ACTIVE_ALGORITHM",
				Message: fmt.Sprintf("family %s has no active enabled algorithm", f.Name),
			})
		}
		if f.MinScore != nil && *f.MinScore >= 90 {
			warnings = append(warnings, Warning{
				Code:    "HIGH_MIN_SCORE",
				Message: fmt.Sprintf("family %s min_score %.1f: 단일 알고리즘 종목은 거의 통과 못함", f.Name, *f.MinScore),
			})
		}
	}

	if cat.ABTest.MinSamples < 10 {
		warnings = append(warnings, Warning{
			Code:    "LOW_AB_SAMPLES",
			Message: "ab_test.min_samples < 10: 승자 판정이 노이즈에 민감",
		})
	}

	return warnings
}
