package contracts

import (
	"fmt"
	"strings"
)

// StrategyFamily 트레이딩 호라이즌 구분 (SSOT)
// 모든 로그, DB row, HTTP 경로에서 이 상수를 사용해야 함
type StrategyFamily string

const (
	// FamilyLongterm 장기 보유 (수주~수개월)
	FamilyLongterm StrategyFamily = "longterm"

	// FamilySwing 스윙 (수일~수주)
	FamilySwing StrategyFamily = "swing"

	// FamilyShortterm 단기 (1~3일)
	FamilyShortterm StrategyFamily = "shortterm"

	// FamilyIntradayBuy 당일 매수 후보
	FamilyIntradayBuy StrategyFamily = "intraday_buy"

	// FamilyIntradaySell 당일 매도 후보
	FamilyIntradaySell StrategyFamily = "intraday_sell"

	// FamilyCustom 사용자 정의
	FamilyCustom StrategyFamily = "custom"
)

// AllFamilies returns every known strategy family in declaration order
func AllFamilies() []StrategyFamily {
	return []StrategyFamily{
		FamilyLongterm,
		FamilySwing,
		FamilyShortterm,
		FamilyIntradayBuy,
		FamilyIntradaySell,
		FamilyCustom,
	}
}

// Valid reports whether f is a known family
func (f StrategyFamily) Valid() bool {
	for _, known := range AllFamilies() {
		if f == known {
			return true
		}
	}
	return false
}

// String returns the family name
func (f StrategyFamily) String() string {
	return string(f)
}

// ParseStrategyFamily normalizes and validates a family name
func ParseStrategyFamily(s string) (StrategyFamily, error) {
	f := StrategyFamily(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategyFamily, s)
	}
	return f, nil
}

// Category 시드 알고리즘 분류
type Category string

const (
	CategoryMomentum       Category = "momentum"
	CategoryBreakout       Category = "breakout"
	CategoryPattern        Category = "pattern"
	CategoryReversal       Category = "reversal"
	CategorySectorRotation Category = "sector_rotation"
	CategoryFundamental    Category = "fundamental"
	CategoryValue          Category = "value"
	CategoryQuality        Category = "quality"
)

// AllCategories returns every category in declaration order
func AllCategories() []Category {
	return []Category{
		CategoryMomentum,
		CategoryBreakout,
		CategoryPattern,
		CategoryReversal,
		CategorySectorRotation,
		CategoryFundamental,
		CategoryValue,
		CategoryQuality,
	}
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}
