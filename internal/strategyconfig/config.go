package strategyconfig

import (
	"time"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/internal/selection"
)

// Catalog는 추천 엔진의 전략 카탈로그 전체 설정
// 패밀리별 기본값, 병합 형태, 평가/AB 기준, 알고리즘 버전 목록
type Catalog struct {
	Meta       Meta                        `yaml:"meta" json:"meta"`
	Families   []Family                    `yaml:"families" json:"families"`
	Merge      selection.MergeConfig       `yaml:"merge" json:"merge"`
	Evaluation Evaluation                  `yaml:"evaluation" json:"evaluation"`
	ABTest     ABTest                      `yaml:"ab_test" json:"ab_test"`
	Algorithms []contracts.AlgorithmConfig `yaml:"algorithms" json:"algorithms"`
}

// Meta 메타 정보
type Meta struct {
	CatalogID string `yaml:"catalog_id" json:"catalog_id"`
	Version   string `yaml:"version" json:"version"`
	Market    string `yaml:"market,omitempty" json:"market,omitempty"`
}

// Family 패밀리별 요청 기본값
type Family struct {
	Name               contracts.StrategyFamily `yaml:"name" json:"name"`
	LimitPerQuery      int                      `yaml:"limit_per_query" json:"limit_per_query" default:"50"`
	MinScore           *float64                 `yaml:"min_score" json:"min_score" default:"25"`
	TopRecommendations int                      `yaml:"top_recommendations" json:"top_recommendations" default:"20"`
	// RefreshCron 스케줄러의 추천 갱신 주기 (비어 있으면 갱신 안 함)
	RefreshCron string `yaml:"refresh_cron,omitempty" json:"refresh_cron,omitempty"`
}

// Evaluation 성과 판정 기준
type Evaluation struct {
	Window       time.Duration `yaml:"window" json:"window" default:"120h"`
	HitThreshold float64       `yaml:"hit_threshold_pct" json:"hit_threshold_pct"`
	// Cron 평가 잡 주기
	Cron string `yaml:"cron" json:"cron" default:"0 */30 * * * *"`
}

// ABTest A/B 테스트 기본값
type ABTest struct {
	DefaultSplit float64 `yaml:"default_split" json:"default_split" default:"0.5"`
	MinSamples   int     `yaml:"min_samples" json:"min_samples" default:"30"`
}

// DefaultFamily returns the built-in defaults used for families the
// catalog does not list
func DefaultFamily(name contracts.StrategyFamily) Family {
	return Family{
		Name:               name,
		LimitPerQuery:      50,
		MinScore:           contracts.Float64(25),
		TopRecommendations: 20,
	}
}

// Family returns the defaults for name
func (c *Catalog) Family(name contracts.StrategyFamily) Family {
	for _, f := range c.Families {
		if f.Name == name {
			return f
		}
	}
	return DefaultFamily(name)
}

// Apply fills the zero values of p from the family defaults
func (f Family) Apply(p contracts.RequestParams) contracts.RequestParams {
	if p.LimitPerQuery <= 0 {
		p.LimitPerQuery = f.LimitPerQuery
	}
	if p.MinScore == nil {
		if f.MinScore != nil {
			p.MinScore = contracts.Float64(*f.MinScore)
		} else {
			p.MinScore = contracts.Float64(25)
		}
	}
	if p.TopRecommendations <= 0 {
		p.TopRecommendations = f.TopRecommendations
	}
	return p
}

// AlgorithmsFor returns the catalog's algorithm versions of one family
func (c *Catalog) AlgorithmsFor(family contracts.StrategyFamily) []contracts.AlgorithmConfig {
	var out []contracts.AlgorithmConfig
	for _, a := range c.Algorithms {
		if a.StrategyFamily == family {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Snapshot 로드된 카탈로그의 감사 기록
type Snapshot struct {
	Hash      string    `json:"hash"`
	YAML      string    `json:"-"`
	CatalogID string    `json:"catalog_id"`
	Version   string    `json:"version"`
	Path      string    `json:"path"`
	LoadedAt  time.Time `json:"loaded_at"`
}
