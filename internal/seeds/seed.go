package seeds

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// DefaultTimeout bounds one GenerateCandidates call unless timeout_ms is set
const DefaultTimeout = 2 * time.Second

// checkEvery is how many quotes are scored between deadline checks
const checkEvery = 64

// scoreFunc scores one valid quote. ok=false means the quote does not qualify.
type scoreFunc func(q contracts.Quote, p contracts.Parameters) (score float64, indicators map[string]float64, ok bool)

// variant is the shared scan loop behind every seed algorithm.
// It holds no mutable state so one instance serves concurrent runs.
type variant struct {
	id       string
	category contracts.Category
	score    scoreFunc
}

func newVariant(id string, category contracts.Category, fn scoreFunc) *variant {
	return &variant{id: id, category: category, score: fn}
}

// ID returns the catalog key
func (v *variant) ID() string { return v.id }

// Category returns the default category of the candidates
func (v *variant) Category() contracts.Category { return v.category }

// GenerateCandidates scans the universe and returns qualifying symbols
// sorted by raw score descending.
//
// Parameters shared by every variant:
//   - timeout_ms: internal time budget (default 2000)
//   - category:   override the candidate category
//   - max_candidates: cap on returned candidates (0 = unlimited)
func (v *variant) GenerateCandidates(ctx context.Context, universe *contracts.Universe, params contracts.Parameters) ([]contracts.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, params.Millis("timeout_ms", DefaultTimeout))
	defer cancel()

	category := v.category
	if override := contracts.Category(params.String("category", "")); override.Valid() {
		category = override
	}

	if universe.Len() == 0 {
		return nil, nil
	}

	out := make([]contracts.Candidate, 0, 32)
	corrupt := 0

	for i, q := range universe.Quotes {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%s: %w", v.id, err)
			}
		}

		// 손상된 시세는 건너뜀
		if !q.Valid() {
			corrupt++
			continue
		}

		score, indicators, ok := v.score(q, params)
		if !ok || math.IsNaN(score) || math.IsInf(score, 0) {
			continue
		}

		out = append(out, contracts.Candidate{
			Symbol:            q.Symbol,
			RawScore:          score,
			Category:          category,
			SourceAlgorithmID: v.id,
			Indicators:        indicators,
			ObservedAt:        universe.AsOf,
		})
	}

	if corrupt == len(universe.Quotes) {
		return nil, fmt.Errorf("%s: all %d quotes corrupt: %w", v.id, corrupt, contracts.ErrSourceDataInvalid)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RawScore > out[j].RawScore
	})

	if limit := params.Int("max_candidates", 0); limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// Catalog is the variant registry keyed by string id.
// Built once at startup and read-only afterwards.
// ⭐ SSOT: 시드 변형 목록은 여기서만
type Catalog struct {
	variants map[string]contracts.SeedAlgorithm
}

// NewCatalog builds a catalog, rejecting duplicate ids
func NewCatalog(algorithms ...contracts.SeedAlgorithm) (*Catalog, error) {
	c := &Catalog{variants: make(map[string]contracts.SeedAlgorithm, len(algorithms))}
	for _, a := range algorithms {
		if _, dup := c.variants[a.ID()]; dup {
			return nil, fmt.Errorf("duplicate seed variant %q", a.ID())
		}
		c.variants[a.ID()] = a
	}
	return c, nil
}

// DefaultCatalog returns every built-in variant
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		NewMomentum(),
		NewVolumeSurge(),
		NewGap(),
		NewVolatility(),
		NewTechnical(),
		NewBreakout(),
		NewPullback(),
		NewReversal(),
		NewPattern(),
		NewValue(),
	)
	if err != nil {
		panic(err) // built-in ids are unique
	}
	return c
}

// Get resolves a variant by id
func (c *Catalog) Get(id string) (contracts.SeedAlgorithm, bool) {
	a, ok := c.variants[id]
	return a, ok
}

// IDs returns the registered ids sorted
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.variants))
	for id := range c.variants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
