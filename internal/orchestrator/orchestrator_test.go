package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/seedrank/backend/internal/abtest"
	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/internal/marketdata"
	"github.com/wonny/seedrank/backend/internal/registry"
	"github.com/wonny/seedrank/backend/internal/seeds"
	"github.com/wonny/seedrank/backend/internal/selection"
	"github.com/wonny/seedrank/backend/internal/strategyconfig"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// fakeSeed adapts a function to the seed contract
type fakeSeed struct {
	id       string
	category contracts.Category
	fn       func(ctx context.Context, u *contracts.Universe, p contracts.Parameters) ([]contracts.Candidate, error)
}

func (s *fakeSeed) ID() string                   { return s.id }
func (s *fakeSeed) Category() contracts.Category { return s.category }
func (s *fakeSeed) GenerateCandidates(ctx context.Context, u *contracts.Universe, p contracts.Parameters) ([]contracts.Candidate, error) {
	return s.fn(ctx, u, p)
}

// byChange scores every quote by change_pct times the "mult" parameter
func byChange(id string, category contracts.Category) *fakeSeed {
	return &fakeSeed{id: id, category: category, fn: func(ctx context.Context, u *contracts.Universe, p contracts.Parameters) ([]contracts.Candidate, error) {
		mult := p.Float("mult", 1)
		out := make([]contracts.Candidate, 0, u.Len())
		for _, q := range u.Quotes {
			out = append(out, contracts.Candidate{
				Symbol:            q.Symbol,
				RawScore:          q.ChangePct * mult,
				Category:          category,
				SourceAlgorithmID: id,
				ObservedAt:        u.AsOf,
			})
		}
		return out, nil
	}}
}

func failing(id string, err error) *fakeSeed {
	return &fakeSeed{id: id, category: contracts.CategoryMomentum, fn: func(context.Context, *contracts.Universe, contracts.Parameters) ([]contracts.Candidate, error) {
		return nil, err
	}}
}

// blocking waits for release and ignores ctx
func blocking(id string, release <-chan struct{}) *fakeSeed {
	return &fakeSeed{id: id, category: contracts.CategoryMomentum, fn: func(context.Context, *contracts.Universe, contracts.Parameters) ([]contracts.Candidate, error) {
		<-release
		return nil, nil
	}}
}

type batchSink struct {
	mu      sync.Mutex
	batches []contracts.RecommendationBatch
	err     error
}

func (s *batchSink) RecordBatch(ctx context.Context, b contracts.RecommendationBatch) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return len(b.Recommendations), s.err
}

func (s *batchSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

type runListener struct {
	mu   sync.Mutex
	runs []string
}

func (l *runListener) OnRun(b contracts.RecommendationBatch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.runs = append(l.runs, b.RunID)
}

func testUniverse() *contracts.Universe {
	asOf := time.Date(2026, 1, 2, 21, 0, 0, 0, time.UTC)
	return &contracts.Universe{
		AsOf:   asOf,
		Source: "test",
		Quotes: []contracts.Quote{
			{Symbol: "AAPL", Price: 190, Volume: 1e6, ChangePct: 3.0},
			{Symbol: "MSFT", Price: 410, Volume: 1e6, ChangePct: 2.0},
			{Symbol: "GOOG", Price: 170, Volume: 1e6, ChangePct: 1.0},
			{Symbol: "NVDA", Price: 130, Volume: 1e6, ChangePct: 4.0},
			{Symbol: "TSLA", Price: 250, Volume: 1e6, ChangePct: -1.0},
		},
	}
}

type harness struct {
	orch     *Orchestrator
	registry *registry.Registry
	sink     *batchSink
}

func newHarness(t *testing.T, opts Options, algos ...contracts.SeedAlgorithm) *harness {
	t.Helper()
	catalog, err := seeds.NewCatalog(algos...)
	require.NoError(t, err)

	reg := registry.New(registry.NewMemoryStore(), logger.Nop())
	require.NoError(t, reg.Load(context.Background()))

	sink := &batchSink{}
	orch := New(
		reg,
		catalog,
		marketdata.NewStaticProvider(testUniverse()),
		selection.NewRanker(selection.DefaultMergeConfig(), logger.Nop()),
		&strategyconfig.Catalog{},
		opts,
		logger.Nop(),
	).WithTracker(sink)

	return &harness{orch: orch, registry: reg, sink: sink}
}

func (h *harness) register(t *testing.T, id, version string, active bool, params contracts.Parameters) {
	t.Helper()
	require.NoError(t, h.registry.Register(context.Background(), contracts.AlgorithmConfig{
		AlgorithmID:    id,
		Version:        version,
		StrategyFamily: contracts.FamilySwing,
		Parameters:     params,
		Enabled:        true,
		Weight:         1,
		IsActive:       active,
	}))
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.orch.Drain(ctx))
}

func allScores() contracts.RequestParams {
	return contracts.RequestParams{MinScore: contracts.Float64(0)}
}

func failureReasons(m contracts.RunMetadata) map[string]string {
	out := make(map[string]string, len(m.Failures))
	for _, f := range m.Failures {
		out[f.AlgorithmID] = f.Reason
	}
	return out
}

func TestRun_MergesAndStamps(t *testing.T) {
	h := newHarness(t, Options{},
		byChange("momentum", contracts.CategoryMomentum),
		byChange("breakout", contracts.CategoryBreakout),
	)
	h.register(t, "momentum", "v1", true, nil)
	h.register(t, "breakout", "v3", true, nil)

	listener := &runListener{}
	h.orch.AddListener(listener)

	res, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
	require.NoError(t, err)

	require.Len(t, res.Recommendations, 5)
	top := res.Recommendations[0]
	assert.Equal(t, "NVDA", top.Symbol)
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, 2, top.Appearances)
	assert.Equal(t, 2, top.CategoryCount)
	assert.Equal(t, []string{"breakout", "momentum"}, top.ContributingAlgorithms)
	assert.Equal(t, 130.0, top.Price)
	wantVersion := map[string]string{"momentum": "v1", "breakout": "v3"}
	assert.Equal(t, wantVersion[top.BestRawCandidate.SourceAlgorithmID], top.BestRawCandidate.SourceAlgorithmVersion)

	for i := 1; i < len(res.Recommendations); i++ {
		assert.GreaterOrEqual(t, res.Recommendations[i-1].NormalizedScore, res.Recommendations[i].NormalizedScore)
		assert.Equal(t, i+1, res.Recommendations[i].Rank)
	}

	meta := res.Metadata
	assert.NotEmpty(t, meta.RunID)
	assert.Equal(t, contracts.FamilySwing, meta.StrategyFamily)
	assert.Equal(t, 5, meta.UniverseSize)
	assert.Equal(t, map[string]int{"momentum": 5, "breakout": 5}, meta.CandidateCounts)
	assert.Equal(t, 10, meta.TotalCandidates)
	assert.Equal(t, 5, meta.UniqueSymbols)
	assert.Equal(t, 5, meta.Returned)
	assert.Empty(t, meta.Failures)
	assert.False(t, meta.Partial)
	assert.Equal(t, 5, meta.CategoryBreakdown[contracts.CategoryMomentum])
	assert.Equal(t, []contracts.ConfigRef{
		{AlgorithmID: "breakout", Version: "v3", Weight: 1},
		{AlgorithmID: "momentum", Version: "v1", Weight: 1},
	}, meta.ConfigVersions)
	assert.NotEmpty(t, meta.Params.RequestID)

	h.drain(t)
	require.Equal(t, 1, h.sink.count())
	assert.Equal(t, meta.RunID, h.sink.batches[0].RunID)
	assert.Equal(t, []string{meta.RunID}, listener.runs)
}

func TestRun_StampsRegisteredVersion(t *testing.T) {
	h := newHarness(t, Options{}, byChange("momentum", contracts.CategoryMomentum))
	h.register(t, "momentum", "2.1.0", true, nil)

	res, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
	require.NoError(t, err)
	for _, r := range res.Recommendations {
		assert.Equal(t, "momentum", r.BestRawCandidate.SourceAlgorithmID)
		assert.Equal(t, "2.1.0", r.BestRawCandidate.SourceAlgorithmVersion)
	}
}

func TestRun_AppliesFamilyDefaults(t *testing.T) {
	h := newHarness(t, Options{}, byChange("momentum", contracts.CategoryMomentum))
	h.register(t, "momentum", "v1", true, nil)

	res, err := h.orch.Run(context.Background(), contracts.FamilySwing, contracts.RequestParams{})
	require.NoError(t, err)

	p := res.Metadata.Params
	assert.Equal(t, 50, p.LimitPerQuery)
	require.NotNil(t, p.MinScore)
	assert.Equal(t, 25.0, *p.MinScore)
	assert.Equal(t, 20, p.TopRecommendations)

	// 단일 소스: 상위 percentile만 25점 이상
	for _, r := range res.Recommendations {
		assert.GreaterOrEqual(t, r.NormalizedScore, 25.0)
	}
	assert.Equal(t, 5, res.Metadata.UniqueSymbols)
	assert.Equal(t, 5-res.Metadata.Returned, res.Metadata.FilteredOut)
}

func TestRun_LimitPerQueryAndTop(t *testing.T) {
	h := newHarness(t, Options{}, byChange("momentum", contracts.CategoryMomentum))
	h.register(t, "momentum", "v1", true, nil)

	res, err := h.orch.Run(context.Background(), contracts.FamilySwing, contracts.RequestParams{
		LimitPerQuery:      3,
		MinScore:           contracts.Float64(0),
		TopRecommendations: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Metadata.CandidateCounts["momentum"])
	require.Len(t, res.Recommendations, 2)
	assert.Equal(t, "NVDA", res.Recommendations[0].Symbol)
	assert.Equal(t, "AAPL", res.Recommendations[1].Symbol)
}

func TestRun_Isolation(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	malformed := &fakeSeed{id: "malformed", category: contracts.CategoryPattern, fn: func(context.Context, *contracts.Universe, contracts.Parameters) ([]contracts.Candidate, error) {
		return []contracts.Candidate{{Symbol: "", RawScore: 1, Category: contracts.CategoryPattern}}, nil
	}}
	panicky := &fakeSeed{id: "panicky", category: contracts.CategoryReversal, fn: func(context.Context, *contracts.Universe, contracts.Parameters) ([]contracts.Candidate, error) {
		panic("index out of range")
	}}
	empty := &fakeSeed{id: "empty", category: contracts.CategoryValue, fn: func(context.Context, *contracts.Universe, contracts.Parameters) ([]contracts.Candidate, error) {
		return nil, nil
	}}

	h := newHarness(t, Options{SeedTimeout: 50 * time.Millisecond},
		byChange("momentum", contracts.CategoryMomentum),
		failing("broken", errors.New("upstream 502")),
		blocking("slow", release),
		malformed, panicky, empty,
	)
	for _, id := range []string{"momentum", "broken", "slow", "malformed", "panicky", "empty", "ghost"} {
		h.register(t, id, "v1", true, nil)
	}

	res, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"broken":    contracts.FailureError,
		"slow":      contracts.FailureTimeout,
		"malformed": contracts.FailureMalformed,
		"panicky":   contracts.FailurePanic,
		"empty":     contracts.FailureEmpty,
		"ghost":     contracts.FailureUnknownVariant,
	}, failureReasons(res.Metadata))
	assert.Equal(t, map[string]int{"momentum": 5}, res.Metadata.CandidateCounts)
	assert.Len(t, res.Recommendations, 5)
	for _, r := range res.Recommendations {
		assert.Equal(t, []string{"momentum"}, r.ContributingAlgorithms)
	}

	// 실패는 algorithm id 순
	for i := 1; i < len(res.Metadata.Failures); i++ {
		assert.Less(t, res.Metadata.Failures[i-1].AlgorithmID, res.Metadata.Failures[i].AlgorithmID)
	}
}

func TestRun_AllSourcesFailed(t *testing.T) {
	h := newHarness(t, Options{},
		failing("a", errors.New("boom")),
		failing("b", fmt.Errorf("wrapped: %w", contracts.ErrSourceDataInvalid)),
	)
	h.register(t, "a", "v1", true, nil)
	h.register(t, "b", "v1", true, nil)

	res, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
	require.ErrorIs(t, err, contracts.ErrAllSourcesFailed)
	assert.Equal(t, contracts.CodeAllSourcesFailed, contracts.ErrorCode(err))
	require.NotNil(t, res)
	assert.Len(t, res.Metadata.Failures, 2)
	assert.Empty(t, res.Recommendations)

	h.drain(t)
	assert.Zero(t, h.sink.count())
}

type downProvider struct{}

func (downProvider) FetchUniverse(context.Context, contracts.UniverseQuery) (*contracts.Universe, error) {
	return nil, fmt.Errorf("%w: screener 503", contracts.ErrDataUnavailable)
}

func (downProvider) FetchQuotes(context.Context, []string) (map[string]contracts.Quote, error) {
	return nil, contracts.ErrDataUnavailable
}

func TestRun_UniverseUnavailable(t *testing.T) {
	h := newHarness(t, Options{}, byChange("momentum", contracts.CategoryMomentum))
	h.register(t, "momentum", "v1", true, nil)
	h.orch.market = downProvider{}

	_, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
	assert.ErrorIs(t, err, contracts.ErrAllSourcesFailed)
	assert.ErrorIs(t, err, contracts.ErrDataUnavailable)
}

func TestRun_InvalidFamilyAndMissingConfig(t *testing.T) {
	h := newHarness(t, Options{}, byChange("momentum", contracts.CategoryMomentum))
	h.register(t, "momentum", "v1", true, nil)

	_, err := h.orch.Run(context.Background(), "weekly", allScores())
	assert.ErrorIs(t, err, contracts.ErrInvalidStrategyFamily)

	_, err = h.orch.Run(context.Background(), contracts.FamilyLongterm, allScores())
	assert.ErrorIs(t, err, contracts.ErrConfigurationMissing)

	// 비활성화된 설정은 실행 대상 아님
	require.NoError(t, h.registry.Register(context.Background(), contracts.AlgorithmConfig{
		AlgorithmID: "momentum", Version: "st-1", StrategyFamily: contracts.FamilyShortterm,
		Enabled: false, Weight: 1, IsActive: true,
	}))
	_, err = h.orch.Run(context.Background(), contracts.FamilyShortterm, allScores())
	assert.ErrorIs(t, err, contracts.ErrConfigurationMissing)
}

func TestRun_Cancelled(t *testing.T) {
	h := newHarness(t, Options{}, byChange("momentum", contracts.CategoryMomentum))
	h.register(t, "momentum", "v1", true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.orch.Run(ctx, contracts.FamilySwing, allScores())
	assert.ErrorIs(t, err, contracts.ErrCancelled)
}

func TestRun_CancelledMidRun(t *testing.T) {
	started := make(chan struct{})
	waiter := &fakeSeed{id: "waiter", category: contracts.CategoryMomentum, fn: func(ctx context.Context, u *contracts.Universe, p contracts.Parameters) ([]contracts.Candidate, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, Options{SeedTimeout: 5 * time.Second, RunTimeout: 10 * time.Second}, waiter)
	h.register(t, "waiter", "v1", true, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := h.orch.Run(ctx, contracts.FamilySwing, allScores())
	assert.ErrorIs(t, err, contracts.ErrCancelled)

	h.drain(t)
	assert.Zero(t, h.sink.count())
}

func TestRun_RunTimeoutReturnsPartial(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	h := newHarness(t, Options{SeedTimeout: 5 * time.Second, RunTimeout: 100 * time.Millisecond},
		byChange("momentum", contracts.CategoryMomentum),
		blocking("slow", release),
	)
	h.register(t, "momentum", "v1", true, nil)
	h.register(t, "slow", "v1", true, nil)

	res, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
	require.NoError(t, err)
	assert.True(t, res.Metadata.Partial)
	assert.Equal(t, map[string]string{"slow": contracts.FailureRunTimeout}, failureReasons(res.Metadata))
	assert.Len(t, res.Recommendations, 5)
}

func TestRun_Deterministic(t *testing.T) {
	h := newHarness(t, Options{},
		byChange("momentum", contracts.CategoryMomentum),
		byChange("breakout", contracts.CategoryBreakout),
		byChange("pattern", contracts.CategoryPattern),
	)
	h.register(t, "momentum", "v1", true, contracts.Parameters{"mult": 1.0})
	h.register(t, "breakout", "v1", true, contracts.Parameters{"mult": -1.0})
	h.register(t, "pattern", "v1", true, contracts.Parameters{"mult": 0.5})

	first, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
		require.NoError(t, err)
		assert.Equal(t, first.Recommendations, again.Recommendations)
	}
}

func TestRun_CircuitBreakerOpens(t *testing.T) {
	h := newHarness(t, Options{BreakerFailures: 2, BreakerCooldown: time.Hour},
		byChange("momentum", contracts.CategoryMomentum),
		failing("flaky", errors.New("boom")),
	)
	h.register(t, "momentum", "v1", true, nil)
	h.register(t, "flaky", "v1", true, nil)

	for i := 0; i < 2; i++ {
		res, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
		require.NoError(t, err)
		assert.Equal(t, contracts.FailureError, failureReasons(res.Metadata)["flaky"])
	}

	res, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
	require.NoError(t, err)
	assert.Equal(t, contracts.FailureCircuitOpen, failureReasons(res.Metadata)["flaky"])
	assert.Equal(t, "open", h.orch.BreakerStates()["flaky@v1"])
	assert.Equal(t, "closed", h.orch.BreakerStates()["momentum@v1"])
}

func TestRun_TrackerFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t, Options{}, byChange("momentum", contracts.CategoryMomentum))
	h.register(t, "momentum", "v1", true, nil)
	h.sink.err = errors.New("db down")

	res, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Recommendations)
	h.drain(t)
	assert.Equal(t, 1, h.sink.count())
}

func TestRun_ABArms(t *testing.T) {
	tests := []struct {
		name        string
		split       float64
		wantArm     contracts.ABArm
		wantVersion string
	}{
		{"all challenger", 1.0, contracts.ArmChallenger, "v2"},
		{"all control", 0.0, contracts.ArmControl, "v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, Options{},
				byChange("momentum", contracts.CategoryMomentum),
				byChange("breakout", contracts.CategoryBreakout),
			)
			h.register(t, "momentum", "v1", true, contracts.Parameters{"mult": 1.0})
			h.register(t, "momentum", "v2", false, contracts.Parameters{"mult": -1.0})
			h.register(t, "breakout", "v1", true, nil)

			ab := abtest.New(abtest.NewMemoryStore(), h.registry, abtest.DefaultOptions(), nil, logger.Nop())
			test, err := ab.StartTest(ctx, abtest.StartRequest{
				StrategyFamily:    contracts.FamilySwing,
				AlgorithmID:       "momentum",
				ControlVersion:    "v1",
				ChallengerVersion: "v2",
				TrafficSplit:      contracts.Float64(tt.split),
			})
			require.NoError(t, err)
			h.orch.WithABRouter(ab)

			res, err := h.orch.Run(ctx, contracts.FamilySwing, contracts.RequestParams{
				MinScore:  contracts.Float64(0),
				RequestID: "user-42",
			})
			require.NoError(t, err)

			meta := res.Metadata
			assert.Equal(t, test.TestID, meta.ABTestID)
			assert.Equal(t, tt.wantArm, meta.ABArm)
			assert.Equal(t, "momentum", meta.ABAlgorithmID)
			assert.Contains(t, meta.ConfigVersions, contracts.ConfigRef{AlgorithmID: "momentum", Version: tt.wantVersion, Weight: 1})
			assert.Len(t, meta.ConfigVersions, 2)

			for _, r := range res.Recommendations {
				if r.BestRawCandidate.SourceAlgorithmID == "momentum" {
					assert.Equal(t, tt.wantVersion, r.BestRawCandidate.SourceAlgorithmVersion)
				}
			}

			// 활성 버전은 A/B 배정과 무관하게 유지
			active, err := h.registry.GetActive(contracts.FamilySwing)
			require.NoError(t, err)
			assert.Equal(t, "v1", active[1].Version)
		})
	}
}

func TestRun_NoABTestForFamily(t *testing.T) {
	h := newHarness(t, Options{}, byChange("momentum", contracts.CategoryMomentum))
	h.register(t, "momentum", "v1", true, nil)
	h.orch.WithABRouter(abtest.New(abtest.NewMemoryStore(), h.registry, abtest.DefaultOptions(), nil, logger.Nop()))

	res, err := h.orch.Run(context.Background(), contracts.FamilySwing, allScores())
	require.NoError(t, err)
	assert.Empty(t, res.Metadata.ABTestID)
	assert.Empty(t, res.Metadata.ABArm)
}

func TestDrain_RespectsContext(t *testing.T) {
	h := newHarness(t, Options{})
	h.orch.pending.Add(1)
	defer h.orch.pending.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.orch.Drain(ctx), context.DeadlineExceeded)
}
