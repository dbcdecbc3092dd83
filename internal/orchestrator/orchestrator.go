package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/seedrank/backend/internal/abtest"
	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/internal/seeds"
	"github.com/wonny/seedrank/backend/internal/selection"
	"github.com/wonny/seedrank/backend/internal/strategyconfig"
	"github.com/wonny/seedrank/backend/pkg/config"
	"github.com/wonny/seedrank/backend/pkg/logger"
	"github.com/wonny/seedrank/backend/pkg/metrics"
)

// Options bounds one orchestration run
type Options struct {
	SeedTimeout      time.Duration
	RunTimeout       time.Duration
	MaxParallelSeeds int
	TrackerTimeout   time.Duration
	BreakerFailures  int
	BreakerCooldown  time.Duration
	// Market and UniverseLimit shape the universe query
	Market        string
	UniverseLimit int
}

// DefaultOptions returns the runtime limits used when none are configured
func DefaultOptions() Options {
	return Options{
		SeedTimeout:      5 * time.Second,
		RunTimeout:       20 * time.Second,
		MaxParallelSeeds: 8,
		TrackerTimeout:   10 * time.Second,
		BreakerFailures:  5,
		BreakerCooldown:  time.Minute,
	}
}

// OptionsFromConfig converts the process config
func OptionsFromConfig(c config.OrchestratorConfig) Options {
	return Options{
		SeedTimeout:      c.SeedTimeout,
		RunTimeout:       c.RunTimeout,
		MaxParallelSeeds: c.MaxParallelSeeds,
		TrackerTimeout:   c.TrackerTimeout,
		BreakerFailures:  c.BreakerFailures,
		BreakerCooldown:  c.BreakerCooldown,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SeedTimeout <= 0 {
		o.SeedTimeout = d.SeedTimeout
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = d.RunTimeout
	}
	if o.MaxParallelSeeds < 1 {
		o.MaxParallelSeeds = d.MaxParallelSeeds
	}
	if o.TrackerTimeout <= 0 {
		o.TrackerTimeout = d.TrackerTimeout
	}
	if o.BreakerFailures < 1 {
		o.BreakerFailures = d.BreakerFailures
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = d.BreakerCooldown
	}
	return o
}

// ConfigSource resolves algorithm configs (the registry)
type ConfigSource interface {
	GetActive(family contracts.StrategyFamily) ([]contracts.AlgorithmConfig, error)
	Get(algorithmID, version string) (contracts.AlgorithmConfig, error)
}

// ABRouter assigns runs to A/B arms
type ABRouter interface {
	Assign(family contracts.StrategyFamily, identity string) (abtest.Assignment, bool)
}

// BatchRecorder receives finished batches (the performance tracker)
type BatchRecorder interface {
	RecordBatch(ctx context.Context, batch contracts.RecommendationBatch) (int, error)
}

// FamilyDefaults supplies per-family request defaults (the strategy catalog)
type FamilyDefaults interface {
	Family(name contracts.StrategyFamily) strategyconfig.Family
}

// RunResult is the outcome of one orchestration run
type RunResult struct {
	Recommendations []contracts.Recommendation `json:"recommendations"`
	Metadata        contracts.RunMetadata      `json:"metadata"`
}

// Batch returns the append-only snapshot of the run
func (r *RunResult) Batch() contracts.RecommendationBatch {
	return contracts.RecommendationBatch{
		RunID:           r.Metadata.RunID,
		StrategyFamily:  r.Metadata.StrategyFamily,
		CreatedAt:       r.Metadata.StartedAt,
		Recommendations: r.Recommendations,
		Metadata:        r.Metadata,
	}
}

// Orchestrator fans a run out to the active seed algorithms and merges
// their candidate lists into one ranked recommendation list
// ⭐ SSOT: 추천 실행 조율은 여기서만
type Orchestrator struct {
	configs  ConfigSource
	seeds    *seeds.Catalog
	market   contracts.MarketDataProvider
	ranker   *selection.Ranker
	defaults FamilyDefaults
	opts     Options

	ab        ABRouter
	tracker   BatchRecorder
	listeners []contracts.RunListener
	metrics   *metrics.Recorder

	breakers *breakerSet
	pending  sync.WaitGroup

	logger *logger.Logger
	now    func() time.Time
}

// New creates an orchestrator
func New(
	configs ConfigSource,
	seedCatalog *seeds.Catalog,
	market contracts.MarketDataProvider,
	ranker *selection.Ranker,
	defaults FamilyDefaults,
	opts Options,
	log *logger.Logger,
) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		configs:  configs,
		seeds:    seedCatalog,
		market:   market,
		ranker:   ranker,
		defaults: defaults,
		opts:     opts,
		breakers: newBreakerSet(opts.BreakerFailures, opts.BreakerCooldown, log),
		logger:   log,
		now:      time.Now,
	}
}

// WithABRouter enables A/B routing
func (o *Orchestrator) WithABRouter(ab ABRouter) *Orchestrator {
	o.ab = ab
	return o
}

// WithTracker enables the performance hand-off
func (o *Orchestrator) WithTracker(t BatchRecorder) *Orchestrator {
	o.tracker = t
	return o
}

// WithMetrics sets the metrics recorder
func (o *Orchestrator) WithMetrics(rec *metrics.Recorder) *Orchestrator {
	o.metrics = rec
	return o
}

// AddListener registers a run listener. Not safe to call concurrently with Run.
func (o *Orchestrator) AddListener(l contracts.RunListener) {
	o.listeners = append(o.listeners, l)
}

// Run produces the ranked recommendations of one family.
//
// On ErrAllSourcesFailed the returned result still carries the metadata
// with every isolated failure.
func (o *Orchestrator) Run(ctx context.Context, family contracts.StrategyFamily, params contracts.RequestParams) (*RunResult, error) {
	startTime := o.now()

	if !family.Valid() {
		return nil, fmt.Errorf("%w: %q", contracts.ErrInvalidStrategyFamily, family)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrCancelled, err)
	}

	params = o.defaults.Family(family).Apply(params)
	if params.RequestID == "" {
		params.RequestID = uuid.NewString()
	}

	configs, err := o.configs.GetActive(family)
	if err != nil {
		return nil, err
	}

	meta := contracts.RunMetadata{
		RunID:             uuid.NewString(),
		StrategyFamily:    family,
		StartedAt:         startTime.UTC(),
		CandidateCounts:   make(map[string]int),
		Failures:          make([]contracts.SourceFailure, 0),
		CategoryBreakdown: make(map[contracts.Category]int),
		Params:            params,
	}

	configs = o.applyAB(family, params.RequestID, configs, &meta)
	for _, c := range configs {
		meta.ConfigVersions = append(meta.ConfigVersions, c.Ref())
	}

	log := o.logger.WithFields(map[string]interface{}{
		"run_id":     meta.RunID,
		"family":     family,
		"algorithms": len(configs),
		"request_id": params.RequestID,
	})
	log.Info("Starting recommendation run")

	runCtx, cancel := context.WithTimeout(ctx, o.opts.RunTimeout)
	defer cancel()

	universe, err := o.market.FetchUniverse(runCtx, contracts.UniverseQuery{
		Family:       family,
		Market:       o.opts.Market,
		Limit:        o.opts.UniverseLimit,
		ForceRefresh: params.ForceRefresh,
	})
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(ctx, family, startTime)
		}
		o.finish(family, "failed", startTime, 0)
		log.WithError(err).Error("Universe fetch failed")
		return nil, fmt.Errorf("%w: %w", contracts.ErrAllSourcesFailed, err)
	}
	meta.UniverseSize = universe.Len()
	meta.CacheHit = universe.Cached

	// 시드별 독립 실행, 실패는 격리
	results := make([]seedResult, len(configs))
	var g errgroup.Group
	g.SetLimit(o.opts.MaxParallelSeeds)
	for i, cfg := range configs {
		i, cfg := i, cfg
		g.Go(func() error {
			results[i] = o.runSeed(runCtx, cfg, universe.Clone(), params.LimitPerQuery)
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return o.cancelled(ctx, family, startTime)
	}
	meta.Partial = errors.Is(runCtx.Err(), context.DeadlineExceeded)

	lists := make([]selection.SourceList, 0, len(results))
	for _, r := range results {
		if r.failure != nil {
			meta.Failures = append(meta.Failures, *r.failure)
			o.metrics.RecordSeedFailure(r.failure.AlgorithmID, r.failure.Reason)
			log.WithFields(map[string]interface{}{
				"algorithm_id": r.failure.AlgorithmID,
				"version":      r.failure.Version,
				"reason":       r.failure.Reason,
				"error":        r.failure.Error,
			}).Warn("Seed algorithm failed")
			continue
		}
		meta.CandidateCounts[r.config.AlgorithmID] = len(r.candidates)
		meta.TotalCandidates += len(r.candidates)
		lists = append(lists, selection.SourceList{
			AlgorithmID: r.config.AlgorithmID,
			Version:     r.config.Version,
			Weight:      r.config.Weight,
			Candidates:  r.candidates,
		})
	}
	sort.Slice(meta.Failures, func(i, j int) bool {
		return meta.Failures[i].AlgorithmID < meta.Failures[j].AlgorithmID
	})

	if len(lists) == 0 {
		o.finish(family, "failed", startTime, 0)
		meta.DurationMS = o.now().Sub(startTime).Milliseconds()
		log.WithField("failures", len(meta.Failures)).Error("All seed algorithms failed")
		return &RunResult{Recommendations: []contracts.Recommendation{}, Metadata: meta},
			fmt.Errorf("run %s: %d algorithms: %w", meta.RunID, len(configs), contracts.ErrAllSourcesFailed)
	}

	// 병합/필터/정렬은 단일 스레드
	ranked := o.ranker.Rank(lists, *params.MinScore, params.TopRecommendations)
	prices := universe.Prices()
	for i := range ranked.Recommendations {
		ranked.Recommendations[i].Price = prices[ranked.Recommendations[i].Symbol]
	}

	meta.UniqueSymbols = ranked.UniqueSymbols
	meta.FilteredOut = ranked.FilteredOut
	meta.Returned = len(ranked.Recommendations)
	meta.CategoryBreakdown = selection.CategoryBreakdown(ranked.Recommendations)
	meta.DurationMS = o.now().Sub(startTime).Milliseconds()

	result := &RunResult{Recommendations: ranked.Recommendations, Metadata: meta}

	status := "ok"
	if meta.Partial {
		status = "partial"
	}
	o.finish(family, status, startTime, meta.Returned)
	o.publish(ctx, result.Batch())

	log.WithFields(map[string]interface{}{
		"universe":    meta.UniverseSize,
		"candidates":  meta.TotalCandidates,
		"failures":    len(meta.Failures),
		"returned":    meta.Returned,
		"partial":     meta.Partial,
		"cache_hit":   meta.CacheHit,
		"duration_ms": meta.DurationMS,
	}).Info("Recommendation run completed")

	return result, nil
}

// applyAB swaps the tested algorithm's config for the version of the
// assigned arm. A test whose arm version cannot be resolved is ignored.
func (o *Orchestrator) applyAB(family contracts.StrategyFamily, identity string, configs []contracts.AlgorithmConfig, meta *contracts.RunMetadata) []contracts.AlgorithmConfig {
	if o.ab == nil {
		return configs
	}
	a, ok := o.ab.Assign(family, identity)
	if !ok {
		return configs
	}

	target := a.Test.AlgorithmID
	version := a.Version()

	armConfig, err := o.configs.Get(target, version)
	if err != nil {
		o.logger.WithError(err).WithFields(map[string]interface{}{
			"test_id":      a.Test.TestID,
			"algorithm_id": target,
			"version":      version,
		}).Warn("A/B arm version unavailable, running active set")
		return configs
	}

	out := make([]contracts.AlgorithmConfig, 0, len(configs)+1)
	replaced := false
	for _, c := range configs {
		if c.AlgorithmID == target {
			out = append(out, armConfig)
			replaced = true
			continue
		}
		out = append(out, c)
	}
	if !replaced {
		out = append(out, armConfig)
		sort.Slice(out, func(i, j int) bool { return out[i].AlgorithmID < out[j].AlgorithmID })
	}

	meta.ABTestID = a.Test.TestID
	meta.ABArm = a.Arm
	meta.ABAlgorithmID = target
	return out
}

func (o *Orchestrator) cancelled(ctx context.Context, family contracts.StrategyFamily, startTime time.Time) (*RunResult, error) {
	o.finish(family, "cancelled", startTime, 0)
	return nil, fmt.Errorf("%w: %v", contracts.ErrCancelled, context.Cause(ctx))
}

func (o *Orchestrator) finish(family contracts.StrategyFamily, status string, startTime time.Time, returned int) {
	o.metrics.RecordRun(string(family), status, o.now().Sub(startTime), returned)
}
