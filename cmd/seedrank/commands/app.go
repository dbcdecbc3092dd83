package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/wonny/seedrank/backend/internal/abtest"
	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/internal/marketdata"
	"github.com/wonny/seedrank/backend/internal/orchestrator"
	"github.com/wonny/seedrank/backend/internal/performance"
	"github.com/wonny/seedrank/backend/internal/realtime"
	"github.com/wonny/seedrank/backend/internal/registry"
	"github.com/wonny/seedrank/backend/internal/scheduler"
	"github.com/wonny/seedrank/backend/internal/scheduler/jobs"
	"github.com/wonny/seedrank/backend/internal/seeds"
	"github.com/wonny/seedrank/backend/internal/selection"
	"github.com/wonny/seedrank/backend/internal/strategyconfig"
	"github.com/wonny/seedrank/backend/pkg/config"
	"github.com/wonny/seedrank/backend/pkg/database"
	"github.com/wonny/seedrank/backend/pkg/logger"
	"github.com/wonny/seedrank/backend/pkg/metrics"
	"github.com/wonny/seedrank/backend/pkg/redis"
)

const (
	// reloadSchedule keeps registry/AB state in step with other processes
	reloadSchedule = "0 */5 * * * *"

	feedHistory = 20
	feedTopN    = 10

	// drainTimeout bounds the wait for tracker hand-offs on exit
	drainTimeout = 15 * time.Second
)

// performanceStore is what both tracker stores offer: the tracker contract
// plus batch reads for the API
type performanceStore interface {
	contracts.PerformanceStore
	GetBatch(ctx context.Context, runID string) (*contracts.RecommendationBatch, error)
	ListBatches(ctx context.Context, family contracts.StrategyFamily, limit int) ([]contracts.RecommendationBatch, error)
}

// app holds the fully wired engine shared by every command
// ⭐ SSOT: 의존성 조립은 여기서만
type app struct {
	cfg *config.Config
	log *logger.Logger

	db    *database.DB // nil when STORAGE=memory
	redis *redis.Client

	catalog  *strategyconfig.Catalog
	snapshot *strategyconfig.Snapshot
	seeds    *seeds.Catalog

	market       contracts.MarketDataProvider
	metrics      *metrics.Recorder
	registry     *registry.Registry
	versions     *registry.VersionManager
	abtests      *abtest.Framework
	store        performanceStore
	tracker      *performance.Tracker
	orchestrator *orchestrator.Orchestrator
	hub          *realtime.Hub
}

// loadConfig applies the global flags and reads the process config
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := godotenv.Overload(configFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", configFile, err)
		}
	}
	if storage != "" {
		os.Setenv("STORAGE", storage)
	}
	if catalogPath != "" {
		os.Setenv("STRATEGY_CATALOG", catalogPath)
	}
	if verbose {
		os.Setenv("LOG_LEVEL", "debug")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// newApp loads config and wires storage, market data, catalog, registry,
// A/B framework, tracker and orchestrator in dependency order
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildApp(ctx, cfg, logger.New(cfg))
}

func buildApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, seeds: seeds.DefaultCatalog()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// 1. Storage
	var (
		configStore contracts.ConfigStore
		abStore     contracts.ABTestStore
	)
	switch cfg.Storage {
	case config.StoragePostgres:
		db, err := database.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		if err := db.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		configStore = registry.NewRepository(db.Pool)
		abStore = abtest.NewRepository(db.Pool)
		a.store = performance.NewRepository(db.Pool)
		log.Info("Connected to database")
	default:
		configStore = registry.NewMemoryStore()
		abStore = abtest.NewMemoryStore()
		a.store = performance.NewMemoryStore()
		log.Warn("Using in-memory storage, state is lost on exit")
	}

	// 2. Market data (Redis cache + rate limit when enabled)
	a.redis, err = redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.market, err = marketdata.NewProvider(cfg, a.redis, log)
	if err != nil {
		return nil, fmt.Errorf("market data provider: %w", err)
	}

	// 3. Strategy catalog
	cat, raw, err := strategyconfig.Load(cfg.StrategyCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load strategy catalog: %w", err)
	}
	a.catalog = cat
	a.snapshot, err = strategyconfig.NewSnapshot(cat, raw, cfg.StrategyCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("catalog snapshot: %w", err)
	}
	log.WithFields(map[string]interface{}{
		"catalog_id": a.snapshot.CatalogID,
		"version":    a.snapshot.Version,
		"hash":       a.snapshot.Hash,
		"algorithms": len(cat.Algorithms),
	}).Info("Strategy catalog loaded")
	for _, w := range strategyconfig.Warn(cat, a.seeds.IDs()) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	// 4. Metrics
	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	// 5. Registry + catalog bootstrap
	a.registry = registry.New(configStore, log.Component("registry"))
	if err := a.registry.Load(ctx); err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	added, err := strategyconfig.Bootstrap(ctx, a.registry, cat)
	if err != nil {
		return nil, err
	}
	if added > 0 {
		log.WithField("added", added).Info("Registered catalog algorithm versions")
	}
	a.versions = registry.NewVersionManager(a.registry)

	// 6. A/B framework
	a.abtests = abtest.New(abStore, a.registry, abtest.Options{
		DefaultSplit: cat.ABTest.DefaultSplit,
		MinSamples:   cat.ABTest.MinSamples,
	}, a.metrics, log.Component("abtest"))
	if err := a.abtests.Load(ctx); err != nil {
		return nil, fmt.Errorf("load ab tests: %w", err)
	}

	// 7. Performance tracker
	a.tracker = performance.NewTracker(a.store, performance.Options{
		EvaluationWindow: cat.Evaluation.Window,
		HitThreshold:     cat.Evaluation.HitThreshold,
	}, a.abtests, a.metrics, log.Component("performance").Zerolog())

	// 8. Orchestrator
	opts := orchestrator.OptionsFromConfig(cfg.Orchestrator)
	opts.Market = cat.Meta.Market
	a.orchestrator = orchestrator.New(
		a.registry,
		a.seeds,
		a.market,
		selection.NewRanker(cat.Merge, log.Component("ranker")),
		cat,
		opts,
		log.Component("orchestrator"),
	).WithABRouter(a.abtests).WithTracker(a.tracker).WithMetrics(a.metrics)

	a.hub = realtime.NewHub(feedHistory, feedTopN, log.Component("feed"))
	a.orchestrator.AddListener(a.hub)

	return a, nil
}

// schedulerJobs returns the periodic jobs of this process
func (a *app) schedulerJobs() []scheduler.Job {
	list := []scheduler.Job{
		jobs.NewEvaluationJob(a.tracker, a.market, a.catalog.Evaluation.Cron, a.log.Component("job.evaluation")),
	}

	for _, family := range contracts.AllFamilies() {
		f := a.catalog.Family(family)
		if f.RefreshCron == "" {
			continue
		}
		list = append(list, jobs.NewRefreshJob(a.orchestrator, family, f.RefreshCron, a.log.Component("job.refresh")))
	}

	// 메모리 저장소는 프로세스 간 공유가 없으므로 reload 불필요
	if a.db != nil {
		list = append(list, jobs.NewReloadJob(map[string]jobs.Loader{
			"registry": a.registry,
			"abtest":   a.abtests,
		}, reloadSchedule, a.log.Component("job.reload")))
	}

	return list
}

// newScheduler registers every job with a fresh scheduler
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log.Component("scheduler"), scheduler.DefaultOptions())
	for _, job := range a.schedulerJobs() {
		if err := sched.AddJob(job); err != nil {
			return nil, fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}
	return sched, nil
}

// Close releases connections
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
