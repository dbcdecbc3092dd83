package abtest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/logger"
	"github.com/wonny/seedrank/backend/pkg/metrics"
)

// VersionLookup resolves registered algorithm versions
type VersionLookup interface {
	Get(algorithmID, version string) (contracts.AlgorithmConfig, error)
}

// Options tunes the framework
type Options struct {
	// DefaultSplit is used when a test is started with a negative split
	DefaultSplit float64
	// MinSamples per arm before a winner is declared
	MinSamples int
}

// DefaultOptions returns a 50/50 split with 30 samples per arm
func DefaultOptions() Options {
	return Options{DefaultSplit: 0.5, MinSamples: 30}
}

// StartRequest describes a new test
type StartRequest struct {
	StrategyFamily    contracts.StrategyFamily `json:"strategy_family" validate:"required"`
	AlgorithmID       string                   `json:"algorithm_id" validate:"required"`
	ControlVersion    string                   `json:"control_version" validate:"required"`
	ChallengerVersion string                   `json:"challenger_version" validate:"required,nefield=ControlVersion"`
	// TrafficSplit is the challenger share; nil or negative uses the default
	TrafficSplit *float64 `json:"traffic_split,omitempty" validate:"omitempty,lte=1"`
}

// Assignment is the arm a run was routed to
type Assignment struct {
	Test contracts.ABTest
	Arm  contracts.ABArm
}

// Version returns the algorithm version the assigned arm serves
func (a Assignment) Version() string {
	return a.Test.VersionFor(a.Arm)
}

// state is an immutable view of known tests
type state struct {
	tests   map[string]contracts.ABTest
	running map[contracts.StrategyFamily]string // family → test id
}

// Framework runs A/B tests between two versions of one algorithm.
// Routing is a pure function of (test id, identity).
// ⭐ SSOT: A/B 배정/결과 집계는 여기서만
type Framework struct {
	store    contracts.ABTestStore
	versions VersionLookup
	opts     Options
	metrics  *metrics.Recorder
	logger   *logger.Logger
	now      func() time.Time

	current atomic.Pointer[state]
	mu      sync.Mutex
}

// New creates a framework. versions and rec may be nil.
func New(store contracts.ABTestStore, versions VersionLookup, opts Options, rec *metrics.Recorder, log *logger.Logger) *Framework {
	if opts.DefaultSplit < 0 || opts.DefaultSplit > 1 {
		opts.DefaultSplit = DefaultOptions().DefaultSplit
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = DefaultOptions().MinSamples
	}

	f := &Framework{
		store:    store,
		versions: versions,
		opts:     opts,
		metrics:  rec,
		logger:   log,
		now:      time.Now,
	}
	f.current.Store(&state{
		tests:   make(map[string]contracts.ABTest),
		running: make(map[contracts.StrategyFamily]string),
	})
	return f
}

// Load reads all tests from the store
func (f *Framework) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tests, err := f.store.ListTests(ctx)
	if err != nil {
		return fmt.Errorf("load tests: %w", err)
	}

	next := &state{
		tests:   make(map[string]contracts.ABTest, len(tests)),
		running: make(map[contracts.StrategyFamily]string),
	}
	for _, t := range tests {
		next.tests[t.TestID] = t
		if t.IsRunning() {
			next.running[t.StrategyFamily] = t.TestID
		}
	}
	f.current.Store(next)

	f.logger.WithFields(map[string]interface{}{
		"tests":   len(next.tests),
		"running": len(next.running),
	}).Info("A/B tests loaded")
	return nil
}

// StartTest begins a test. A family runs at most one test at a time.
func (f *Framework) StartTest(ctx context.Context, req StartRequest) (*contracts.ABTest, error) {
	if !req.StrategyFamily.Valid() {
		return nil, fmt.Errorf("%w: %q", contracts.ErrInvalidStrategyFamily, req.StrategyFamily)
	}
	if req.AlgorithmID == "" || req.ControlVersion == "" || req.ChallengerVersion == "" {
		return nil, fmt.Errorf("%w: algorithm_id, control_version and challenger_version are required", contracts.ErrInvalidArgument)
	}
	if req.ControlVersion == req.ChallengerVersion {
		return nil, fmt.Errorf("%w: control and challenger must differ", contracts.ErrInvalidArgument)
	}

	split := -1.0
	if req.TrafficSplit != nil {
		split = *req.TrafficSplit
	}
	if split < 0 {
		split = f.opts.DefaultSplit
	}
	if split > 1 || math.IsNaN(split) {
		return nil, fmt.Errorf("%w: traffic_split must be within [0,1]", contracts.ErrInvalidArgument)
	}

	if f.versions != nil {
		for _, v := range []string{req.ControlVersion, req.ChallengerVersion} {
			cfg, err := f.versions.Get(req.AlgorithmID, v)
			if err != nil {
				return nil, err
			}
			if cfg.StrategyFamily != req.StrategyFamily {
				return nil, fmt.Errorf("%w: %s belongs to family %s", contracts.ErrInvalidArgument, cfg.Key(), cfg.StrategyFamily)
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	cur := f.current.Load()
	if id, ok := cur.running[req.StrategyFamily]; ok {
		return nil, fmt.Errorf("family %s has test %s: %w", req.StrategyFamily, id, contracts.ErrTestAlreadyRunning)
	}

	test := contracts.ABTest{
		TestID:            uuid.NewString(),
		StrategyFamily:    req.StrategyFamily,
		AlgorithmID:       req.AlgorithmID,
		ControlVersion:    req.ControlVersion,
		ChallengerVersion: req.ChallengerVersion,
		TrafficSplit:      split,
		StartedAt:         f.now().UTC(),
		Status:            contracts.TestRunning,
	}

	if err := f.store.CreateTest(ctx, test); err != nil {
		return nil, fmt.Errorf("create test: %w", err)
	}
	f.swap(test)

	f.logger.WithFields(map[string]interface{}{
		"test_id":    test.TestID,
		"family":     test.StrategyFamily,
		"algorithm":  test.AlgorithmID,
		"control":    test.ControlVersion,
		"challenger": test.ChallengerVersion,
		"split":      test.TrafficSplit,
	}).Info("A/B test started")

	return &test, nil
}

// swap requires f.mu
func (f *Framework) swap(t contracts.ABTest) {
	cur := f.current.Load()
	next := &state{
		tests:   make(map[string]contracts.ABTest, len(cur.tests)+1),
		running: make(map[contracts.StrategyFamily]string, len(cur.running)+1),
	}
	for k, v := range cur.tests {
		next.tests[k] = v
	}
	for k, v := range cur.running {
		next.running[k] = v
	}

	next.tests[t.TestID] = t
	if t.IsRunning() {
		next.running[t.StrategyFamily] = t.TestID
	} else if next.running[t.StrategyFamily] == t.TestID {
		delete(next.running, t.StrategyFamily)
	}
	f.current.Store(next)
}

// Route returns the arm for identity. The same (test, identity) pair always
// gets the same arm.
func (f *Framework) Route(testID, identity string) (contracts.ABArm, error) {
	t, ok := f.current.Load().tests[testID]
	if !ok {
		return "", fmt.Errorf("test %s: %w", testID, contracts.ErrNotFound)
	}
	return routeArm(t.TestID, identity, t.TrafficSplit), nil
}

// routeArm maps the hash of test id and identity onto [0,1)
func routeArm(testID, identity string, split float64) contracts.ABArm {
	h := xxhash.Sum64String(testID + ":" + identity)
	u := float64(h>>11) / (1 << 53)
	if u < split {
		return contracts.ArmChallenger
	}
	return contracts.ArmControl
}

// Assign routes a run of family. ok is false when no test is running.
func (f *Framework) Assign(family contracts.StrategyFamily, identity string) (Assignment, bool) {
	cur := f.current.Load()
	id, ok := cur.running[family]
	if !ok {
		return Assignment{}, false
	}
	t := cur.tests[id]
	arm := routeArm(t.TestID, identity, t.TrafficSplit)
	f.metrics.RecordAssignment(t.TestID, string(arm))
	return Assignment{Test: t, Arm: arm}, true
}

// Running returns the running test of a family
func (f *Framework) Running(family contracts.StrategyFamily) (*contracts.ABTest, bool) {
	cur := f.current.Load()
	id, ok := cur.running[family]
	if !ok {
		return nil, false
	}
	t := cur.tests[id]
	return &t, true
}

// Get returns a test by id
func (f *Framework) Get(testID string) (*contracts.ABTest, error) {
	t, ok := f.current.Load().tests[testID]
	if !ok {
		return nil, fmt.Errorf("test %s: %w", testID, contracts.ErrNotFound)
	}
	return &t, nil
}

// RecordOutcome attributes one closed performance record to an arm.
// Recording the same record twice has no further effect.
func (f *Framework) RecordOutcome(ctx context.Context, o contracts.ABOutcome) error {
	if _, err := f.Get(o.TestID); err != nil {
		return err
	}
	if !o.Arm.Valid() {
		return fmt.Errorf("%w: arm %q", contracts.ErrInvalidArgument, o.Arm)
	}
	if o.Outcome != contracts.OutcomeHit && o.Outcome != contracts.OutcomeMiss {
		return fmt.Errorf("%w: outcome %q is not closed", contracts.ErrInvalidArgument, o.Outcome)
	}
	if o.RecordedAt.IsZero() {
		o.RecordedAt = f.now().UTC()
	}

	if err := f.store.AppendOutcome(ctx, o); err != nil {
		return fmt.Errorf("append outcome: %w", err)
	}
	return nil
}

// Summarize aggregates the outcomes recorded so far
func (f *Framework) Summarize(ctx context.Context, testID string) (*contracts.OutcomeSummary, error) {
	t, err := f.Get(testID)
	if err != nil {
		return nil, err
	}

	outcomes, err := f.store.ListOutcomes(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}

	summary := summarize(*t, outcomes, f.opts.MinSamples)
	summary.ComputedAt = f.now().UTC()
	return &summary, nil
}

// Complete stops routing and stores the final summary
func (f *Framework) Complete(ctx context.Context, testID string) (*contracts.ABTest, error) {
	summary, err := f.Summarize(ctx, testID)
	if err != nil {
		return nil, err
	}
	return f.finish(ctx, testID, contracts.TestCompleted, summary)
}

// Abort stops routing without a verdict
func (f *Framework) Abort(ctx context.Context, testID string) (*contracts.ABTest, error) {
	return f.finish(ctx, testID, contracts.TestAborted, nil)
}

func (f *Framework) finish(ctx context.Context, testID string, status contracts.ABTestStatus, summary *contracts.OutcomeSummary) (*contracts.ABTest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.current.Load().tests[testID]
	if !ok {
		return nil, fmt.Errorf("test %s: %w", testID, contracts.ErrNotFound)
	}
	if !t.IsRunning() {
		return nil, fmt.Errorf("%w: test %s is %s", contracts.ErrInvalidArgument, testID, t.Status)
	}

	ended := f.now().UTC()
	t.Status = status
	t.EndedAt = &ended
	t.OutcomeSummary = summary

	if err := f.store.UpdateTest(ctx, t); err != nil {
		return nil, fmt.Errorf("update test: %w", err)
	}
	f.swap(t)

	fields := map[string]interface{}{
		"test_id": t.TestID,
		"family":  t.StrategyFamily,
		"status":  t.Status,
	}
	if summary != nil {
		fields["winner"] = summary.Winner
	}
	f.logger.WithFields(fields).Info("A/B test finished")

	return &t, nil
}

// List returns all known tests
func (f *Framework) List() []contracts.ABTest {
	cur := f.current.Load()
	out := make([]contracts.ABTest, 0, len(cur.tests))
	for _, t := range cur.tests {
		out = append(out, t)
	}
	sortTests(out)
	return out
}
