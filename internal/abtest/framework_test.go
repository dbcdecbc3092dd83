package abtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/pkg/logger"
	"github.com/wonny/seedrank/backend/pkg/metrics"
)

type fakeVersions map[string]contracts.StrategyFamily

func (f fakeVersions) Get(id, version string) (contracts.AlgorithmConfig, error) {
	family, ok := f[id+"@"+version]
	if !ok {
		return contracts.AlgorithmConfig{}, fmt.Errorf("%s@%s: %w", id, version, contracts.ErrNotFound)
	}
	return contracts.AlgorithmConfig{AlgorithmID: id, Version: version, StrategyFamily: family}, nil
}

func newTestFramework(t *testing.T) (*Framework, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	versions := fakeVersions{
		"momentum@1": contracts.FamilySwing,
		"momentum@2": contracts.FamilySwing,
		"value@1":    contracts.FamilyLongterm,
		"value@2":    contracts.FamilyLongterm,
	}
	return New(store, versions, Options{DefaultSplit: 0.3, MinSamples: 2}, nil, logger.Nop()), store
}

func startSwing(t *testing.T, f *Framework, split *float64) *contracts.ABTest {
	t.Helper()
	test, err := f.StartTest(context.Background(), StartRequest{
		StrategyFamily:    contracts.FamilySwing,
		AlgorithmID:       "momentum",
		ControlVersion:    "1",
		ChallengerVersion: "2",
		TrafficSplit:      split,
	})
	require.NoError(t, err)
	return test
}

func TestStartTest_DefaultSplit(t *testing.T) {
	f, _ := newTestFramework(t)

	test := startSwing(t, f, nil)
	assert.Equal(t, 0.3, test.TrafficSplit)
	assert.Equal(t, contracts.TestRunning, test.Status)
	assert.NotEmpty(t, test.TestID)

	running, ok := f.Running(contracts.FamilySwing)
	require.True(t, ok)
	assert.Equal(t, test.TestID, running.TestID)

	_, ok = f.Running(contracts.FamilyLongterm)
	assert.False(t, ok)
}

func TestStartTest_NegativeSplitUsesDefault(t *testing.T) {
	f, _ := newTestFramework(t)
	test := startSwing(t, f, contracts.Float64(-1))
	assert.Equal(t, 0.3, test.TrafficSplit)
}

func TestStartTest_AlreadyRunning(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFramework(t)
	startSwing(t, f, contracts.Float64(0.5))

	_, err := f.StartTest(ctx, StartRequest{
		StrategyFamily:    contracts.FamilySwing,
		AlgorithmID:       "momentum",
		ControlVersion:    "2",
		ChallengerVersion: "1",
	})
	assert.ErrorIs(t, err, contracts.ErrTestAlreadyRunning)

	// 다른 패밀리는 영향 없음
	_, err = f.StartTest(ctx, StartRequest{
		StrategyFamily:    contracts.FamilyLongterm,
		AlgorithmID:       "value",
		ControlVersion:    "1",
		ChallengerVersion: "2",
	})
	assert.NoError(t, err)
}

func TestStartTest_Validation(t *testing.T) {
	f, _ := newTestFramework(t)

	tests := []struct {
		name    string
		req     StartRequest
		wantErr error
	}{
		{"bad family", StartRequest{StrategyFamily: "yearly", AlgorithmID: "momentum", ControlVersion: "1", ChallengerVersion: "2"}, contracts.ErrInvalidStrategyFamily},
		{"same versions", StartRequest{StrategyFamily: contracts.FamilySwing, AlgorithmID: "momentum", ControlVersion: "1", ChallengerVersion: "1"}, contracts.ErrInvalidArgument},
		{"missing algorithm", StartRequest{StrategyFamily: contracts.FamilySwing, ControlVersion: "1", ChallengerVersion: "2"}, contracts.ErrInvalidArgument},
		{"split above one", StartRequest{StrategyFamily: contracts.FamilySwing, AlgorithmID: "momentum", ControlVersion: "1", ChallengerVersion: "2", TrafficSplit: contracts.Float64(1.5)}, contracts.ErrInvalidArgument},
		{"unknown version", StartRequest{StrategyFamily: contracts.FamilySwing, AlgorithmID: "momentum", ControlVersion: "1", ChallengerVersion: "9"}, contracts.ErrNotFound},
		{"version of other family", StartRequest{StrategyFamily: contracts.FamilySwing, AlgorithmID: "value", ControlVersion: "1", ChallengerVersion: "2"}, contracts.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.StartTest(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRoute_Stable(t *testing.T) {
	f, _ := newTestFramework(t)
	test := startSwing(t, f, contracts.Float64(0.5))

	for i := 0; i < 200; i++ {
		identity := fmt.Sprintf("user-%d", i)
		first, err := f.Route(test.TestID, identity)
		require.NoError(t, err)
		for j := 0; j < 5; j++ {
			again, err := f.Route(test.TestID, identity)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}

	_, err := f.Route("missing", "user-1")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestRoute_SplitProportion(t *testing.T) {
	tests := []struct {
		split  float64
		lo, hi int
	}{
		{0, 0, 0},
		{1, 10000, 10000},
		{0.5, 4700, 5300},
		{0.1, 800, 1200},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("split=%v", tt.split), func(t *testing.T) {
			challengers := 0
			for i := 0; i < 10000; i++ {
				if routeArm("test-1", fmt.Sprintf("req-%d", i), tt.split) == contracts.ArmChallenger {
					challengers++
				}
			}
			assert.GreaterOrEqual(t, challengers, tt.lo)
			assert.LessOrEqual(t, challengers, tt.hi)
		})
	}
}

func TestAssign_RecordsMetric(t *testing.T) {
	rec := metrics.New()
	f := New(NewMemoryStore(), nil, DefaultOptions(), rec, logger.Nop())

	_, ok := f.Assign(contracts.FamilySwing, "req-1")
	assert.False(t, ok)

	test, err := f.StartTest(context.Background(), StartRequest{
		StrategyFamily:    contracts.FamilySwing,
		AlgorithmID:       "momentum",
		ControlVersion:    "1",
		ChallengerVersion: "2",
		TrafficSplit:      contracts.Float64(1),
	})
	require.NoError(t, err)

	a, ok := f.Assign(contracts.FamilySwing, "req-1")
	require.True(t, ok)
	assert.Equal(t, contracts.ArmChallenger, a.Arm)
	assert.Equal(t, "2", a.Version())
	assert.NotEmpty(t, test.TestID)

	n, err := testutil.GatherAndCount(rec.Gatherer(), "seedrank_ab_assignments_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecordOutcomeAndSummarize(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFramework(t)
	test := startSwing(t, f, contracts.Float64(0.5))

	outcomes := []contracts.ABOutcome{
		{RecordID: "r1", Arm: contracts.ArmControl, Outcome: contracts.OutcomeHit, ReturnPct: 4},
		{RecordID: "r2", Arm: contracts.ArmControl, Outcome: contracts.OutcomeMiss, ReturnPct: -2},
		{RecordID: "r3", Arm: contracts.ArmChallenger, Outcome: contracts.OutcomeHit, ReturnPct: 5},
		{RecordID: "r4", Arm: contracts.ArmChallenger, Outcome: contracts.OutcomeHit, ReturnPct: 3},
		{RecordID: "r4", Arm: contracts.ArmChallenger, Outcome: contracts.OutcomeHit, ReturnPct: 3},
	}
	for _, o := range outcomes {
		o.TestID = test.TestID
		require.NoError(t, f.RecordOutcome(ctx, o))
	}

	summary, err := f.Summarize(ctx, test.TestID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Control.SampleSize)
	assert.Equal(t, 0.5, summary.Control.HitRate)
	assert.Equal(t, 1.0, summary.Control.MeanReturn)
	assert.Equal(t, 2, summary.Challenger.SampleSize)
	assert.Equal(t, 1.0, summary.Challenger.HitRate)
	assert.Equal(t, 4.0, summary.Challenger.MeanReturn)
	assert.Equal(t, contracts.WinnerChallenger, summary.Winner)
	assert.Equal(t, "2", summary.Challenger.Version)
}

func TestRecordOutcome_Rejects(t *testing.T) {
	ctx := context.Background()
	f, _ := newTestFramework(t)
	test := startSwing(t, f, nil)

	err := f.RecordOutcome(ctx, contracts.ABOutcome{TestID: "nope", RecordID: "r", Arm: contracts.ArmControl, Outcome: contracts.OutcomeHit})
	assert.ErrorIs(t, err, contracts.ErrNotFound)

	err = f.RecordOutcome(ctx, contracts.ABOutcome{TestID: test.TestID, RecordID: "r", Arm: "both", Outcome: contracts.OutcomeHit})
	assert.ErrorIs(t, err, contracts.ErrInvalidArgument)

	err = f.RecordOutcome(ctx, contracts.ABOutcome{TestID: test.TestID, RecordID: "r", Arm: contracts.ArmControl, Outcome: contracts.OutcomePending})
	assert.ErrorIs(t, err, contracts.ErrInvalidArgument)
}

func TestPickWinner(t *testing.T) {
	arm := func(n int, hit, mean float64) contracts.ArmSummary {
		return contracts.ArmSummary{SampleSize: n, HitRate: hit, MeanReturn: mean}
	}

	tests := []struct {
		name       string
		control    contracts.ArmSummary
		challenger contracts.ArmSummary
		want       string
	}{
		{"too few samples", arm(1, 0, 0), arm(50, 1, 5), contracts.WinnerInconclusive},
		{"challenger hit rate", arm(40, 0.4, 1), arm(40, 0.6, 0), contracts.WinnerChallenger},
		{"control hit rate", arm(40, 0.7, 1), arm(40, 0.6, 9), contracts.WinnerControl},
		{"tie broken by return", arm(40, 0.5, 1), arm(40, 0.5, 2), contracts.WinnerChallenger},
		{"full tie", arm(40, 0.5, 1), arm(40, 0.5, 1), contracts.WinnerInconclusive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pickWinner(tt.control, tt.challenger, 30))
		})
	}
}

func TestCompleteAndAbort(t *testing.T) {
	ctx := context.Background()
	f, store := newTestFramework(t)
	test := startSwing(t, f, nil)

	done, err := f.Complete(ctx, test.TestID)
	require.NoError(t, err)
	assert.Equal(t, contracts.TestCompleted, done.Status)
	require.NotNil(t, done.EndedAt)
	require.NotNil(t, done.OutcomeSummary)
	assert.Equal(t, contracts.WinnerInconclusive, done.OutcomeSummary.Winner)

	_, ok := f.Running(contracts.FamilySwing)
	assert.False(t, ok)

	_, err = f.Complete(ctx, test.TestID)
	assert.ErrorIs(t, err, contracts.ErrInvalidArgument)

	stored, err := store.GetTest(ctx, test.TestID)
	require.NoError(t, err)
	assert.Equal(t, contracts.TestCompleted, stored.Status)

	// 종료 후 새 테스트 시작 가능
	second := startSwing(t, f, nil)
	aborted, err := f.Abort(ctx, second.TestID)
	require.NoError(t, err)
	assert.Equal(t, contracts.TestAborted, aborted.Status)
	assert.Nil(t, aborted.OutcomeSummary)

	assert.Len(t, f.List(), 2)
}

func TestLoad_RestoresRunning(t *testing.T) {
	ctx := context.Background()
	f, store := newTestFramework(t)
	test := startSwing(t, f, nil)

	reloaded := New(store, nil, DefaultOptions(), nil, logger.Nop())
	require.NoError(t, reloaded.Load(ctx))

	running, ok := reloaded.Running(contracts.FamilySwing)
	require.True(t, ok)
	assert.Equal(t, test.TestID, running.TestID)

	arm1, err := f.Route(test.TestID, "req-42")
	require.NoError(t, err)
	arm2, err := reloaded.Route(test.TestID, "req-42")
	require.NoError(t, err)
	assert.Equal(t, arm1, arm2)
}
