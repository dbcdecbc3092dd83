package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/internal/orchestrator"
	"github.com/wonny/seedrank/backend/internal/performance"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

type stubEvaluator struct {
	res  performance.EvaluationResult
	err  error
	asOf time.Time
}

func (s *stubEvaluator) EvaluateDue(ctx context.Context, quotes performance.QuoteFetcher, asOf time.Time) (performance.EvaluationResult, error) {
	s.asOf = asOf
	return s.res, s.err
}

func TestEvaluationJob(t *testing.T) {
	now := time.Date(2026, 10, 16, 21, 30, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		ev := &stubEvaluator{res: performance.EvaluationResult{Closed: 4, Hits: 3, Misses: 1}}
		job := NewEvaluationJob(ev, nil, "0 */30 * * * *", logger.Nop())
		job.now = func() time.Time { return now }

		assert.Equal(t, "performance_evaluation", job.Name())
		assert.Equal(t, "0 */30 * * * *", job.Schedule())
		require.NoError(t, job.Run(context.Background()))
		assert.Equal(t, now, ev.asOf)
	})

	t.Run("error is returned for retry", func(t *testing.T) {
		ev := &stubEvaluator{err: contracts.ErrDataUnavailable}
		job := NewEvaluationJob(ev, nil, "@hourly", logger.Nop())

		err := job.Run(context.Background())
		assert.ErrorIs(t, err, contracts.ErrDataUnavailable)
	})
}

type stubRunner struct {
	result *orchestrator.RunResult
	err    error
	family contracts.StrategyFamily
	params contracts.RequestParams
}

func (s *stubRunner) Run(ctx context.Context, family contracts.StrategyFamily, params contracts.RequestParams) (*orchestrator.RunResult, error) {
	s.family = family
	s.params = params
	return s.result, s.err
}

func TestRefreshJob(t *testing.T) {
	ok := &orchestrator.RunResult{Metadata: contracts.RunMetadata{RunID: "r1", Returned: 12}}

	tests := []struct {
		name    string
		result  *orchestrator.RunResult
		err     error
		wantErr error
	}{
		{"success", ok, nil, nil},
		{"no active algorithms is skipped", nil, fmt.Errorf("%w: family swing", contracts.ErrConfigurationMissing), nil},
		{"all sources failed retries", &orchestrator.RunResult{}, contracts.ErrAllSourcesFailed, contracts.ErrAllSourcesFailed},
		{"universe unavailable retries", nil, contracts.ErrDataUnavailable, contracts.ErrDataUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{result: tt.result, err: tt.err}
			job := NewRefreshJob(runner, contracts.FamilySwing, "0 5 21 * * 1-5", logger.Nop())

			err := job.Run(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, contracts.FamilySwing, runner.family)
			assert.True(t, runner.params.ForceRefresh)
			assert.True(t, strings.HasPrefix(runner.params.RequestID, "scheduler:swing:"))
		})
	}

	job := NewRefreshJob(&stubRunner{}, contracts.FamilyIntradayBuy, "@hourly", logger.Nop())
	assert.Equal(t, "recommendation_refresh:intraday_buy", job.Name())
}

type stubLoader struct {
	err   error
	calls int
}

func (s *stubLoader) Load(ctx context.Context) error {
	s.calls++
	return s.err
}

func TestReloadJob(t *testing.T) {
	reg := &stubLoader{}
	ab := &stubLoader{err: errors.New("db gone")}

	job := NewReloadJob(map[string]Loader{"registry": reg, "abtest": ab}, "0 * * * * *", logger.Nop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reload abtest")
	assert.Equal(t, 1, reg.calls, "a failing loader does not stop the others")
	assert.Equal(t, 1, ab.calls)

	ab.err = nil
	assert.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "state_reload", job.Name())
}
