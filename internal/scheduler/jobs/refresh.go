package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/seedrank/backend/internal/contracts"
	"github.com/wonny/seedrank/backend/internal/orchestrator"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// Runner executes one orchestration run
type Runner interface {
	Run(ctx context.Context, family contracts.StrategyFamily, params contracts.RequestParams) (*orchestrator.RunResult, error)
}

// RefreshJob re-runs one family on its catalog schedule so the batch
// history, tracker records and run feed stay current
type RefreshJob struct {
	runner   Runner
	family   contracts.StrategyFamily
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewRefreshJob creates a refresh job for one family
func NewRefreshJob(runner Runner, family contracts.StrategyFamily, schedule string, log *logger.Logger) *RefreshJob {
	return &RefreshJob{
		runner:   runner,
		family:   family,
		schedule: schedule,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "recommendation_refresh:" + string(j.family)
}

// Schedule returns the family's refresh_cron
func (j *RefreshJob) Schedule() string {
	return j.schedule
}

// Run executes one run of the family with a fresh universe
func (j *RefreshJob) Run(ctx context.Context) error {
	params := contracts.RequestParams{
		ForceRefresh: true,
		RequestID:    fmt.Sprintf("scheduler:%s:%d", j.family, j.now().Unix()),
	}

	result, err := j.runner.Run(ctx, j.family, params)
	switch {
	case errors.Is(err, contracts.ErrConfigurationMissing):
		// 활성 알고리즘이 없는 family는 재시도 대상 아님
		j.logger.WithField("family", j.family).Info("Refresh skipped, no active algorithms")
		return nil
	case err != nil:
		return fmt.Errorf("refresh %s: %w", j.family, err)
	}

	j.logger.WithFields(map[string]interface{}{
		"family":   j.family,
		"run_id":   result.Metadata.RunID,
		"returned": result.Metadata.Returned,
		"partial":  result.Metadata.Partial,
		"failures": len(result.Metadata.Failures),
	}).Info("Recommendation refresh completed")

	return nil
}
