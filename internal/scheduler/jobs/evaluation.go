package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/seedrank/backend/internal/performance"
	"github.com/wonny/seedrank/backend/pkg/logger"
)

// Evaluator closes due performance records
type Evaluator interface {
	EvaluateDue(ctx context.Context, quotes performance.QuoteFetcher, asOf time.Time) (performance.EvaluationResult, error)
}

// EvaluationJob closes pending performance records whose window has elapsed
// ⭐ SSOT: 성과 판정 스케줄은 이 Job에서만
type EvaluationJob struct {
	tracker  Evaluator
	quotes   performance.QuoteFetcher
	schedule string
	logger   *logger.Logger
	now      func() time.Time
}

// NewEvaluationJob creates a new evaluation job
func NewEvaluationJob(tracker Evaluator, quotes performance.QuoteFetcher, schedule string, log *logger.Logger) *EvaluationJob {
	return &EvaluationJob{
		tracker:  tracker,
		quotes:   quotes,
		schedule: schedule,
		logger:   log,
		now:      time.Now,
	}
}

// Name returns the job name
func (j *EvaluationJob) Name() string {
	return "performance_evaluation"
}

// Schedule returns the cron schedule (strategy catalog evaluation.cron)
func (j *EvaluationJob) Schedule() string {
	return j.schedule
}

// Run executes one evaluation pass
func (j *EvaluationJob) Run(ctx context.Context) error {
	asOf := j.now().UTC()
	j.logger.WithField("as_of", asOf).Debug("Starting scheduled performance evaluation")

	res, err := j.tracker.EvaluateDue(ctx, j.quotes, asOf)
	if err != nil {
		return fmt.Errorf("evaluate due records: %w", err)
	}

	if res.Closed > 0 || res.Skipped > 0 {
		j.logger.WithFields(map[string]interface{}{
			"closed":  res.Closed,
			"hits":    res.Hits,
			"misses":  res.Misses,
			"skipped": res.Skipped,
		}).Info("Performance evaluation completed")
	}

	return nil
}
