package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/seedrank/backend/pkg/logger"
)

type funcJob struct {
	name     string
	schedule string
	fn       func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Schedule() string              { return j.schedule }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func fastOptions() Options {
	return Options{MaxRetries: 2, RetryDelay: time.Millisecond, JobTimeout: time.Second}
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(logger.Nop(), fastOptions())
	noop := func(context.Context) error { return nil }

	require.NoError(t, s.AddJob(funcJob{"a", "0 */30 * * * *", noop}))
	require.NoError(t, s.AddJob(funcJob{"b", "@daily", noop}))

	assert.Error(t, s.AddJob(funcJob{"a", "@hourly", noop}), "duplicate name")
	assert.Error(t, s.AddJob(funcJob{"c", "*/5 * * *", noop}), "five fields without seconds")

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())
}

func TestScheduler_RetryUntilSuccess(t *testing.T) {
	s := New(logger.Nop(), fastOptions())

	var calls int32
	require.NoError(t, s.AddJob(funcJob{"flaky", "@daily", func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("upstream busy")
		}
		return nil
	}}))

	res, err := s.RunJobSync("flaky")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Empty(t, res.Error)

	hist, err := s.GetJobHistory("flaky")
	require.NoError(t, err)
	require.Len(t, hist.Results, 1)
	assert.Equal(t, 1.0, hist.GetSuccessRate())
}

func TestScheduler_FailsAfterRetries(t *testing.T) {
	s := New(logger.Nop(), fastOptions())
	require.NoError(t, s.AddJob(funcJob{"broken", "@daily", func(context.Context) error {
		return errors.New("always down")
	}}))

	res, err := s.RunJobSync("broken")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "always down", res.Error)

	stats := s.GetJobStats()["broken"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.NotNil(t, stats.LastFailure)
	assert.Nil(t, stats.LastSuccess)

	_, err = s.RunJobSync("missing")
	assert.Error(t, err)
}

func TestScheduler_JobTimeout(t *testing.T) {
	opts := fastOptions()
	opts.MaxRetries = 0
	opts.JobTimeout = 20 * time.Millisecond
	s := New(logger.Nop(), opts)

	require.NoError(t, s.AddJob(funcJob{"slow", "@daily", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}))

	res, err := s.RunJobSync("slow")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, context.DeadlineExceeded.Error())
}

func TestScheduler_StopInterruptsRetryWait(t *testing.T) {
	opts := Options{MaxRetries: 5, RetryDelay: time.Hour}
	s := New(logger.Nop(), opts)

	started := make(chan struct{}, 1)
	require.NoError(t, s.AddJob(funcJob{"stuck", "@daily", func(context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		return errors.New("nope")
	}}))

	require.NoError(t, s.RunJob("stuck"))
	<-started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt the retry wait")
	}

	hist, err := s.GetJobHistory("stuck")
	require.NoError(t, err)
	require.Len(t, hist.Results, 1)
	assert.False(t, hist.Results[0].Success)
}

func TestScheduler_CronTriggers(t *testing.T) {
	s := New(logger.Nop(), fastOptions())

	var calls int32
	require.NoError(t, s.AddJob(funcJob{"tick", "@every 1s", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}}))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 1 }, 3*time.Second, 20*time.Millisecond)

	stats := s.GetJobStats()["tick"]
	assert.NotNil(t, stats.NextRun)
}

func TestScheduler_HistoryIsCopied(t *testing.T) {
	s := New(logger.Nop(), fastOptions())
	require.NoError(t, s.AddJob(funcJob{"a", "@daily", func(context.Context) error { return nil }}))

	_, err := s.RunJobSync("a")
	require.NoError(t, err)

	hist, err := s.GetJobHistory("a")
	require.NoError(t, err)
	hist.Results[0].Success = false

	again, err := s.GetJobHistory("a")
	require.NoError(t, err)
	assert.True(t, again.Results[0].Success)
}

func TestJobHistory(t *testing.T) {
	var h JobHistory
	assert.Equal(t, 0.0, h.GetSuccessRate())
	assert.Empty(t, h.GetLatestResults(5))

	for i := 0; i < 120; i++ {
		h.AddResult(JobResult{JobName: "x", Success: i%4 != 0})
	}

	assert.Len(t, h.Results, 100)
	assert.Len(t, h.GetLatestResults(10), 10)
	assert.Len(t, h.GetFailedResults(), 25)
	assert.InDelta(t, 0.75, h.GetSuccessRate(), 1e-9)
}
