package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/seedrank/backend/pkg/logger"
)

// Loader re-reads persisted state into memory
type Loader interface {
	Load(ctx context.Context) error
}

// ReloadJob keeps the in-memory registry and A/B state of this process in
// step with changes made by other processes sharing the database
type ReloadJob struct {
	loaders  map[string]Loader
	schedule string
	logger   *logger.Logger
}

// NewReloadJob creates a reload job over named loaders
func NewReloadJob(loaders map[string]Loader, schedule string, log *logger.Logger) *ReloadJob {
	return &ReloadJob{
		loaders:  loaders,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *ReloadJob) Name() string {
	return "state_reload"
}

// Schedule returns the cron schedule
func (j *ReloadJob) Schedule() string {
	return j.schedule
}

// Run reloads every loader; one failure does not stop the others
func (j *ReloadJob) Run(ctx context.Context) error {
	var errs []error
	for name, l := range j.loaders {
		if err := l.Load(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reload %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
