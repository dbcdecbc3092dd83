package orchestrator

import (
	"context"

	"github.com/wonny/seedrank/backend/internal/contracts"
)

// publish notifies listeners and hands the batch to the tracker in the
// background. The hand-off outlives the caller's context.
func (o *Orchestrator) publish(ctx context.Context, batch contracts.RecommendationBatch) {
	for _, l := range o.listeners {
		l.OnRun(batch)
	}

	if o.tracker == nil {
		return
	}

	o.pending.Add(1)
	go func() {
		defer o.pending.Done()

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.TrackerTimeout)
		defer cancel()

		n, err := o.tracker.RecordBatch(hctx, batch)
		if err != nil {
			o.metrics.RecordTrackerFailure()
			o.logger.WithError(err).WithFields(map[string]interface{}{
				"run_id": batch.RunID,
				"family": batch.StrategyFamily,
			}).Error("Performance hand-off failed")
			return
		}

		o.logger.WithFields(map[string]interface{}{
			"run_id":  batch.RunID,
			"records": n,
		}).Debug("Performance hand-off completed")
	}()
}

// Drain waits for in-flight tracker hand-offs, bounded by ctx
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
