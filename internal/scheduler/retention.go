package scheduler

import (
	"context"
	"time"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
)

// Retention deletes terminal jobs past the retention window. It is a
// housekeeping sweep, separate from the lifecycle engine; cancelled and
// failed jobs stay queryable until it runs.
type Retention struct {
	jobs   domain.JobRepository
	window time.Duration
	logger infra.Logger
}

// NewRetention creates the retention sweep. days <= 0 disables it.
func NewRetention(jobs domain.JobRepository, days int, logger infra.Logger) *Retention {
	return &Retention{jobs: jobs, window: time.Duration(days) * 24 * time.Hour, logger: logger}
}

// Enabled reports whether the sweep should be scheduled at all.
func (r *Retention) Enabled() bool {
	return r.window > 0
}

// Sweep removes terminal jobs older than the window.
func (r *Retention) Sweep(ctx context.Context) {
	if !r.Enabled() {
		return
	}
	deleted, err := r.jobs.DeleteTerminalBefore(ctx, time.Now().Add(-r.window))
	if err != nil {
		r.logger.Error().Err(err).Msg("retention: sweep failed")
		return
	}
	if deleted > 0 {
		r.logger.Info().Int64("deleted", deleted).Msg("retention: terminal jobs removed")
	}
}
