package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers"
)

// Reaper times out jobs stuck in pending: never dispatched, or dispatched to
// a provider that never answered. It runs concurrently with the reconciler;
// the conditional status update and the one-shot refund flag make a double
// sweep on the same job harmless.
type Reaper struct {
	jobs      domain.JobRepository
	ledger    domain.CreditLedger
	accounts  domain.AccountRepository
	registry  *providers.Registry
	threshold time.Duration
	now       func() time.Time
	logger    infra.Logger
	metrics   *infra.Metrics
}

// NewReaper creates the stale job reaper.
func NewReaper(
	jobs domain.JobRepository,
	ledger domain.CreditLedger,
	accounts domain.AccountRepository,
	registry *providers.Registry,
	threshold time.Duration,
	logger infra.Logger,
	metrics *infra.Metrics,
) *Reaper {
	if threshold <= 0 {
		threshold = 45 * time.Minute
	}
	return &Reaper{
		jobs:      jobs,
		ledger:    ledger,
		accounts:  accounts,
		registry:  registry,
		threshold: threshold,
		now:       time.Now,
		logger:    logger,
		metrics:   metrics,
	}
}

// Sweep fails every pending job older than the threshold and refunds its
// cost if not already refunded.
func (r *Reaper) Sweep(ctx context.Context) error {
	cutoff := r.now().Add(-r.threshold)
	stale, err := r.jobs.ListStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list stale pending: %w", err)
	}
	for i := range stale {
		job := &stale[i]
		message := fmt.Sprintf("%s: pending longer than %s", domain.ErrStaleTimeout, r.threshold)
		applied, err := r.jobs.MarkFailed(ctx, job.ID, message)
		if err != nil {
			r.logger.Error().Err(err).Str("job_id", job.ID).Msg("reaper: mark failed errored")
			continue
		}
		if !applied {
			// A concurrent sweep or the reconciler settled it first.
			continue
		}
		if r.metrics != nil {
			r.metrics.JobsReaped.Inc()
		}
		r.logger.Warn().
			Str("job_id", job.ID).
			Str("user_id", job.UserID).
			Time("created_at", job.CreatedAt).
			Msg("reaper: stale pending job timed out")
		refundJob(ctx, r.ledger, r.metrics, r.logger, job.ID, "stale timeout")
		r.cancelUpstream(ctx, job)
	}
	return nil
}

// cancelUpstream aborts the provider side of a reaped job when the client
// supports it. Failures only get logged; the job is terminal locally.
func (r *Reaper) cancelUpstream(ctx context.Context, job *domain.Job) {
	if job.ProviderJobID == nil {
		return
	}
	client, ok := r.registry.ForModel(job.ModelID)
	if !ok {
		return
	}
	canceller, ok := client.(providers.Canceller)
	if !ok {
		return
	}
	if err := canceller.Cancel(ctx, providers.CancelRequest{
		Handle:      *job.ProviderJobID,
		Credentials: accountCredentials(ctx, r.accounts, r.logger, job),
	}); err != nil {
		r.logger.Warn().Err(err).Str("job_id", job.ID).Msg("reaper: upstream cancel failed")
	}
}
