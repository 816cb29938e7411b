package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers"
)

// Promoter moves pending jobs into processing when a slot frees up. It also
// backs the immediate-start path at submission, so dispatch bookkeeping lives
// in exactly one place.
type Promoter struct {
	jobs         domain.JobRepository
	ledger       domain.CreditLedger
	admission    *Admission
	capacity     *Capacity
	registry     *providers.Registry
	policy       PromotionPolicy
	maxAttempts  int
	capacityWait time.Duration
	logger       infra.Logger
	metrics      *infra.Metrics
}

// NewPromoter creates the queue promoter. A nil policy defaults to
// skip-ahead FIFO. A positive capacityWait makes the promoter block for an
// account up to that long instead of leaving the job queued on the first
// capacity miss; request-path callers pass zero to stay fail-fast.
func NewPromoter(
	jobs domain.JobRepository,
	ledger domain.CreditLedger,
	admission *Admission,
	capacity *Capacity,
	registry *providers.Registry,
	policy PromotionPolicy,
	maxAttempts int,
	capacityWait time.Duration,
	logger infra.Logger,
	metrics *infra.Metrics,
) *Promoter {
	if policy == nil {
		policy = SkipAheadFIFO{}
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Promoter{
		jobs:         jobs,
		ledger:       ledger,
		admission:    admission,
		capacity:     capacity,
		registry:     registry,
		policy:       policy,
		maxAttempts:  maxAttempts,
		capacityWait: capacityWait,
		logger:       logger,
		metrics:      metrics,
	}
}

// PromoteNext scans the user's pending queue and dispatches the first job the
// policy accepts. At most one job is promoted per invocation; inadmissible or
// capacity-starved jobs stay queued for the next slot-freeing event.
func (p *Promoter) PromoteNext(ctx context.Context, userID string) error {
	pending, err := p.jobs.ListPendingByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	candidate := p.policy.Select(pending, func(job *domain.Job) bool {
		decision, err := p.admission.Check(ctx, userID, job.Type)
		if err != nil {
			p.logger.Error().Err(err).Str("job_id", job.ID).Msg("promoter: admission check failed")
			return false
		}
		return decision.Allowed
	})
	if candidate == nil {
		return nil
	}
	return p.TryDispatch(ctx, candidate)
}

// TryDispatch picks an account, dispatches the job upstream, and reserves the
// processing slot. Capacity shortage and dispatch failure both leave the job
// pending; only running out of dispatch attempts fails it.
func (p *Promoter) TryDispatch(ctx context.Context, job *domain.Job) error {
	account, err := p.pickAccount(ctx, job)
	if err != nil {
		if errors.Is(err, domain.ErrCapacityUnavailable) {
			p.logger.Debug().Str("job_id", job.ID).Msg("promoter: no account available, job stays queued")
			return nil
		}
		return err
	}

	client, ok := p.registry.ForModel(job.ModelID)
	if !ok {
		// No client can ever serve this model; retrying is pointless.
		return p.failPermanently(ctx, job, fmt.Sprintf("no provider client for model %q", job.ModelID))
	}

	handle, err := client.Dispatch(ctx, providers.DispatchRequest{
		JobID:           job.ID,
		ModelID:         job.ModelID,
		Type:            job.Type,
		Prompt:          job.Prompt,
		SourceURL:       job.SourceURL,
		Width:           job.Width,
		Height:          job.Height,
		DurationSeconds: job.DurationSeconds,
		Credentials:     account.Credentials,
	})
	if err != nil {
		return p.recordDispatchFailure(ctx, job, err)
	}

	limits, err := p.admission.plans.Limits(ctx, job.UserID)
	if err != nil {
		return err
	}
	reserved, err := p.jobs.ReserveProcessing(ctx, job.ID, account.ID, handle, limits)
	if err != nil {
		return fmt.Errorf("reserve processing: %w", err)
	}
	if !reserved {
		// Lost the reserve race or the job left pending underneath us. Undo
		// the upstream side where the provider allows it.
		p.cancelUpstream(ctx, client, job.ID, handle, account.Credentials)
		p.logger.Warn().Str("job_id", job.ID).Msg("promoter: reservation rejected after dispatch")
		return nil
	}

	if p.metrics != nil {
		p.metrics.JobsPromoted.Inc()
	}
	p.logger.Info().
		Str("job_id", job.ID).
		Str("user_id", job.UserID).
		Str("account_id", account.ID).
		Str("provider_job_id", handle).
		Msg("promoter: job dispatched")
	return nil
}

func (p *Promoter) recordDispatchFailure(ctx context.Context, job *domain.Job, dispatchErr error) error {
	if p.metrics != nil {
		p.metrics.DispatchFailure.Inc()
	}
	attempts, err := p.jobs.IncrementAttempts(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("increment attempts: %w", err)
	}
	p.logger.Warn().Err(dispatchErr).
		Str("job_id", job.ID).
		Int("attempts", attempts).
		Msg("promoter: dispatch failed, job retained pending")

	if attempts >= p.maxAttempts {
		return p.failPermanently(ctx, job, fmt.Sprintf("dispatch failed after %d attempts: %v", attempts, dispatchErr))
	}
	return nil
}

func (p *Promoter) failPermanently(ctx context.Context, job *domain.Job, reason string) error {
	failed, err := p.jobs.MarkFailed(ctx, job.ID, reason)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if !failed {
		return nil
	}
	p.logger.Error().Str("job_id", job.ID).Str("reason", reason).Msg("promoter: job failed permanently")
	refundJob(ctx, p.ledger, p.metrics, p.logger, job.ID, "dispatch exhausted")
	return nil
}

func (p *Promoter) pickAccount(ctx context.Context, job *domain.Job) (*domain.ProviderAccount, error) {
	if p.capacityWait > 0 {
		return p.capacity.PickWait(ctx, job, p.capacityWait)
	}
	return p.capacity.Pick(ctx, job)
}

func (p *Promoter) cancelUpstream(ctx context.Context, client providers.Client, jobID, handle, credentials string) {
	canceller, ok := client.(providers.Canceller)
	if !ok {
		return
	}
	if err := canceller.Cancel(ctx, providers.CancelRequest{Handle: handle, Credentials: credentials}); err != nil {
		p.logger.Warn().Err(err).Str("job_id", jobID).Msg("promoter: upstream cancel failed")
	}
}

// accountCredentials resolves the key override for the account a job ran on.
// An empty result makes the provider client fall back to its own key.
func accountCredentials(ctx context.Context, accounts domain.AccountRepository, logger infra.Logger, job *domain.Job) string {
	if job.AccountID == nil || accounts == nil {
		return ""
	}
	account, err := accounts.GetByID(ctx, *job.AccountID)
	if err != nil {
		logger.Warn().Err(err).Str("job_id", job.ID).Str("account_id", *job.AccountID).Msg("account lookup failed")
		return ""
	}
	return account.Credentials
}

// refundJob issues the one-shot refund for a terminal job. A nil new balance
// means the refund already happened; both outcomes are fine.
func refundJob(ctx context.Context, ledger domain.CreditLedger, metrics *infra.Metrics, logger infra.Logger, jobID, reason string) {
	balance, err := ledger.Refund(ctx, jobID, reason)
	if err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("refund failed")
		return
	}
	if balance == nil {
		return
	}
	if metrics != nil {
		metrics.Refunds.Inc()
	}
	logger.Info().Str("job_id", jobID).Int64("balance", *balance).Msg("credits refunded")
}
