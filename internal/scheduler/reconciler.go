package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers"
)

// statusTable maps provider status vocabularies onto internal states.
// Unrecognized statuses resolve to processing: an active job stays active
// until the provider says otherwise.
var statusTable = map[string]domain.JobStatus{
	"queued":      domain.JobStatusPending,
	"waiting":     domain.JobStatusPending,
	"pending":     domain.JobStatusPending,
	"in_queue":    domain.JobStatusPending,
	"running":     domain.JobStatusProcessing,
	"in_progress": domain.JobStatusProcessing,
	"done":        domain.JobStatusCompleted,
	"success":     domain.JobStatusCompleted,
	"succeeded":   domain.JobStatusCompleted,
	"completed":   domain.JobStatusCompleted,
	"error":       domain.JobStatusFailed,
	"failed":      domain.JobStatusFailed,
	"canceled":    domain.JobStatusFailed,
	"cancelled":   domain.JobStatusFailed,
}

// NormalizeStatus translates a provider status string into the internal enum.
func NormalizeStatus(providerStatus string) domain.JobStatus {
	key := strings.ToLower(strings.TrimSpace(providerStatus))
	if status, ok := statusTable[key]; ok {
		return status
	}
	return domain.JobStatusProcessing
}

// Reconciler periodically re-synchronizes local job state with the provider-
// reported state and performs terminal side effects: output persistence,
// refunds, and queue promotion for the freed slot.
type Reconciler struct {
	jobs     domain.JobRepository
	ledger   domain.CreditLedger
	accounts domain.AccountRepository
	registry *providers.Registry
	promoter *Promoter
	limiter  *rate.Limiter
	logger   infra.Logger
	metrics  *infra.Metrics
}

// NewReconciler creates the reconciler. pollDelay spaces per-job provider
// calls inside a sweep so a large backlog cannot hammer one provider.
func NewReconciler(
	jobs domain.JobRepository,
	ledger domain.CreditLedger,
	accounts domain.AccountRepository,
	registry *providers.Registry,
	promoter *Promoter,
	pollDelay time.Duration,
	logger infra.Logger,
	metrics *infra.Metrics,
) *Reconciler {
	if pollDelay <= 0 {
		pollDelay = 500 * time.Millisecond
	}
	return &Reconciler{
		jobs:     jobs,
		ledger:   ledger,
		accounts: accounts,
		registry: registry,
		promoter: promoter,
		limiter:  rate.NewLimiter(rate.Every(pollDelay), 1),
		logger:   logger,
		metrics:  metrics,
	}
}

// Sweep polls every non-terminal job that has a provider handle. Per-job
// failures are logged and skipped; the sweep always visits the whole set.
func (r *Reconciler) Sweep(ctx context.Context) error {
	start := time.Now()
	jobs, err := r.jobs.ListPollable(ctx)
	if err != nil {
		return fmt.Errorf("list pollable: %w", err)
	}
	for i := range jobs {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := r.reconcile(ctx, &jobs[i]); err != nil {
			r.logger.Error().Err(err).Str("job_id", jobs[i].ID).Msg("reconciler: job check failed")
		}
	}
	if r.metrics != nil {
		r.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, job *domain.Job) error {
	client, ok := r.registry.ForModel(job.ModelID)
	if !ok {
		return fmt.Errorf("no provider client for model %q", job.ModelID)
	}
	result, err := client.Poll(ctx, providers.PollRequest{
		Handle:      *job.ProviderJobID,
		Credentials: accountCredentials(ctx, r.accounts, r.logger, job),
	})
	if err != nil {
		return fmt.Errorf("poll provider: %w", err)
	}

	switch NormalizeStatus(result.Status) {
	case domain.JobStatusPending, domain.JobStatusProcessing:
		// Active to active is a no-op either way; in particular a job never
		// regresses from processing back to pending.
		return nil
	case domain.JobStatusCompleted:
		return r.complete(ctx, job, result.OutputURL)
	case domain.JobStatusFailed:
		message := result.Error
		if message == "" {
			message = "provider reported failure"
		}
		return r.fail(ctx, job, message)
	}
	return nil
}

func (r *Reconciler) complete(ctx context.Context, job *domain.Job, outputURL string) error {
	applied, err := r.jobs.MarkCompleted(ctx, job.ID, outputURL)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	if !applied {
		// Terminal states are sinks; someone else already settled this job.
		return nil
	}
	if r.metrics != nil {
		r.metrics.Transitions.WithLabelValues(string(domain.JobStatusCompleted)).Inc()
	}
	r.logger.Info().Str("job_id", job.ID).Str("user_id", job.UserID).Msg("reconciler: job completed")
	if err := r.promoter.PromoteNext(ctx, job.UserID); err != nil {
		r.logger.Error().Err(err).Str("user_id", job.UserID).Msg("reconciler: promotion after completion failed")
	}
	return nil
}

func (r *Reconciler) fail(ctx context.Context, job *domain.Job, message string) error {
	applied, err := r.jobs.MarkFailed(ctx, job.ID, message)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if !applied {
		return nil
	}
	if r.metrics != nil {
		r.metrics.Transitions.WithLabelValues(string(domain.JobStatusFailed)).Inc()
	}
	r.logger.Warn().Str("job_id", job.ID).Str("user_id", job.UserID).Str("error", message).Msg("reconciler: job failed")
	refundJob(ctx, r.ledger, r.metrics, r.logger, job.ID, "provider failure")
	if err := r.promoter.PromoteNext(ctx, job.UserID); err != nil {
		r.logger.Error().Err(err).Str("user_id", job.UserID).Msg("reconciler: promotion after failure failed")
	}
	return nil
}
