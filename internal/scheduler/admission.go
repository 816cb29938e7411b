package scheduler

import (
	"context"
	"fmt"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
)

// PlanResolver maps a user onto concurrency entitlements. Users without a
// plan reference get the hardcoded default floor, never unlimited.
type PlanResolver struct {
	plans domain.PlanRepository
}

// NewPlanResolver creates a plan resolver.
func NewPlanResolver(plans domain.PlanRepository) *PlanResolver {
	return &PlanResolver{plans: plans}
}

// Limits returns the user's plan limits or the default fallback.
func (r *PlanResolver) Limits(ctx context.Context, userID string) (domain.PlanLimits, error) {
	plan, err := r.plans.GetForUser(ctx, userID)
	if err != nil {
		return domain.PlanLimits{}, fmt.Errorf("resolve plan: %w", err)
	}
	if plan == nil {
		return domain.DefaultPlanLimits(), nil
	}
	return plan.Limits(), nil
}

// Decision is the admission outcome. A denied decision is a queueing signal,
// not an error.
type Decision struct {
	Allowed bool
	Reason  string
	Usage   domain.UsageCounts
	Limits  domain.PlanLimits
}

// Admission decides whether a user may start a job of a given type right now.
// It is a pure read: pending jobs count only against the queue limit, which
// is enforced separately at submission.
type Admission struct {
	jobs  domain.JobRepository
	plans *PlanResolver
}

// NewAdmission creates the admission controller.
func NewAdmission(jobs domain.JobRepository, plans *PlanResolver) *Admission {
	return &Admission{jobs: jobs, plans: plans}
}

// Check evaluates the user's active usage against their plan. The total limit
// is a hard stop checked before the type-specific limit.
func (a *Admission) Check(ctx context.Context, userID string, jobType domain.JobType) (Decision, error) {
	usage, err := a.jobs.CountActiveByUser(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("count active jobs: %w", err)
	}
	limits, err := a.plans.Limits(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{Usage: usage, Limits: limits}
	if usage.Total >= limits.Total {
		decision.Reason = fmt.Sprintf("total concurrency limit reached (%d/%d)", usage.Total, limits.Total)
		return decision, nil
	}
	kind := jobType.Media()
	if usage.ForMedia(kind) >= limits.ForMedia(kind) {
		decision.Reason = fmt.Sprintf("%s concurrency limit reached (%d/%d)", kind, usage.ForMedia(kind), limits.ForMedia(kind))
		return decision, nil
	}
	decision.Allowed = true
	return decision, nil
}

// CheckQueue reports whether the user may enqueue another pending job.
func (a *Admission) CheckQueue(ctx context.Context, userID string) (bool, error) {
	pending, err := a.jobs.CountPendingByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("count pending jobs: %w", err)
	}
	limits, err := a.plans.Limits(ctx, userID)
	if err != nil {
		return false, err
	}
	return pending < limits.QueueLimit, nil
}
