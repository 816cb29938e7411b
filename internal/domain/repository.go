package domain

import (
	"context"
	"time"
)

// UsageCounts holds a user's active (processing) job counts.
type UsageCounts struct {
	Total  int
	Images int
	Videos int
}

// ForMedia returns the active count for a media kind.
func (u UsageCounts) ForMedia(kind MediaKind) int {
	if kind == MediaVideo {
		return u.Videos
	}
	return u.Images
}

// JobRepository defines persistence for job entities and their state
// transitions. Transition methods are conditional updates: they return false
// when the job was not in the expected source state, which is how concurrent
// sweeps stay idempotent without mutual exclusion.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	GetForUser(ctx context.Context, jobID, userID string) (*Job, error)

	CountActiveByUser(ctx context.Context, userID string) (UsageCounts, error)
	CountPendingByUser(ctx context.Context, userID string) (int, error)
	ListPendingByUser(ctx context.Context, userID string) ([]Job, error)
	ListPollable(ctx context.Context) ([]Job, error)
	ListStalePending(ctx context.Context, olderThan time.Time) ([]Job, error)
	AccountUsage(ctx context.Context, accountID string) (AccountUsage, error)

	// ReserveProcessing transitions pending→processing, records the provider
	// handle and account, and re-verifies the owner's concurrency limits in
	// the same transaction. Returns false when the job left pending or the
	// limits no longer hold.
	ReserveProcessing(ctx context.Context, jobID, accountID, providerJobID string, limits PlanLimits) (bool, error)
	MarkCompleted(ctx context.Context, jobID, outputURL string) (bool, error)
	MarkFailed(ctx context.Context, jobID, errMsg string) (bool, error)
	MarkCancelled(ctx context.Context, jobID string) (bool, error)
	IncrementAttempts(ctx context.Context, jobID string) (int, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CreditLedger defines the append-only balance store. Deduct and Refund are
// atomic relative to the balance and idempotent relative to a job.
type CreditLedger interface {
	Balance(ctx context.Context, userID string) (int64, error)
	Deduct(ctx context.Context, userID string, amount int64, jobID, reason string) (int64, error)
	// Refund returns the new balance, or nil when the job was already
	// refunded or carries zero cost. A nil result is not an error.
	Refund(ctx context.Context, jobID, reason string) (*int64, error)
	Grant(ctx context.Context, userID string, amount int64, txType CreditTransactionType, reason string) (int64, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]CreditTransaction, error)
}

// AccountRepository exposes provider accounts for scheduling.
type AccountRepository interface {
	// ListActive returns active accounts ordered by priority descending,
	// then id ascending, so scheduling is reproducible.
	ListActive(ctx context.Context) ([]ProviderAccount, error)
	GetByID(ctx context.Context, id string) (*ProviderAccount, error)
}

// PlanRepository resolves subscription plans.
type PlanRepository interface {
	// GetForUser returns nil (no error) when the user has no plan reference.
	GetForUser(ctx context.Context, userID string) (*SubscriptionPlan, error)
}

// UserRepository defines access methods for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
