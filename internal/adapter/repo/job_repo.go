package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository. It needs the transaction
// capability for the reserve gate; everything else runs single statements.
type JobRepositoryPG struct {
	sql infra.SQLClient
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLClient) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job record in pending status.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		job.Type,
		job.ModelID,
		job.CreditsCost,
		job.Prompt,
		job.SourceURL,
		job.Width,
		job.Height,
		job.DurationSeconds,
		job.Slow,
	)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
}

// GetForUser fetches a job only when it belongs to the given user.
func (r *JobRepositoryPG) GetForUser(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobForUser, jobID, userID))
}

// CountActiveByUser returns the user's processing counts split by media kind.
func (r *JobRepositoryPG) CountActiveByUser(ctx context.Context, userID string) (domain.UsageCounts, error) {
	var usage domain.UsageCounts
	row := r.sql.QueryRow(ctx, sqlinline.QCountActiveByUser, userID)
	if err := row.Scan(&usage.Total, &usage.Images, &usage.Videos); err != nil {
		return domain.UsageCounts{}, err
	}
	return usage, nil
}

// CountPendingByUser returns the size of the user's pending queue.
func (r *JobRepositoryPG) CountPendingByUser(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountPendingByUser, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// ListPendingByUser returns the user's pending jobs, oldest first.
func (r *JobRepositoryPG) ListPendingByUser(ctx context.Context, userID string) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectPendingByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListPollable returns non-terminal jobs carrying a provider handle.
func (r *JobRepositoryPG) ListPollable(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectPollable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// ListStalePending returns pending jobs created before olderThan.
func (r *JobRepositoryPG) ListStalePending(ctx context.Context, olderThan time.Time) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectStalePending, olderThan)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanJobs(rows)
}

// AccountUsage derives the active counts scoped to one provider account.
func (r *JobRepositoryPG) AccountUsage(ctx context.Context, accountID string) (domain.AccountUsage, error) {
	var usage domain.AccountUsage
	row := r.sql.QueryRow(ctx, sqlinline.QAccountUsage, accountID)
	if err := row.Scan(&usage.Images, &usage.Videos, &usage.SlowImages, &usage.SlowVideos); err != nil {
		return domain.AccountUsage{}, err
	}
	return usage, nil
}

// ReserveProcessing applies the conditional pending→processing transition.
// It locks the owner's users row, recounts the owner's active jobs in a
// fresh statement under that lock, and only then flips the status. The
// recount statement takes its own snapshot, so a reservation committed while
// this one waited on the lock is counted and cannot be overtaken past the
// plan limits.
func (r *JobRepositoryPG) ReserveProcessing(ctx context.Context, jobID, accountID, providerJobID string, limits domain.PlanLimits) (bool, error) {
	var reserved bool
	err := r.sql.InTx(ctx, func(tx infra.SQLExecutor) error {
		var userID string
		var jobType domain.JobType
		if err := tx.QueryRow(ctx, sqlinline.QLockJobOwner, jobID).Scan(&userID, &jobType); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// The job left pending underneath us.
				return nil
			}
			return err
		}
		var usage domain.UsageCounts
		if err := tx.QueryRow(ctx, sqlinline.QCountActiveByUser, userID).Scan(&usage.Total, &usage.Images, &usage.Videos); err != nil {
			return err
		}
		kind := jobType.Media()
		if usage.Total >= limits.Total || usage.ForMedia(kind) >= limits.ForMedia(kind) {
			return nil
		}
		tag, err := tx.Exec(ctx, sqlinline.QMarkProcessing, jobID, accountID, providerJobID)
		if err != nil {
			return err
		}
		reserved = tag.RowsAffected() == 1
		return nil
	})
	return reserved, err
}

// MarkCompleted transitions processing→completed.
func (r *JobRepositoryPG) MarkCompleted(ctx context.Context, jobID, outputURL string) (bool, error) {
	return r.conditional(ctx, sqlinline.QMarkCompleted, jobID, outputURL)
}

// MarkFailed transitions pending/processing→failed.
func (r *JobRepositoryPG) MarkFailed(ctx context.Context, jobID, errMsg string) (bool, error) {
	return r.conditional(ctx, sqlinline.QMarkFailed, jobID, errMsg)
}

// MarkCancelled transitions pending/processing→cancelled.
func (r *JobRepositoryPG) MarkCancelled(ctx context.Context, jobID string) (bool, error) {
	return r.conditional(ctx, sqlinline.QMarkCancelled, jobID)
}

// IncrementAttempts bumps the dispatch attempt counter and returns the new value.
func (r *JobRepositoryPG) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	var attempts int
	if err := r.sql.QueryRow(ctx, sqlinline.QIncrementAttempts, jobID).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return attempts, nil
}

// DeleteTerminalBefore removes terminal jobs finished before cutoff.
func (r *JobRepositoryPG) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteTerminalBefore, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *JobRepositoryPG) conditional(ctx context.Context, query string, args ...any) (bool, error) {
	var id string
	if err := r.sql.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.Type,
		&job.ModelID,
		&job.Status,
		&job.CreditsCost,
		&job.CreditsRefunded,
		&job.ProviderJobID,
		&job.AccountID,
		&job.OutputURL,
		&job.ErrorMessage,
		&job.Prompt,
		&job.SourceURL,
		&job.Width,
		&job.Height,
		&job.DurationSeconds,
		&job.Slow,
		&job.Attempts,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func scanJobs(rows pgx.Rows) ([]domain.Job, error) {
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
