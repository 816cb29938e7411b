package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/sqlinline"
)

// PlanRepositoryPG implements domain.PlanRepository.
type PlanRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewPlanRepository creates a new subscription plan repository.
func NewPlanRepository(sql infra.SQLExecutor) *PlanRepositoryPG {
	return &PlanRepositoryPG{sql: sql}
}

// GetForUser returns the user's attached plan, or nil when the user has no
// plan reference. Callers fall back to the hardcoded default limits.
func (r *PlanRepositoryPG) GetForUser(ctx context.Context, userID string) (*domain.SubscriptionPlan, error) {
	var p domain.SubscriptionPlan
	row := r.sql.QueryRow(ctx, sqlinline.QSelectPlanForUser, userID)
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&p.TotalConcurrentLimit,
		&p.ImageConcurrentLimit,
		&p.VideoConcurrentLimit,
		&p.QueueLimit,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

var _ domain.PlanRepository = (*PlanRepositoryPG)(nil)

// UserRepositoryPG implements domain.UserRepository.
type UserRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewUserRepository creates a new user repository.
func NewUserRepository(sql infra.SQLExecutor) *UserRepositoryPG {
	return &UserRepositoryPG{sql: sql}
}

// GetByID fetches a user by identifier.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	row := r.sql.QueryRow(ctx, sqlinline.QSelectUserByID, id)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PlanID, &u.CreditBalance, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

var _ domain.UserRepository = (*UserRepositoryPG)(nil)
