package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/sqlinline"
)

// AccountRepositoryPG implements domain.AccountRepository.
type AccountRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAccountRepository creates a new provider account repository.
func NewAccountRepository(sql infra.SQLExecutor) *AccountRepositoryPG {
	return &AccountRepositoryPG{sql: sql}
}

// ListActive returns active accounts in scheduling order.
func (r *AccountRepositoryPG) ListActive(ctx context.Context) ([]domain.ProviderAccount, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectActiveAccounts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.ProviderAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, rows.Err()
}

// GetByID fetches one provider account.
func (r *AccountRepositoryPG) GetByID(ctx context.Context, id string) (*domain.ProviderAccount, error) {
	return scanAccount(r.sql.QueryRow(ctx, sqlinline.QSelectAccountByID, id))
}

func scanAccount(row pgx.Row) (*domain.ProviderAccount, error) {
	var a domain.ProviderAccount
	if err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Provider,
		&a.Credentials,
		&a.MaxParallelImages,
		&a.MaxParallelVideos,
		&a.MaxSlowImages,
		&a.MaxSlowVideos,
		&a.Priority,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

var _ domain.AccountRepository = (*AccountRepositoryPG)(nil)
