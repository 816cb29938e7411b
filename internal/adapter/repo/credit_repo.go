package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/sqlinline"
)

// CreditLedgerPG implements domain.CreditLedger. Atomicity and idempotency
// live in the SQL statements, not here: deduct and refund are single
// statements, so concurrent writers serialize inside PostgreSQL.
type CreditLedgerPG struct {
	sql infra.SQLExecutor
}

// NewCreditLedger creates a new ledger repository backed by PostgreSQL.
func NewCreditLedger(sql infra.SQLExecutor) *CreditLedgerPG {
	return &CreditLedgerPG{sql: sql}
}

// Balance returns the user's current credit balance.
func (r *CreditLedgerPG) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectBalance, userID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// Deduct appends a deduction and returns the new balance. Returns
// domain.ErrInsufficientBalance when the balance would go negative.
func (r *CreditLedgerPG) Deduct(ctx context.Context, userID string, amount int64, jobID, reason string) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("deduct amount must be non-negative, got %d", amount)
	}
	var balance int64
	row := r.sql.QueryRow(ctx, sqlinline.QDeductCredits, userID, amount, nullableString(jobID), reason)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrInsufficientBalance
		}
		return 0, err
	}
	return balance, nil
}

// Refund returns the job's cost to its owner. The nil, nil return means the
// refund was already issued (or the job cost nothing); callers treat it as a
// no-op, never as an error.
func (r *CreditLedgerPG) Refund(ctx context.Context, jobID, reason string) (*int64, error) {
	var balance int64
	row := r.sql.QueryRow(ctx, sqlinline.QRefundCredits, jobID, reason)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// Grant appends an administrative balance change.
func (r *CreditLedgerPG) Grant(ctx context.Context, userID string, amount int64, txType domain.CreditTransactionType, reason string) (int64, error) {
	var balance int64
	row := r.sql.QueryRow(ctx, sqlinline.QAdjustCredits, userID, amount, txType, reason)
	if err := row.Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, err
	}
	return balance, nil
}

// ListByUser returns the user's most recent transactions.
func (r *CreditLedgerPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectTransactions, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []domain.CreditTransaction
	for rows.Next() {
		var tx domain.CreditTransaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.JobID, &tx.Type, &tx.Amount, &tx.BalanceBefore, &tx.BalanceAfter, &tx.Reason, &tx.CreatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ domain.CreditLedger = (*CreditLedgerPG)(nil)
