package ledger

import (
	"context"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
)

// Service fronts the credit ledger for the request path. All balance
// mutations stay append-only underneath; this layer only adds the
// check-before-submit convenience and audit logging.
type Service struct {
	ledger domain.CreditLedger
	logger infra.Logger
}

// NewService creates the ledger service.
func NewService(ledger domain.CreditLedger, logger infra.Logger) *Service {
	return &Service{ledger: ledger, logger: logger}
}

// CheckBalance reports whether the user can afford amount, and their current
// balance either way.
func (s *Service) CheckBalance(ctx context.Context, userID string, amount int64) (bool, int64, error) {
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return false, 0, err
	}
	return balance >= amount, balance, nil
}

// Deduct charges the user for a job.
func (s *Service) Deduct(ctx context.Context, userID string, amount int64, jobID, reason string) (int64, error) {
	balance, err := s.ledger.Deduct(ctx, userID, amount, jobID, reason)
	if err != nil {
		return 0, err
	}
	s.logger.Info().
		Str("user_id", userID).
		Str("job_id", jobID).
		Int64("amount", amount).
		Int64("balance", balance).
		Msg("ledger: credits deducted")
	return balance, nil
}

// Refund returns a job's cost to its owner; nil means the refund already
// happened or the job cost nothing.
func (s *Service) Refund(ctx context.Context, jobID, reason string) (*int64, error) {
	return s.ledger.Refund(ctx, jobID, reason)
}

// Grant applies an administrative balance change.
func (s *Service) Grant(ctx context.Context, userID string, amount int64, txType domain.CreditTransactionType, reason string) (int64, error) {
	return s.ledger.Grant(ctx, userID, amount, txType, reason)
}

// History returns the user's recent transactions.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.ledger.ListByUser(ctx, userID, limit)
}
