package domain

import "time"

// CreditTransactionType enumerates ledger entry kinds.
type CreditTransactionType string

const (
	CreditTxDeduct     CreditTransactionType = "deduct"
	CreditTxRefund     CreditTransactionType = "refund"
	CreditTxAdminAdd   CreditTransactionType = "admin_add"
	CreditTxAdminReset CreditTransactionType = "admin_reset"
	CreditTxInitial    CreditTransactionType = "initial"
)

// CreditTransaction is one append-only balance change. The user's current
// balance is always the BalanceAfter of their most recent transaction.
type CreditTransaction struct {
	ID            string
	UserID        string
	JobID         *string
	Type          CreditTransactionType
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Reason        string
	CreatedAt     time.Time
}
