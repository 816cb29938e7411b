package domain

import "time"

// User is the subscription holder owning jobs and a credit balance. The
// balance column mirrors the latest ledger entry and exists so ledger writes
// can serialize on a single row lock.
type User struct {
	ID            string
	Email         string
	Name          string
	PlanID        *string
	CreditBalance int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
