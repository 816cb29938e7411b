package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
)

type transactionResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Amount       int64     `json:"amount"`
	BalanceAfter int64     `json:"balance_after"`
	JobID        *string   `json:"job_id,omitempty"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreditBalance returns the caller's current balance.
func (a *App) CreditBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	_, balance, err := a.Ledger.CheckBalance(r.Context(), userID, 0)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load balance")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"balance": balance})
}

// CreditHistory returns the caller's recent ledger entries.
func (a *App) CreditHistory(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := a.Ledger.History(r.Context(), userID, limit)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load history")
		return
	}
	items := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		items = append(items, toTransactionResponse(tx))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func toTransactionResponse(tx domain.CreditTransaction) transactionResponse {
	return transactionResponse{
		ID:           tx.ID,
		Type:         string(tx.Type),
		Amount:       tx.Amount,
		BalanceAfter: tx.BalanceAfter,
		JobID:        tx.JobID,
		Reason:       tx.Reason,
		CreatedAt:    tx.CreatedAt,
	}
}
