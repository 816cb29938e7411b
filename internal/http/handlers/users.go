package handlers

import (
	"errors"
	"net/http"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
)

// Me returns the caller's profile, plan reference, and live balance.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "user not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load user")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":             user.ID,
		"email":          user.Email,
		"name":           user.Name,
		"plan_id":        user.PlanID,
		"credit_balance": user.CreditBalance,
		"created_at":     user.CreatedAt,
	})
}
