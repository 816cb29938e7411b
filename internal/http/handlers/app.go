package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/ledger"
	"github.com/leductu204/mit-img-banana-sub000/internal/middleware"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers"
	"github.com/leductu204/mit-img-banana-sub000/internal/scheduler"
)

// App bundles the services the HTTP layer depends on.
type App struct {
	Jobs      domain.JobRepository
	Users     domain.UserRepository
	Accounts  domain.AccountRepository
	Ledger    *ledger.Service
	Admission *scheduler.Admission
	Capacity  *scheduler.Capacity
	Promoter  *scheduler.Promoter
	Registry  *providers.Registry
	Logger    infra.Logger
	Metrics   *infra.Metrics
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error":   code,
		"message": message,
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
