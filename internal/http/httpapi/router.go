package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leductu204/mit-img-banana-sub000/internal/http/handlers"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/middleware"
)

// NewRouter wires the public API surface. Authenticated job and credit
// routes sit behind the bearer-token check; health and metrics stay open.
func NewRouter(app *handlers.App, cfg *infra.Config, registry *prometheus.Registry, country middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimiddleware.RequestID,
		chimiddleware.RealIP,
		chimiddleware.Recoverer,
		middleware.I18N(country),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitPerMin, time.Minute))

		r.Get("/v1/me", app.Me)
		r.Route("/v1/jobs", func(r chi.Router) {
			r.Post("/", app.JobCreate)
			r.Get("/{job_id}", app.JobStatus)
			r.Post("/{job_id}/cancel", app.JobCancel)
		})
		r.Route("/v1/credits", func(r chi.Router) {
			r.Get("/", app.CreditBalance)
			r.Get("/history", app.CreditHistory)
		})
	})

	return r
}
