package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leductu204/mit-img-banana-sub000/internal/adapter/repo"
	"github.com/leductu204/mit-img-banana-sub000/internal/http/handlers"
	"github.com/leductu204/mit-img-banana-sub000/internal/http/httpapi"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra/geoip"
	"github.com/leductu204/mit-img-banana-sub000/internal/ledger"
	"github.com/leductu204/mit-img-banana-sub000/internal/middleware"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers/dashscope"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers/fal"
	"github.com/leductu204/mit-img-banana-sub000/internal/scheduler"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")
	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	jobs := repo.NewJobRepository(runner)
	credits := repo.NewCreditLedger(runner)
	accounts := repo.NewAccountRepository(runner)
	plans := repo.NewPlanRepository(runner)
	users := repo.NewUserRepository(runner)

	promReg := prometheus.NewRegistry()
	metrics := infra.NewMetrics(promReg)

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: provider setup failed")
	}

	resolver := scheduler.NewPlanResolver(plans)
	admission := scheduler.NewAdmission(jobs, resolver)
	capacity := scheduler.NewCapacity(accounts, jobs, scheduler.DefaultSlowRules(cfg.SlowModels), cfg.CapacityWaitInterval)
	promoter := scheduler.NewPromoter(jobs, credits, admission, capacity, registry, nil, cfg.MaxDispatchAttempts, 0, logger, metrics)
	ledgerSvc := ledger.NewService(credits, logger)

	var country middleware.CountryLookup
	if geo, err := geoip.NewResolver(cfg.GeoIPDBPath); err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	} else if geo != nil {
		defer geo.Close()
		country = geo.CountryCode
	}

	app := &handlers.App{
		Jobs:      jobs,
		Users:     users,
		Accounts:  accounts,
		Ledger:    ledgerSvc,
		Admission: admission,
		Capacity:  capacity,
		Promoter:  promoter,
		Registry:  registry,
		Logger:    logger,
		Metrics:   metrics,
	}
	router := httpapi.NewRouter(app, cfg, promReg, country)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("api: listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("api: server failed")
		}
	}()

	<-ctx.Done()
	if err := infra.ShutdownHTTPServer(context.Background(), cfg, server); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	logger.Info().Msg("api: stopped")
}

func buildRegistry(cfg *infra.Config, logger infra.Logger) (*providers.Registry, error) {
	registry := providers.NewRegistry(nil)

	ds, err := dashscope.NewClient(dashscope.Options{
		APIKey:  cfg.DashScopeAPIKey,
		BaseURL: cfg.DashScopeBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		return nil, err
	}
	registry.Register(ds, cfg.DashScopeModels...)

	fl, err := fal.NewClient(fal.Options{
		APIKey:  cfg.FalAPIKey,
		BaseURL: cfg.FalBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		return nil, err
	}
	registry.Register(fl, cfg.FalModels...)

	return registry, nil
}
