package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/leductu204/mit-img-banana-sub000/internal/adapter/repo"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
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
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	jobs := repo.NewJobRepository(runner)
	credits := repo.NewCreditLedger(runner)
	accounts := repo.NewAccountRepository(runner)
	plans := repo.NewPlanRepository(runner)

	metrics := infra.NewMetrics(prometheus.NewRegistry())

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: provider setup failed")
	}

	resolver := scheduler.NewPlanResolver(plans)
	admission := scheduler.NewAdmission(jobs, resolver)
	capacity := scheduler.NewCapacity(accounts, jobs, scheduler.DefaultSlowRules(cfg.SlowModels), cfg.CapacityWaitInterval)
	promoter := scheduler.NewPromoter(jobs, credits, admission, capacity, registry, nil, cfg.MaxDispatchAttempts, cfg.CapacityWaitTimeout, logger, metrics)

	reconciler := scheduler.NewReconciler(jobs, credits, accounts, registry, promoter, cfg.ProviderPollDelay, logger, metrics)
	reaper := scheduler.NewReaper(jobs, credits, accounts, registry, cfg.StaleAfter, logger, metrics)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return scheduler.Loop{
			Name:     "reconciler",
			Interval: cfg.ReconcileInterval,
			Sweep:    reconciler.Sweep,
			Logger:   logger,
		}.Run(ctx)
	})
	group.Go(func() error {
		return scheduler.Loop{
			Name:     "reaper",
			Interval: cfg.ReapInterval,
			Sweep:    reaper.Sweep,
			Logger:   logger,
		}.Run(ctx)
	})

	retention := scheduler.NewRetention(jobs, cfg.RetentionDays, logger)
	if retention.Enabled() {
		schedule := cron.New()
		if _, err := schedule.AddFunc("@daily", func() { retention.Sweep(ctx) }); err != nil {
			logger.Fatal().Err(err).Msg("worker: retention schedule invalid")
		}
		schedule.Start()
		defer schedule.Stop()
	}

	logger.Info().Msg("worker: started")
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
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
