package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
)

// SlowRules classifies jobs that hold provider capacity disproportionately
// long. Slow jobs are gated by a second, stricter per-account cap.
type SlowRules struct {
	Models              map[string]struct{}
	ImageSlowPixels     int
	VideoBaselinePixels int
	SlowVideoSeconds    int
}

// DefaultSlowRules returns the stock thresholds: images at the top resolution
// tier, video above 720p or at least ten seconds long, plus an explicit
// model list.
func DefaultSlowRules(slowModels []string) SlowRules {
	models := make(map[string]struct{}, len(slowModels))
	for _, m := range slowModels {
		models[m] = struct{}{}
	}
	return SlowRules{
		Models:              models,
		ImageSlowPixels:     2048 * 2048,
		VideoBaselinePixels: 1280 * 720,
		SlowVideoSeconds:    10,
	}
}

// Classify reports whether the job is slow under these rules.
func (r SlowRules) Classify(job *domain.Job) bool {
	if _, ok := r.Models[job.ModelID]; ok {
		return true
	}
	pixels := job.Width * job.Height
	if job.Type.Media() == domain.MediaVideo {
		return pixels > r.VideoBaselinePixels || job.DurationSeconds >= r.SlowVideoSeconds
	}
	return pixels >= r.ImageSlowPixels
}

// Capacity picks which provider account executes an admitted job. Account
// usage is derived from the job store on every call; accounts hold no
// counters of their own.
type Capacity struct {
	accounts     domain.AccountRepository
	jobs         domain.JobRepository
	rules        SlowRules
	waitInterval time.Duration
}

// NewCapacity creates the account capacity scheduler.
func NewCapacity(accounts domain.AccountRepository, jobs domain.JobRepository, rules SlowRules, waitInterval time.Duration) *Capacity {
	if waitInterval <= 0 {
		waitInterval = 2 * time.Second
	}
	return &Capacity{accounts: accounts, jobs: jobs, rules: rules, waitInterval: waitInterval}
}

// Classify applies the slow rules to a job.
func (c *Capacity) Classify(job *domain.Job) bool {
	return c.rules.Classify(job)
}

// Pick returns the first account, in priority order, with headroom for the
// job. No active accounts and no headroom resolve to the same
// domain.ErrCapacityUnavailable: the caller decides whether to queue.
func (c *Capacity) Pick(ctx context.Context, job *domain.Job) (*domain.ProviderAccount, error) {
	accounts, err := c.accounts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	kind := job.Type.Media()
	for i := range accounts {
		account := &accounts[i]
		usage, err := c.jobs.AccountUsage(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("account usage %s: %w", account.ID, err)
		}
		if usage.ForMedia(kind) >= account.MaxParallel(kind) {
			continue
		}
		if job.Slow && usage.SlowForMedia(kind) >= account.MaxSlow(kind) {
			continue
		}
		return account, nil
	}
	return nil, domain.ErrCapacityUnavailable
}

// PickWait is the blocking variant: it re-polls Pick on a fixed interval
// until an account frees up or the timeout elapses.
func (c *Capacity) PickWait(ctx context.Context, job *domain.Job, timeout time.Duration) (*domain.ProviderAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.waitInterval)
	defer ticker.Stop()

	for {
		account, err := c.Pick(ctx, job)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, domain.ErrCapacityUnavailable) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, domain.ErrCapacityUnavailable
		case <-ticker.C:
		}
	}
}
