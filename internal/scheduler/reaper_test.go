package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers"
)

func newTestReaper(store *fakeStore, ledger *fakeLedger, client *fakeClient, threshold time.Duration, now time.Time) *Reaper {
	reaper := NewReaper(store, ledger, &fakeAccounts{}, providers.NewRegistry(client), threshold, testLogger(), nil)
	reaper.now = func() time.Time { return now }
	return reaper
}

func TestReapStalePendingJob(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(store)
	client := &fakeClient{}
	now := time.Now()
	reaper := newTestReaper(store, ledger, client, 45*time.Minute, now)

	ledger.balances["u1"] = 0
	handle := "h1"
	stale := store.add(domain.Job{
		UserID:        "u1",
		Type:          domain.JobTypeTextToImage,
		ModelID:       "model-x",
		CreditsCost:   4,
		ProviderJobID: &handle,
		CreatedAt:     now.Add(-time.Hour),
	})
	fresh := store.add(domain.Job{
		UserID:      "u1",
		Type:        domain.JobTypeTextToImage,
		CreditsCost: 4,
		CreatedAt:   now.Add(-time.Minute),
	})

	require.NoError(t, reaper.Sweep(context.Background()))

	reaped := store.get(stale.ID)
	require.Equal(t, domain.JobStatusFailed, reaped.Status)
	require.NotNil(t, reaped.ErrorMessage)
	require.Contains(t, *reaped.ErrorMessage, "pending longer than")
	require.Equal(t, 1, ledger.refundCount(stale.ID))
	balance, _ := ledger.Balance(context.Background(), "u1")
	require.Equal(t, int64(4), balance)

	// Upstream side gets a best-effort cancel since the job had a handle.
	require.Equal(t, []string{"h1"}, client.cancelled)

	require.Equal(t, domain.JobStatusPending, store.get(fresh.ID).Status)
}

func TestDoubleReapRefundsOnce(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(store)
	now := time.Now()

	stale := store.add(domain.Job{
		UserID:      "u1",
		Type:        domain.JobTypeTextToImage,
		CreditsCost: 4,
		CreatedAt:   now.Add(-time.Hour),
	})

	// Two reapers over the same store, as with two worker replicas. The
	// conditional transition and the one-shot refund keep them idempotent.
	first := newTestReaper(store, ledger, &fakeClient{}, 45*time.Minute, now)
	second := newTestReaper(store, ledger, &fakeClient{}, 45*time.Minute, now)

	require.NoError(t, first.Sweep(context.Background()))
	require.NoError(t, second.Sweep(context.Background()))

	require.Equal(t, domain.JobStatusFailed, store.get(stale.ID).Status)
	require.Equal(t, 1, ledger.refundCount(stale.ID))
}

func TestConcurrentReapsRefundOnce(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(store)
	now := time.Now()

	var stale []*domain.Job
	for i := 0; i < 8; i++ {
		stale = append(stale, store.add(domain.Job{
			UserID:      "u1",
			Type:        domain.JobTypeTextToImage,
			CreditsCost: 4,
			CreatedAt:   now.Add(-time.Hour),
		}))
	}

	first := newTestReaper(store, ledger, &fakeClient{}, 45*time.Minute, now)
	second := newTestReaper(store, ledger, &fakeClient{}, 45*time.Minute, now)

	var wg sync.WaitGroup
	for _, reaper := range []*Reaper{first, second} {
		wg.Add(1)
		go func(r *Reaper) {
			defer wg.Done()
			if err := r.Sweep(context.Background()); err != nil {
				t.Error(err)
			}
		}(reaper)
	}
	wg.Wait()

	for _, job := range stale {
		require.Equal(t, domain.JobStatusFailed, store.get(job.ID).Status)
		require.Equal(t, 1, ledger.refundCount(job.ID))
	}
	balance, _ := ledger.Balance(context.Background(), "u1")
	require.Equal(t, int64(8*4), balance)
}

func TestReapIgnoresProcessingJobs(t *testing.T) {
	store := newFakeStore()
	ledger := newFakeLedger(store)
	now := time.Now()
	reaper := newTestReaper(store, ledger, &fakeClient{}, 45*time.Minute, now)

	running := store.add(domain.Job{
		UserID:    "u1",
		Type:      domain.JobTypeTextToImage,
		Status:    domain.JobStatusProcessing,
		CreatedAt: now.Add(-2 * time.Hour),
	})

	require.NoError(t, reaper.Sweep(context.Background()))
	require.Equal(t, domain.JobStatusProcessing, store.get(running.ID).Status)
}

func TestRetentionSweepDeletesOldTerminalJobs(t *testing.T) {
	store := newFakeStore()
	retention := NewRetention(store, 7, testLogger())
	require.True(t, retention.Enabled())

	old := time.Now().Add(-8 * 24 * time.Hour)
	recent := time.Now().Add(-time.Hour)
	done := store.add(domain.Job{UserID: "u1", Type: domain.JobTypeTextToImage, Status: domain.JobStatusCompleted, CompletedAt: &old})
	kept := store.add(domain.Job{UserID: "u1", Type: domain.JobTypeTextToImage, Status: domain.JobStatusCompleted, CompletedAt: &recent})
	active := store.add(domain.Job{UserID: "u1", Type: domain.JobTypeTextToImage, Status: domain.JobStatusProcessing})

	retention.Sweep(context.Background())

	_, err := store.GetByID(context.Background(), done.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetByID(context.Background(), kept.ID)
	require.NoError(t, err)
	_, err = store.GetByID(context.Background(), active.ID)
	require.NoError(t, err)

	require.False(t, NewRetention(store, 0, testLogger()).Enabled())
}
