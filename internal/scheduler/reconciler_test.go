package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers"
)

var errBoom = errors.New("provider unreachable")

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want domain.JobStatus
	}{
		{"queued", domain.JobStatusPending},
		{"IN_QUEUE", domain.JobStatusPending},
		{"waiting", domain.JobStatusPending},
		{"running", domain.JobStatusProcessing},
		{"in_progress", domain.JobStatusProcessing},
		{"done", domain.JobStatusCompleted},
		{"SUCCEEDED", domain.JobStatusCompleted},
		{"success", domain.JobStatusCompleted},
		{"completed", domain.JobStatusCompleted},
		{"error", domain.JobStatusFailed},
		{"failed", domain.JobStatusFailed},
		{"canceled", domain.JobStatusFailed},
		{"cancelled", domain.JobStatusFailed},
		{"something-new", domain.JobStatusProcessing},
		{"", domain.JobStatusProcessing},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, NormalizeStatus(tc.in), "status %q", tc.in)
	}
}

type reconcilerFixture struct {
	store      *fakeStore
	ledger     *fakeLedger
	client     *fakeClient
	reconciler *Reconciler
}

func newReconcilerFixture(plans *fakePlans, accounts []domain.ProviderAccount) *reconcilerFixture {
	store := newFakeStore()
	ledger := newFakeLedger(store)
	client := &fakeClient{polls: make(map[string]providers.PollResult)}
	registry := providers.NewRegistry(client)
	accountRepo := &fakeAccounts{accounts: accounts}
	admission := NewAdmission(store, NewPlanResolver(plans))
	capacity := NewCapacity(accountRepo, store, DefaultSlowRules(nil), time.Millisecond)
	promoter := NewPromoter(store, ledger, admission, capacity, registry, nil, 5, 0, testLogger(), nil)
	reconciler := NewReconciler(store, ledger, accountRepo, registry, promoter, time.Microsecond, testLogger(), nil)
	return &reconcilerFixture{store: store, ledger: ledger, client: client, reconciler: reconciler}
}

func processingJob(store *fakeStore, user, handle string, cost int64) *domain.Job {
	acc := "acc"
	h := handle
	return store.add(domain.Job{
		UserID:        user,
		Type:          domain.JobTypeTextToImage,
		ModelID:       "model-x",
		Status:        domain.JobStatusProcessing,
		CreditsCost:   cost,
		ProviderJobID: &h,
		AccountID:     &acc,
	})
}

func TestSweepCompletesJobAndPromotes(t *testing.T) {
	f := newReconcilerFixture(&fakePlans{}, []domain.ProviderAccount{account("acc", 1, 4, 4, 2, 2)})

	running := processingJob(f.store, "u1", "h1", 4)
	queued := f.store.add(domain.Job{UserID: "u1", Type: domain.JobTypeTextToImage, ModelID: "model-x"})
	f.client.polls["h1"] = providers.PollResult{Status: "succeeded", OutputURL: "https://cdn.example/out.png"}

	require.NoError(t, f.reconciler.Sweep(context.Background()))

	done := f.store.get(running.ID)
	require.Equal(t, domain.JobStatusCompleted, done.Status)
	require.NotNil(t, done.OutputURL)
	require.Equal(t, "https://cdn.example/out.png", *done.OutputURL)
	require.NotNil(t, done.CompletedAt)

	// The freed slot admits the user's queued job in the same sweep.
	require.Equal(t, domain.JobStatusProcessing, f.store.get(queued.ID).Status)
}

func TestSweepFailsJobAndRefundsOnce(t *testing.T) {
	f := newReconcilerFixture(&fakePlans{}, []domain.ProviderAccount{account("acc", 1, 4, 4, 2, 2)})

	running := processingJob(f.store, "u1", "h1", 4)
	f.client.polls["h1"] = providers.PollResult{Status: "error", Error: "content policy violation"}

	require.NoError(t, f.reconciler.Sweep(context.Background()))

	failed := f.store.get(running.ID)
	require.Equal(t, domain.JobStatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	require.Equal(t, "content policy violation", *failed.ErrorMessage)
	require.Equal(t, 1, f.ledger.refundCount(running.ID))

	// A repeat sweep sees a terminal job: nothing to poll, no second refund.
	require.NoError(t, f.reconciler.Sweep(context.Background()))
	require.Equal(t, 1, f.ledger.refundCount(running.ID))
}

func TestSweepNeverRegressesProcessing(t *testing.T) {
	f := newReconcilerFixture(&fakePlans{}, nil)

	running := processingJob(f.store, "u1", "h1", 4)
	// The provider queue may briefly report the task as queued again;
	// locally the job must stay processing.
	f.client.polls["h1"] = providers.PollResult{Status: "queued"}

	require.NoError(t, f.reconciler.Sweep(context.Background()))
	require.Equal(t, domain.JobStatusProcessing, f.store.get(running.ID).Status)
}

func TestSweepVisitsEveryPollableJob(t *testing.T) {
	f := newReconcilerFixture(&fakePlans{}, nil)

	stillRunning := processingJob(f.store, "u1", "h1", 4)
	finished := processingJob(f.store, "u2", "h2", 4)
	f.client.polls["h1"] = providers.PollResult{Status: "running"}
	f.client.polls["h2"] = providers.PollResult{Status: "succeeded", OutputURL: "https://cdn.example/ok.png"}

	require.NoError(t, f.reconciler.Sweep(context.Background()))
	require.Equal(t, domain.JobStatusProcessing, f.store.get(stillRunning.ID).Status)
	require.Equal(t, domain.JobStatusCompleted, f.store.get(finished.ID).Status)
}

func TestSweepContinuesPastPollErrors(t *testing.T) {
	f := newReconcilerFixture(&fakePlans{}, nil)

	broken := processingJob(f.store, "u1", "h1", 4)
	finished := processingJob(f.store, "u2", "h2", 4)
	f.client.pollErrs = map[string]error{"h1": errBoom}
	f.client.polls["h2"] = providers.PollResult{Status: "succeeded", OutputURL: "https://cdn.example/ok.png"}

	require.NoError(t, f.reconciler.Sweep(context.Background()))

	// The failing poll is logged and skipped; the job after it still settles.
	require.Equal(t, domain.JobStatusProcessing, f.store.get(broken.ID).Status)
	require.Equal(t, domain.JobStatusCompleted, f.store.get(finished.ID).Status)
}

func TestSweepPollsWithAccountCredentials(t *testing.T) {
	f := newReconcilerFixture(&fakePlans{}, []domain.ProviderAccount{
		{ID: "acc", Credentials: "acct-secret", IsActive: true},
	})

	processingJob(f.store, "u1", "h1", 4)
	f.client.polls["h1"] = providers.PollResult{Status: "running"}

	require.NoError(t, f.reconciler.Sweep(context.Background()))

	// The poll runs under the key of the account the job was dispatched to,
	// not the client's own key.
	require.Equal(t, "acct-secret", f.client.pollCredentials("h1"))
}

func TestSweepDefaultsFailureMessage(t *testing.T) {
	f := newReconcilerFixture(&fakePlans{}, nil)

	running := processingJob(f.store, "u1", "h1", 4)
	f.client.polls["h1"] = providers.PollResult{Status: "failed"}

	require.NoError(t, f.reconciler.Sweep(context.Background()))
	failed := f.store.get(running.ID)
	require.NotNil(t, failed.ErrorMessage)
	require.Equal(t, "provider reported failure", *failed.ErrorMessage)
}
