package scheduler

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers"
)

func testLogger() infra.Logger {
	return zerolog.New(io.Discard)
}

// fakeStore is an in-memory domain.JobRepository mirroring the conditional
// transition semantics of the SQL implementation.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	seq  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*domain.Job)}
}

func (s *fakeStore) add(job domain.Job) *domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", s.seq)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().Add(time.Duration(s.seq) * time.Millisecond)
	}
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	copied := job
	s.jobs[copied.ID] = &copied
	return &copied
}

func (s *fakeStore) get(id string) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *fakeStore) Create(ctx context.Context, job *domain.Job) error {
	created := s.add(*job)
	job.ID = created.ID
	job.CreatedAt = created.CreatedAt
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeStore) GetForUser(ctx context.Context, jobID, userID string) (*domain.Job, error) {
	job, err := s.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (s *fakeStore) CountActiveByUser(ctx context.Context, userID string) (domain.UsageCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var usage domain.UsageCounts
	for _, job := range s.jobs {
		if job.UserID != userID || job.Status != domain.JobStatusProcessing {
			continue
		}
		usage.Total++
		if job.Type.Media() == domain.MediaVideo {
			usage.Videos++
		} else {
			usage.Images++
		}
	}
	return usage, nil
}

func (s *fakeStore) CountPendingByUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, job := range s.jobs {
		if job.UserID == userID && job.Status == domain.JobStatusPending {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) ListPendingByUser(ctx context.Context, userID string) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []domain.Job
	for _, job := range s.jobs {
		if job.UserID == userID && job.Status == domain.JobStatusPending {
			pending = append(pending, *job)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

func (s *fakeStore) ListPollable(ctx context.Context) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.Status.Terminal() || job.ProviderJobID == nil {
			continue
		}
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) ListStalePending(ctx context.Context, olderThan time.Time) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusPending && job.CreatedAt.Before(olderThan) {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *fakeStore) AccountUsage(ctx context.Context, accountID string) (domain.AccountUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var usage domain.AccountUsage
	for _, job := range s.jobs {
		if job.AccountID == nil || *job.AccountID != accountID || job.Status != domain.JobStatusProcessing {
			continue
		}
		if job.Type.Media() == domain.MediaVideo {
			usage.Videos++
			if job.Slow {
				usage.SlowVideos++
			}
		} else {
			usage.Images++
			if job.Slow {
				usage.SlowImages++
			}
		}
	}
	return usage, nil
}

func (s *fakeStore) ReserveProcessing(ctx context.Context, jobID, accountID, providerJobID string, limits domain.PlanLimits) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusPending {
		return false, nil
	}
	var usage domain.UsageCounts
	for _, other := range s.jobs {
		if other.UserID != job.UserID || other.Status != domain.JobStatusProcessing {
			continue
		}
		usage.Total++
		if other.Type.Media() == domain.MediaVideo {
			usage.Videos++
		} else {
			usage.Images++
		}
	}
	kind := job.Type.Media()
	if usage.Total >= limits.Total || usage.ForMedia(kind) >= limits.ForMedia(kind) {
		return false, nil
	}
	now := time.Now()
	job.Status = domain.JobStatusProcessing
	job.AccountID = &accountID
	job.ProviderJobID = &providerJobID
	job.StartedAt = &now
	return true, nil
}

func (s *fakeStore) MarkCompleted(ctx context.Context, jobID, outputURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusProcessing {
		return false, nil
	}
	now := time.Now()
	job.Status = domain.JobStatusCompleted
	job.OutputURL = &outputURL
	job.CompletedAt = &now
	return true, nil
}

func (s *fakeStore) MarkFailed(ctx context.Context, jobID, errMsg string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || (job.Status != domain.JobStatusPending && job.Status != domain.JobStatusProcessing) {
		return false, nil
	}
	now := time.Now()
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = &errMsg
	job.CompletedAt = &now
	return true, nil
}

func (s *fakeStore) MarkCancelled(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok || (job.Status != domain.JobStatusPending && job.Status != domain.JobStatusProcessing) {
		return false, nil
	}
	now := time.Now()
	job.Status = domain.JobStatusCancelled
	job.CompletedAt = &now
	return true, nil
}

func (s *fakeStore) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	job.Attempts++
	return job.Attempts, nil
}

func (s *fakeStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

var _ domain.JobRepository = (*fakeStore)(nil)

type ledgerEntry struct {
	userID string
	jobID  string
	txType domain.CreditTransactionType
	amount int64
}

// fakeLedger reads job state from the store so the one-shot refund claim
// behaves like the SQL version.
type fakeLedger struct {
	mu       sync.Mutex
	store    *fakeStore
	balances map[string]int64
	entries  []ledgerEntry
}

func newFakeLedger(store *fakeStore) *fakeLedger {
	return &fakeLedger{store: store, balances: make(map[string]int64)}
}

func (l *fakeLedger) Balance(ctx context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *fakeLedger) Deduct(ctx context.Context, userID string, amount int64, jobID, reason string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[userID] < amount {
		return 0, domain.ErrInsufficientBalance
	}
	l.balances[userID] -= amount
	l.entries = append(l.entries, ledgerEntry{userID, jobID, domain.CreditTxDeduct, -amount})
	return l.balances[userID], nil
}

func (l *fakeLedger) Refund(ctx context.Context, jobID, reason string) (*int64, error) {
	l.store.mu.Lock()
	job, ok := l.store.jobs[jobID]
	if !ok || job.CreditsRefunded || job.CreditsCost <= 0 ||
		(job.Status != domain.JobStatusFailed && job.Status != domain.JobStatusCancelled) {
		l.store.mu.Unlock()
		return nil, nil
	}
	job.CreditsRefunded = true
	userID, cost := job.UserID, job.CreditsCost
	l.store.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += cost
	l.entries = append(l.entries, ledgerEntry{userID, jobID, domain.CreditTxRefund, cost})
	balance := l.balances[userID]
	return &balance, nil
}

func (l *fakeLedger) Grant(ctx context.Context, userID string, amount int64, txType domain.CreditTransactionType, reason string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] += amount
	l.entries = append(l.entries, ledgerEntry{userID, "", txType, amount})
	return l.balances[userID], nil
}

func (l *fakeLedger) ListByUser(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	return nil, nil
}

func (l *fakeLedger) refundCount(jobID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, e := range l.entries {
		if e.jobID == jobID && e.txType == domain.CreditTxRefund {
			count++
		}
	}
	return count
}

var _ domain.CreditLedger = (*fakeLedger)(nil)

type fakeAccounts struct {
	accounts []domain.ProviderAccount
}

func (f *fakeAccounts) ListActive(ctx context.Context) ([]domain.ProviderAccount, error) {
	active := make([]domain.ProviderAccount, 0, len(f.accounts))
	for _, a := range f.accounts {
		if a.IsActive {
			active = append(active, a)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority > active[j].Priority
		}
		return active[i].ID < active[j].ID
	})
	return active, nil
}

func (f *fakeAccounts) GetByID(ctx context.Context, id string) (*domain.ProviderAccount, error) {
	for i := range f.accounts {
		if f.accounts[i].ID == id {
			return &f.accounts[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

var _ domain.AccountRepository = (*fakeAccounts)(nil)

type fakePlans struct {
	byUser map[string]*domain.SubscriptionPlan
}

func (f *fakePlans) GetForUser(ctx context.Context, userID string) (*domain.SubscriptionPlan, error) {
	if f == nil || f.byUser == nil {
		return nil, nil
	}
	return f.byUser[userID], nil
}

var _ domain.PlanRepository = (*fakePlans)(nil)

// fakeClient scripts provider behavior per test. The zero value dispatches
// successfully with sequential handles.
type fakeClient struct {
	mu           sync.Mutex
	dispatchErr  error
	dispatchErrN int
	dispatched   []string
	polls        map[string]providers.PollResult
	pollErrs     map[string]error
	pollCreds    map[string]string
	cancelled    []string
	seq          int
}

func (c *fakeClient) Dispatch(ctx context.Context, req providers.DispatchRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dispatchErr != nil && (c.dispatchErrN == 0 || len(c.dispatched) < c.dispatchErrN) {
		c.dispatched = append(c.dispatched, "")
		return "", c.dispatchErr
	}
	c.seq++
	handle := fmt.Sprintf("handle-%d", c.seq)
	c.dispatched = append(c.dispatched, req.JobID)
	return handle, nil
}

func (c *fakeClient) Poll(ctx context.Context, req providers.PollRequest) (providers.PollResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pollCreds == nil {
		c.pollCreds = make(map[string]string)
	}
	c.pollCreds[req.Handle] = req.Credentials
	if err, ok := c.pollErrs[req.Handle]; ok {
		return providers.PollResult{}, err
	}
	if result, ok := c.polls[req.Handle]; ok {
		return result, nil
	}
	return providers.PollResult{Status: "running"}, nil
}

func (c *fakeClient) Cancel(ctx context.Context, req providers.CancelRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, req.Handle)
	return nil
}

func (c *fakeClient) pollCredentials(handle string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollCreds[handle]
}

var (
	_ providers.Client    = (*fakeClient)(nil)
	_ providers.Canceller = (*fakeClient)(nil)
)
