package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/middleware"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers"
)

const (
	defaultImageSize       = 1024
	defaultVideoWidth      = 1280
	defaultVideoHeight     = 720
	defaultVideoDuration   = 5
	maxPromptLength        = 4000
	maxDurationSeconds     = 60
)

type jobCreateRequest struct {
	Type            string `json:"type"`
	ModelID         string `json:"model_id"`
	Prompt          string `json:"prompt"`
	SourceURL       string `json:"source_url"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	DurationSeconds int    `json:"duration_seconds"`
}

type jobResponse struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	ModelID     string     `json:"model_id"`
	Status      string     `json:"status"`
	CreditsCost int64      `json:"credits_cost"`
	Slow        bool       `json:"slow"`
	QueueReason string     `json:"queue_reason,omitempty"`
	OutputURL   *string    `json:"output_url,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toJobResponse(job *domain.Job, queueReason string) jobResponse {
	return jobResponse{
		ID:          job.ID,
		Type:        string(job.Type),
		ModelID:     job.ModelID,
		Status:      string(job.Status),
		CreditsCost: job.CreditsCost,
		Slow:        job.Slow,
		QueueReason: queueReason,
		OutputURL:   job.OutputURL,
		Error:       job.ErrorMessage,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

// JobCreate accepts a generation request, charges for it, and starts it
// immediately when the caller's plan has a free slot. Otherwise the job waits
// in the pending queue and the response says why.
func (a *App) JobCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req jobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	jobType := domain.JobType(req.Type)
	if !jobType.Valid() {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported job type")
		return
	}
	if req.ModelID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "model_id required")
		return
	}
	if _, ok := a.Registry.ForModel(req.ModelID); !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "unsupported model")
		return
	}
	if req.Prompt == "" && (jobType == domain.JobTypeTextToImage || jobType == domain.JobTypeTextToVideo) {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
		return
	}
	if len(req.Prompt) > maxPromptLength {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt too long")
		return
	}
	if req.SourceURL == "" && (jobType == domain.JobTypeImageToImage || jobType == domain.JobTypeImageToVideo) {
		a.error(w, http.StatusBadRequest, "bad_request", "source_url required")
		return
	}
	applyDimensionDefaults(jobType, &req)
	if req.DurationSeconds > maxDurationSeconds {
		a.error(w, http.StatusBadRequest, "bad_request", "duration too long")
		return
	}

	job := &domain.Job{
		UserID:          userID,
		Type:            jobType,
		ModelID:         req.ModelID,
		Status:          domain.JobStatusPending,
		Prompt:          req.Prompt,
		SourceURL:       req.SourceURL,
		Width:           req.Width,
		Height:          req.Height,
		DurationSeconds: req.DurationSeconds,
	}
	job.Slow = a.Capacity.Classify(job)
	job.CreditsCost = domain.CostFor(jobType, job.Slow)

	ok, balance, err := a.Ledger.CheckBalance(r.Context(), userID, job.CreditsCost)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to check balance")
		return
	}
	if !ok {
		a.error(w, http.StatusPaymentRequired, "insufficient_balance", "not enough credits for this job")
		return
	}

	canQueue, err := a.Admission.CheckQueue(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to check queue")
		return
	}
	if !canQueue {
		a.error(w, http.StatusTooManyRequests, "queue_full", "pending queue limit reached")
		return
	}

	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}
	if _, err := a.Ledger.Deduct(r.Context(), userID, job.CreditsCost, job.ID, "job submission"); err != nil {
		// The job was never paid for, so it fails without a refund entry.
		failure := "credit deduction failed"
		if errors.Is(err, domain.ErrInsufficientBalance) {
			failure = "insufficient balance"
		}
		if _, markErr := a.Jobs.MarkFailed(r.Context(), job.ID, failure); markErr != nil {
			a.Logger.Error().Err(markErr).Str("job_id", job.ID).Msg("jobs: failed to void unpaid job")
		}
		if errors.Is(err, domain.ErrInsufficientBalance) {
			a.error(w, http.StatusPaymentRequired, "insufficient_balance", "not enough credits for this job")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to charge credits")
		return
	}
	if a.Metrics != nil {
		a.Metrics.JobsSubmitted.WithLabelValues(string(jobType)).Inc()
	}
	a.Logger.Info().
		Str("job_id", job.ID).
		Str("user_id", userID).
		Str("type", string(jobType)).
		Str("model_id", job.ModelID).
		Bool("slow", job.Slow).
		Int64("balance_before", balance).
		Str("locale", middleware.LocaleFromContext(r.Context())).
		Str("country", middleware.CountryFromContext(r.Context())).
		Msg("jobs: submitted")

	decision, err := a.Admission.Check(r.Context(), userID, jobType)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to check admission")
		return
	}
	queueReason := decision.Reason
	if decision.Allowed {
		if err := a.Promoter.TryDispatch(r.Context(), job); err != nil {
			a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: immediate dispatch failed")
		}
		// Re-read for the post-dispatch status; the job may be processing now
		// or still pending behind a capacity shortage.
		if fresh, err := a.Jobs.GetByID(r.Context(), job.ID); err == nil {
			job = fresh
		}
		if job.Status == domain.JobStatusPending && queueReason == "" {
			queueReason = "no provider capacity available"
		}
	}

	a.json(w, http.StatusAccepted, toJobResponse(job, queueReason))
}

func applyDimensionDefaults(jobType domain.JobType, req *jobCreateRequest) {
	if jobType.Media() == domain.MediaVideo {
		if req.Width <= 0 {
			req.Width = defaultVideoWidth
		}
		if req.Height <= 0 {
			req.Height = defaultVideoHeight
		}
		if req.DurationSeconds <= 0 {
			req.DurationSeconds = defaultVideoDuration
		}
		return
	}
	if req.Width <= 0 {
		req.Width = defaultImageSize
	}
	if req.Height <= 0 {
		req.Height = defaultImageSize
	}
	req.DurationSeconds = 0
}

// JobStatus returns a job owned by the caller.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Jobs.GetForUser(r.Context(), jobID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job, ""))
}

// JobCancel cancels a pending or processing job, refunds its cost, and frees
// the slot for the caller's next queued job.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Jobs.GetForUser(r.Context(), jobID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}

	cancelled, err := a.Jobs.MarkCancelled(r.Context(), job.ID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		return
	}
	if !cancelled {
		a.error(w, http.StatusConflict, "conflict", "job already finished")
		return
	}
	if a.Metrics != nil {
		a.Metrics.Transitions.WithLabelValues(string(domain.JobStatusCancelled)).Inc()
	}

	if balance, err := a.Ledger.Refund(r.Context(), job.ID, "cancelled by user"); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: cancel refund failed")
	} else if balance != nil && a.Metrics != nil {
		a.Metrics.Refunds.Inc()
	}

	if job.ProviderJobID != nil {
		a.cancelUpstream(r, job)
	}

	// The freed slot may admit the user's next queued job right away.
	if err := a.Promoter.PromoteNext(r.Context(), userID); err != nil {
		a.Logger.Error().Err(err).Str("user_id", userID).Msg("jobs: promote after cancel failed")
	}

	job.Status = domain.JobStatusCancelled
	a.json(w, http.StatusOK, toJobResponse(job, ""))
}

func (a *App) cancelUpstream(r *http.Request, job *domain.Job) {
	client, ok := a.Registry.ForModel(job.ModelID)
	if !ok {
		return
	}
	canceller, ok := client.(providers.Canceller)
	if !ok {
		return
	}
	if err := canceller.Cancel(r.Context(), providers.CancelRequest{
		Handle:      *job.ProviderJobID,
		Credentials: a.accountCredentials(r, job),
	}); err != nil {
		a.Logger.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: upstream cancel failed")
	}
}

// accountCredentials resolves the key override for the account a job ran on.
// An empty result makes the provider client fall back to its own key.
func (a *App) accountCredentials(r *http.Request, job *domain.Job) string {
	if job.AccountID == nil || a.Accounts == nil {
		return ""
	}
	account, err := a.Accounts.GetByID(r.Context(), *job.AccountID)
	if err != nil {
		a.Logger.Warn().Err(err).Str("job_id", job.ID).Str("account_id", *job.AccountID).Msg("jobs: account lookup failed")
		return ""
	}
	return account.Credentials
}
