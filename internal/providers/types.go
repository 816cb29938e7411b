package providers

import (
	"context"
	"strings"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
)

// DispatchRequest carries everything a provider needs to start a generation.
type DispatchRequest struct {
	JobID           string
	ModelID         string
	Type            domain.JobType
	Prompt          string
	SourceURL       string
	Width           int
	Height          int
	DurationSeconds int
	Credentials     string
}

// PollResult is the provider-reported state of a dispatched job. Status uses
// the provider's own vocabulary; the reconciler owns normalization.
type PollResult struct {
	Status    string
	OutputURL string
	Error     string
}

// PollRequest identifies a dispatched job. Credentials carries the same
// per-account override as DispatchRequest: a job dispatched under an
// account's key must be polled under that key too.
type PollRequest struct {
	Handle      string
	Credentials string
}

// CancelRequest identifies a dispatched job to abort upstream.
type CancelRequest struct {
	Handle      string
	Credentials string
}

// Client is the capability set shared by all provider integrations. Dispatch
// returns an opaque handle that later Poll calls use.
type Client interface {
	Dispatch(ctx context.Context, req DispatchRequest) (string, error)
	Poll(ctx context.Context, req PollRequest) (PollResult, error)
}

// Canceller is an optional capability. Clients that can abort an upstream job
// implement it; callers type-assert and treat absence as fire-and-forget.
type Canceller interface {
	Cancel(ctx context.Context, req CancelRequest) error
}

// Registry maps model identifiers onto provider clients.
type Registry struct {
	byModel  map[string]Client
	fallback Client
}

// NewRegistry constructs an empty registry with an optional fallback client.
func NewRegistry(fallback Client) *Registry {
	return &Registry{byModel: make(map[string]Client), fallback: fallback}
}

// Register binds one or more model ids to a client.
func (r *Registry) Register(client Client, modelIDs ...string) {
	for _, id := range modelIDs {
		r.byModel[strings.TrimSpace(id)] = client
	}
}

// ForModel returns the client serving a model id, falling back when unknown.
func (r *Registry) ForModel(modelID string) (Client, bool) {
	if client, ok := r.byModel[strings.TrimSpace(modelID)]; ok {
		return client, true
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}

// Models returns the registered model ids.
func (r *Registry) Models() []string {
	ids := make([]string, 0, len(r.byModel))
	for id := range r.byModel {
		ids = append(ids, id)
	}
	return ids
}
