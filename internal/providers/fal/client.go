package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/leductu204/mit-img-banana-sub000/internal/domain"
	"github.com/leductu204/mit-img-banana-sub000/internal/infra"
	"github.com/leductu204/mit-img-banana-sub000/internal/providers"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("fal: api key is required")

// Options configures the fal.ai queue client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client drives the fal.ai queue API. Queue endpoints are scoped per model,
// so the opaque handle embeds the model path alongside the request id.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type queueSubmission struct {
	Prompt          string `json:"prompt,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
	ImageSize       string `json:"image_size,omitempty"`
	DurationSeconds int    `json:"duration,omitempty"`
}

type queueResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Response  struct {
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
		Video struct {
			URL string `json:"url"`
		} `json:"video"`
	} `json:"response"`
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://queue.fal.run"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Dispatch enqueues a generation request and returns "<model>:<request_id>".
func (c *Client) Dispatch(ctx context.Context, req providers.DispatchRequest) (string, error) {
	key := c.resolveKey(req.Credentials)
	if key == "" {
		return "", ErrMissingAPIKey
	}
	payload := queueSubmission{
		Prompt:          strings.TrimSpace(req.Prompt),
		ImageURL:        req.SourceURL,
		DurationSeconds: req.DurationSeconds,
	}
	if req.Width > 0 && req.Height > 0 {
		payload.ImageSize = fmt.Sprintf("%dx%d", req.Width, req.Height)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("fal: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+req.ModelID, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("fal: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+key)

	var resp queueResponse
	if err := c.do(httpReq, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDispatchFailure, err)
	}
	if resp.RequestID == "" {
		return "", fmt.Errorf("%w: fal: empty request id (%s)", domain.ErrDispatchFailure, resp.Detail)
	}
	c.logger.Debug().Str("job_id", req.JobID).Str("request_id", resp.RequestID).Msg("fal: request queued")
	return req.ModelID + ":" + resp.RequestID, nil
}

// Poll fetches queue status; completed requests also fetch the result
// payload. The request is authenticated with the same key the dispatch used.
func (c *Client) Poll(ctx context.Context, req providers.PollRequest) (providers.PollResult, error) {
	model, requestID, err := splitHandle(req.Handle)
	if err != nil {
		return providers.PollResult{}, err
	}
	key := c.resolveKey(req.Credentials)
	if key == "" {
		return providers.PollResult{}, ErrMissingAPIKey
	}
	var status queueResponse
	if err := c.get(ctx, key, c.baseURL+"/"+model+"/requests/"+requestID+"/status", &status); err != nil {
		return providers.PollResult{}, err
	}
	result := providers.PollResult{Status: status.Status, Error: firstNonEmpty(status.Error, status.Detail)}
	if !strings.EqualFold(status.Status, "COMPLETED") {
		return result, nil
	}

	var final queueResponse
	if err := c.get(ctx, key, c.baseURL+"/"+model+"/requests/"+requestID, &final); err != nil {
		return providers.PollResult{}, err
	}
	if len(final.Response.Images) > 0 {
		result.OutputURL = final.Response.Images[0].URL
	} else if final.Response.Video.URL != "" {
		result.OutputURL = final.Response.Video.URL
	}
	return result, nil
}

// Cancel aborts a queued request. In-progress requests cannot be cancelled.
func (c *Client) Cancel(ctx context.Context, req providers.CancelRequest) error {
	model, requestID, err := splitHandle(req.Handle)
	if err != nil {
		return err
	}
	key := c.resolveKey(req.Credentials)
	if key == "" {
		return ErrMissingAPIKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/"+model+"/requests/"+requestID+"/cancel", nil)
	if err != nil {
		return fmt.Errorf("fal: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Key "+key)
	return c.do(httpReq, &queueResponse{})
}

func (c *Client) get(ctx context.Context, key, url string, out *queueResponse) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("fal: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Key "+key)
	return c.do(httpReq, out)
}

func (c *Client) do(req *http.Request, out *queueResponse) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fal: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("fal: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fal: status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("fal: decode response: %w", err)
	}
	return nil
}

func (c *Client) resolveKey(override string) string {
	if key := strings.TrimSpace(override); key != "" {
		return key
	}
	return c.apiKey
}

func splitHandle(handle string) (string, string, error) {
	model, requestID, ok := strings.Cut(handle, ":")
	if !ok || model == "" || requestID == "" {
		return "", "", fmt.Errorf("fal: malformed handle %q", handle)
	}
	return model, requestID, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var (
	_ providers.Client    = (*Client)(nil)
	_ providers.Canceller = (*Client)(nil)
)
