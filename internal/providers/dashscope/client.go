package dashscope

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
var ErrMissingAPIKey = errors.New("dashscope: api key is required")

// Options configures the DashScope asynchronous task client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client drives the DashScope async generation API: submit a task, then poll
// it by task id until it settles.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type taskRequest struct {
	Model      string         `json:"model"`
	Input      taskInput      `json:"input"`
	Parameters taskParameters `json:"parameters,omitempty"`
}

type taskInput struct {
	Prompt   string `json:"prompt,omitempty"`
	ImageURL string `json:"img_url,omitempty"`
}

type taskParameters struct {
	Size     string `json:"size,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

type taskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
		VideoURL string `json:"video_url"`
		Message  string `json:"message"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
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
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
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

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Dispatch submits an asynchronous generation task and returns its task id.
func (c *Client) Dispatch(ctx context.Context, req providers.DispatchRequest) (string, error) {
	key := c.resolveKey(req.Credentials)
	if key == "" {
		return "", ErrMissingAPIKey
	}
	payload := taskRequest{
		Model: req.ModelID,
		Input: taskInput{Prompt: strings.TrimSpace(req.Prompt)},
	}
	if req.SourceURL != "" {
		payload.Input.ImageURL = req.SourceURL
	}
	if req.Width > 0 && req.Height > 0 {
		payload.Parameters.Size = fmt.Sprintf("%d*%d", req.Width, req.Height)
	}
	if req.DurationSeconds > 0 {
		payload.Parameters.Duration = req.DurationSeconds
	}

	endpoint := c.baseURL + "/services/aigc/" + servicePath(req.Type) + "/generation"
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("dashscope: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("X-DashScope-Async", "enable")

	var resp taskResponse
	if err := c.do(httpReq, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDispatchFailure, err)
	}
	if resp.Output.TaskID == "" {
		return "", fmt.Errorf("%w: dashscope: empty task id (code=%s message=%s)", domain.ErrDispatchFailure, resp.Code, resp.Message)
	}
	c.logger.Debug().Str("job_id", req.JobID).Str("task_id", resp.Output.TaskID).Msg("dashscope: task submitted")
	return resp.Output.TaskID, nil
}

// Poll fetches the current status of a submitted task, authenticated with
// the same key the dispatch used.
func (c *Client) Poll(ctx context.Context, req providers.PollRequest) (providers.PollResult, error) {
	key := c.resolveKey(req.Credentials)
	if key == "" {
		return providers.PollResult{}, ErrMissingAPIKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tasks/"+req.Handle, nil)
	if err != nil {
		return providers.PollResult{}, fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)

	var resp taskResponse
	if err := c.do(httpReq, &resp); err != nil {
		return providers.PollResult{}, err
	}
	result := providers.PollResult{Status: resp.Output.TaskStatus}
	if len(resp.Output.Results) > 0 {
		result.OutputURL = resp.Output.Results[0].URL
	} else if resp.Output.VideoURL != "" {
		result.OutputURL = resp.Output.VideoURL
	}
	if resp.Output.Message != "" {
		result.Error = resp.Output.Message
	} else if resp.Message != "" {
		result.Error = resp.Message
	}
	return result, nil
}

// Cancel asks DashScope to abort a queued or running task. Only tasks that
// have not started can actually be cancelled upstream; errors are the
// caller's to ignore.
func (c *Client) Cancel(ctx context.Context, req providers.CancelRequest) error {
	key := c.resolveKey(req.Credentials)
	if key == "" {
		return ErrMissingAPIKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tasks/"+req.Handle+"/cancel", nil)
	if err != nil {
		return fmt.Errorf("dashscope: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	return c.do(httpReq, &taskResponse{})
}

func (c *Client) do(req *http.Request, out *taskResponse) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dashscope: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("dashscope: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("dashscope: status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("dashscope: decode response: %w", err)
	}
	return nil
}

func (c *Client) resolveKey(override string) string {
	if key := strings.TrimSpace(override); key != "" {
		return key
	}
	return c.apiKey
}

func servicePath(t domain.JobType) string {
	if t.Media() == domain.MediaVideo {
		return "video-generation"
	}
	return "text2image"
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
