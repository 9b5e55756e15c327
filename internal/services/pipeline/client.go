package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/pipewatch/internal/interfaces"
	"github.com/ternarybob/pipewatch/internal/models"
)

const (
	// DefaultBaseURL is where the pipeline server listens by default.
	DefaultBaseURL = "http://127.0.0.1:8000"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 20
)

// Client is a pipeline server API client.
// Requests are never retried: a failed status poll ends the run.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     arbor.ILogger
	limiter    *rate.Limiter
	rest       *resty.Client
}

var _ interfaces.PipelineClient = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit. Zero disables limiting.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new pipeline API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient != nil {
		c.rest = resty.NewWithClient(c.httpClient)
	} else {
		c.rest = resty.New()
	}
	c.rest.
		SetBaseURL(c.baseURL).
		SetTimeout(c.timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	c.rest.OnBeforeRequest(c.waitForLimiter)

	return c
}

// BaseURL returns the server base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError represents an error response from the pipeline server.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pipeline API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// IsNotFound reports whether the server did not know the job
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func (c *Client) waitForLimiter(_ *resty.Client, req *resty.Request) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// do executes a request and converts non-2xx responses into *APIError
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	req := c.rest.R().
		SetContext(ctx).
		SetError(&errorResponse{})
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	if c.logger != nil {
		c.logger.Debug().
			Str("method", method).
			Str("url", c.baseURL+path).
			Msg("Pipeline API request")
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("failed to execute request %s %s: %w", method, path, err)
	}

	if resp.IsError() {
		message := strings.TrimSpace(resp.String())
		if e, ok := resp.Error().(*errorResponse); ok && e.message() != "" {
			message = e.message()
		}
		return &APIError{
			StatusCode: resp.StatusCode(),
			Message:    message,
			Endpoint:   path,
		}
	}

	return nil
}

// StartJob submits items and stages and returns the new job ID.
func (c *Client) StartJob(ctx context.Context, req models.RunRequest) (string, error) {
	var out startJobResponse
	body := startJobRequest{Images: req.Items, Steps: req.Stages}
	if err := c.do(ctx, http.MethodPost, "/api/process", body, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", fmt.Errorf("start job: server returned no job_id")
	}
	return out.JobID, nil
}

// GetJobStatus fetches a status snapshot for jobID.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*models.JobSnapshot, error) {
	var out models.JobSnapshot
	if err := c.do(ctx, http.MethodGet, jobPath(jobID, "status"), nil, &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		out.JobID = jobID
	}
	return &out, nil
}

// GetJobOutputs lists the output files of a finished job.
func (c *Client) GetJobOutputs(ctx context.Context, jobID string) ([]models.Output, error) {
	var out outputsResponse
	if err := c.do(ctx, http.MethodGet, jobPath(jobID, "outputs"), nil, &out); err != nil {
		return nil, err
	}
	return out.Outputs, nil
}

// ListFilters returns the filters the server accepts as stage names.
func (c *Client) ListFilters(ctx context.Context) ([]models.FilterInfo, error) {
	var out []models.FilterInfo
	if err := c.do(ctx, http.MethodGet, "/api/filters", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateStages checks every stage name against the server's filter list.
// Mirrors the server's own check so a typo fails before a job is created.
func ValidateStages(filters []models.FilterInfo, stages []models.StageSpec) error {
	known := make(map[string]bool, len(filters))
	for _, f := range filters {
		known[f.Name] = true
	}
	for _, s := range stages {
		if !known[s.Name] {
			return fmt.Errorf("unknown filter: %s", s.Name)
		}
	}
	return nil
}

func jobPath(jobID, suffix string) string {
	return "/api/jobs/" + url.PathEscape(jobID) + "/" + suffix
}
