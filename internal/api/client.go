// Package api is the HTTP client for the finance backend's job endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cristianoliveira/job-intray/internal/jobs"
	"github.com/cristianoliveira/job-intray/internal/logging"
	"github.com/cristianoliveira/job-intray/internal/version"
	"github.com/google/uuid"
)

// DefaultTimeout bounds a single request.
const DefaultTimeout = 30 * time.Second

// IdempotencyHeader carries a fresh key on every job-starting request so a
// retried POST does not start a second job.
const IdempotencyHeader = "Idempotency-Key"

// Endpoint paths, relative to the base URL.
const (
	PathPlaidSync        = "/api/plaid/sync"
	PathConvert          = "/api/transactions/convert"
	PathBulkDelete       = "/api/transactions/bulk-delete"
	PathStatementProcess = "/api/statements/%s/process"
	PathJobStatus        = "/api/jobs/%s"
	PathResource         = "/api/%s"
)

// ErrMissingJobID is returned when a start endpoint answers without a job id.
var ErrMissingJobID = errors.New("response did not include a job id")

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  logging.Logger
	newKey  func() string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used for request traces.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logging.Nop(),
		newKey:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type startResponse struct {
	JobID string `json:"job_id"`
}

// StartPlaidSync starts a bank sync for a Plaid item.
func (c *Client) StartPlaidSync(ctx context.Context, itemID string) (string, error) {
	return c.start(ctx, PathPlaidSync, map[string]interface{}{"item_id": itemID})
}

// StartConversion starts converting transactions into expenses.
func (c *Client) StartConversion(ctx context.Context, transactionIDs []string) (string, error) {
	return c.start(ctx, PathConvert, map[string]interface{}{"transaction_ids": transactionIDs})
}

// StartBulkDelete starts deleting transactions.
func (c *Client) StartBulkDelete(ctx context.Context, transactionIDs []string) (string, error) {
	return c.start(ctx, PathBulkDelete, map[string]interface{}{"transaction_ids": transactionIDs})
}

// StartStatementProcessing starts processing an uploaded statement.
func (c *Client) StartStatementProcessing(ctx context.Context, statementID string) (string, error) {
	return c.start(ctx, fmt.Sprintf(PathStatementProcess, url.PathEscape(statementID)), nil)
}

func (c *Client) start(ctx context.Context, path string, body interface{}) (string, error) {
	var resp startResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", ErrMissingJobID
	}
	c.logger.Debug("job started", "path", path, "job", resp.JobID)
	return resp.JobID, nil
}

// GetJobStatus fetches the status of a job. A 404 is reported as jobs.ErrJobNotFound.
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (jobs.Status, error) {
	var status jobs.Status
	err := c.do(ctx, http.MethodGet, fmt.Sprintf(PathJobStatus, url.PathEscape(jobID)), nil, &status)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return jobs.Status{}, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	if err != nil {
		return jobs.Status{}, err
	}
	return status, nil
}

// Refresh refetches a resource collection (e.g. "transactions") and returns
// how many items it holds.
func (c *Client) Refresh(ctx context.Context, resource string) (int, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf(PathResource, strings.Trim(resource, "/")), nil, &raw); err != nil {
		return 0, fmt.Errorf("refreshing %s: %w", resource, err)
	}
	return countItems(raw)
}

func countItems(raw json.RawMessage) (int, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return len(list), nil
	}
	var wrapped struct {
		Items []json.RawMessage `json:"items"`
		Count *int              `json:"count"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return 0, fmt.Errorf("decoding collection: %w", err)
	}
	if wrapped.Count != nil {
		return *wrapped.Count, nil
	}
	return len(wrapped.Items), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		req.Header.Set(IdempotencyHeader, c.newKey())
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// errorMessage extracts "detail", "error" or "message" from an error body,
// falling back to the raw text.
func errorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body map[string]interface{}
	if json.Unmarshal(data, &body) == nil {
		for _, key := range []string{"detail", "error", "message"} {
			if s, ok := body[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(data))
}
