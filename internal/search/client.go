// Package search is a small client for the Globus Search API: index
// management, ingest, task status and queries.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/pders01/searchable-files/internal/models"
)

const (
	// DefaultBaseURL is the production Globus Search endpoint
	DefaultBaseURL = "https://search.api.globus.org"
	// DefaultTimeout bounds a single request
	DefaultTimeout = 30 * time.Second

	userAgent = "searchable-files"
)

// Client talks to the search service
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client, typically an OAuth2 client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRateLimit spaces out requests; rps <= 0 disables limiting
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewClient creates a client for baseURL (DefaultBaseURL when empty)
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		limiter: rate.NewLimiter(rate.Inf, 0),
		tracer:  otel.Tracer("github.com/pders01/searchable-files/internal/search"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response from the service
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	RequestID  string `json:"request_id"`
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("search API error: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("search API error: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Index is the subset of index metadata the CLI needs
type Index struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
}

// IngestResponse acknowledges an ingest request
type IngestResponse struct {
	TaskID       string `json:"task_id"`
	Acknowledged bool   `json:"acknowledged"`
	Success      bool   `json:"success"`
}

// CreateIndex creates a new index owned by the caller
func (c *Client) CreateIndex(ctx context.Context, displayName, description string) (*Index, error) {
	body := map[string]string{
		"display_name": displayName,
		"description":  description,
	}
	var idx Index
	if err := c.do(ctx, http.MethodPost, "/v1/index", body, &idx); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(idx.ID); err != nil {
		return nil, fmt.Errorf("service returned invalid index id %q: %w", idx.ID, err)
	}
	return &idx, nil
}

// GetIndex returns the index document exactly as the service sent it
func (c *Client) GetIndex(ctx context.Context, indexID string) (json.RawMessage, error) {
	path, err := indexPath(indexID, "")
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Ingest submits one ingest document and returns the task it created
func (c *Client) Ingest(ctx context.Context, indexID string, doc json.RawMessage) (*IngestResponse, error) {
	path, err := indexPath(indexID, "/ingest")
	if err != nil {
		return nil, err
	}
	var res IngestResponse
	if err := c.do(ctx, http.MethodPost, path, doc, &res); err != nil {
		return nil, err
	}
	if res.TaskID == "" {
		return nil, fmt.Errorf("ingest response did not include a task id")
	}
	return &res, nil
}

// GetTask returns the current state of an ingest task
func (c *Client) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, fmt.Errorf("task id cannot be empty")
	}
	var task models.Task
	if err := c.do(ctx, http.MethodGet, "/v1/task/"+url.PathEscape(taskID), nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Search runs a query against an index and returns the raw result document
func (c *Client) Search(ctx context.Context, indexID string, q *Query) (json.RawMessage, error) {
	path, err := indexPath(indexID, "/search")
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, path, q, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func indexPath(indexID, suffix string) (string, error) {
	id, err := uuid.Parse(indexID)
	if err != nil {
		return "", fmt.Errorf("invalid index id %q: %w", indexID, err)
	}
	return "/v1/index/" + id.String() + suffix, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "search "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.route", path)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		var payload []byte
		if raw, ok := body.(json.RawMessage); ok {
			payload = raw
		} else {
			payload, err = json.Marshal(body)
			if err != nil {
				return fmt.Errorf("failed to marshal request: %w", err)
			}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], data...)
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
