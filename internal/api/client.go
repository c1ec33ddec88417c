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
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by lookups against the daemon API for unknown ids.
var ErrNotFound = errors.New("not found")

// Client talks to a running daemon's HTTP API. The CLI is its only consumer.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the daemon listening at bind (host:port or
// full URL).
func NewClient(bind string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api address required")
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	parsed, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	return &Client{
		baseURL:    strings.TrimRight(parsed.String(), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var status DaemonStatus
	if err := c.get(ctx, "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Health fetches stage service readiness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var health HealthResponse
	if err := c.get(ctx, "/api/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// ListJobs fetches job records, optionally filtered by status.
func (c *Client) ListJobs(ctx context.Context, statuses ...string) ([]JobPayload, error) {
	path := "/api/jobs"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var resp JobListResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// GetJob fetches one job record. Returns ErrNotFound for unknown ids.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobPayload, error) {
	var payload JobPayload
	if err := c.get(ctx, "/api/jobs/"+url.PathEscape(jobID), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// Enqueue submits a job notification through the daemon.
func (c *Client) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResponse, error) {
	var resp EnqueueResponse
	if err := c.post(ctx, "/api/jobs", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeadLetters fetches the dead letter table.
func (c *Client) DeadLetters(ctx context.Context) ([]DeadLetterPayload, error) {
	var resp DeadLetterListResponse
	if err := c.get(ctx, "/api/deadletters", &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Replay re-enqueues a dead-lettered message.
func (c *Client) Replay(ctx context.Context, deadLetterID int64) (*ReplayResponse, error) {
	var resp ReplayResponse
	path := "/api/deadletters/" + strconv.FormatInt(deadLetterID, 10) + "/replay"
	if err := c.post(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) get(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, target)
}

func (c *Client) post(ctx context.Context, path string, payload, target any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("daemon api: read body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, apiErrorMessage(body))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("daemon api: http %d: %s", resp.StatusCode, apiErrorMessage(body))
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("daemon api: decode response: %w", err)
	}
	return nil
}

func apiErrorMessage(body []byte) string {
	var parsed ErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	return strings.TrimSpace(string(body))
}
