package simulator

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/okian/shiftmetrics/internal/domain/model"
)

// Retry settings. Posting an event is idempotent, so failed posts are
// retried like reads.
const (
	retryCount   = 3
	retryWait    = 200 * time.Millisecond
	retryMaxWait = 2 * time.Second
)

// apiError mirrors the service's error body.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the shiftmetrics HTTP API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryMaxWait).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// Ready checks the service can reach its store.
func (c *Client) Ready(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/readyz")
	if err != nil {
		return fmt.Errorf("readyz: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: readyz answered %d", ErrUnexpectedStatus, resp.StatusCode())
	}
	return nil
}

// PostEvent submits one event and reports whether the service created it.
func (c *Client) PostEvent(ctx context.Context, in model.EventInput) (model.Event, bool, error) {
	var (
		stored model.Event
		failed apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(in).
		SetResult(&stored).
		SetError(&failed).
		Post("/api/events")
	if err != nil {
		return model.Event{}, false, fmt.Errorf("post event: %w", err)
	}

	switch resp.StatusCode() {
	case http.StatusCreated:
		return stored, true, nil
	case http.StatusOK:
		return stored, false, nil
	default:
		return model.Event{}, false, fmt.Errorf("%w: post event answered %d: %s %s",
			ErrUnexpectedStatus, resp.StatusCode(), failed.Code, failed.Message)
	}
}

// WorkerMetrics reads every worker's metrics.
func (c *Client) WorkerMetrics(ctx context.Context) ([]model.WorkerMetric, error) {
	var out []model.WorkerMetric
	if err := c.get(ctx, "/api/metrics/workers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// WorkstationMetrics reads every workstation's metrics.
func (c *Client) WorkstationMetrics(ctx context.Context) ([]model.WorkstationMetric, error) {
	var out []model.WorkstationMetric
	if err := c.get(ctx, "/api/metrics/workstations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FactoryMetrics reads the factory summary.
func (c *Client) FactoryMetrics(ctx context.Context) (model.FactoryMetric, error) {
	var out model.FactoryMetric
	if err := c.get(ctx, "/api/metrics/factory", &out); err != nil {
		return model.FactoryMetric{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	resp, err := c.http.R().SetContext(ctx).SetResult(dst).Get(path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: get %s answered %d", ErrUnexpectedStatus, path, resp.StatusCode())
	}
	return nil
}
