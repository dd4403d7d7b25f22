// Package ocr wraps the external asynchronous OCR service: submit a
// stored document by content key, get back an external job id, poll until
// a terminal outcome. The service itself is a black box.
package ocr

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kevinzhou/applyflow/internal/domain"
)

// PollState is the external service's view of a job.
type PollState string

const (
	PollStateProcessing PollState = "processing"
	PollStateCompleted  PollState = "completed"
	PollStateFailed     PollState = "failed"
)

// PollResult is the outcome of one status query.
type PollResult struct {
	State PollState
	Text  string // populated when State == completed
	// FailureReason carries the service's error verbatim when State == failed.
	FailureReason string
}

// Config holds configuration for the OCR service client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is the HTTP client for the external OCR API.
type Client struct {
	http    *resty.Client
	baseURL string
}

// NewClient creates a new OCR service client with an explicit request
// timeout; a timed-out submission is a submission failure, a timed-out
// poll is transient.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	return &Client{
		http:    client,
		baseURL: cfg.BaseURL,
	}
}

type submitRequest struct {
	DocumentKey string `json:"document_key"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type submitResponse struct {
	JobID string    `json:"job_id"`
	Error *apiError `json:"error,omitempty"`
}

type statusResponse struct {
	JobID  string    `json:"job_id"`
	Status string    `json:"status"` // processing, completed, failed
	Text   string    `json:"text,omitempty"`
	Error  *apiError `json:"error,omitempty"`
}

// Submit registers a stored document for OCR and returns the external job
// id. Any failure, including timeout, is a *domain.SubmissionError.
func (c *Client) Submit(ctx context.Context, contentKey string) (string, error) {
	var resp submitResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetBody(submitRequest{DocumentKey: contentKey}).
		SetResult(&resp).
		SetError(&resp).
		Post(c.baseURL + "/v1/jobs")

	if err != nil {
		return "", &domain.SubmissionError{Reason: "request failed", Err: err}
	}
	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		reason := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil && resp.Error.Message != "" {
			reason = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		return "", &domain.SubmissionError{Reason: reason}
	}
	if resp.JobID == "" {
		return "", &domain.SubmissionError{Reason: "no job id in response"}
	}
	return resp.JobID, nil
}

// Poll queries the external job state. Transport errors, timeouts, and
// 5xx responses are transient *domain.PollError values and must not
// change any persisted state; 4xx responses are non-retryable.
func (c *Client) Poll(ctx context.Context, externalJobID string) (*PollResult, error) {
	var resp statusResponse
	httpResp, err := c.http.R().
		SetContext(ctx).
		SetResult(&resp).
		SetError(&resp).
		Get(c.baseURL + "/v1/jobs/" + externalJobID)

	if err != nil {
		return nil, &domain.PollError{Transient: true, Err: err}
	}
	code := httpResp.StatusCode()
	switch {
	case code >= 500 || code == http.StatusTooManyRequests:
		return nil, &domain.PollError{Transient: true, Err: fmt.Errorf("HTTP %d", code)}
	case code >= 400:
		msg := fmt.Sprintf("HTTP %d", code)
		if resp.Error != nil && resp.Error.Message != "" {
			msg = fmt.Sprintf("HTTP %d: %s", code, resp.Error.Message)
		}
		return nil, &domain.PollError{Transient: false, Err: fmt.Errorf("%s", msg)}
	}

	switch PollState(resp.Status) {
	case PollStateProcessing:
		return &PollResult{State: PollStateProcessing}, nil
	case PollStateCompleted:
		return &PollResult{State: PollStateCompleted, Text: resp.Text}, nil
	case PollStateFailed:
		reason := "ocr failed"
		if resp.Error != nil && resp.Error.Message != "" {
			reason = resp.Error.Message
		}
		return &PollResult{State: PollStateFailed, FailureReason: reason}, nil
	default:
		return nil, &domain.PollError{Transient: false, Err: fmt.Errorf("unknown job status %q", resp.Status)}
	}
}
