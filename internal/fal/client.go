package fal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Static errors for FAL client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is provided.
	ErrAPIKeyNotSet = errors.New("fal: API key is required")
	// ErrEndpointRequired is returned when the model endpoint is not provided.
	ErrEndpointRequired = errors.New("fal: model endpoint is required")
	// ErrRequestIDRequired is returned when the request ID is not provided.
	ErrRequestIDRequired = errors.New("fal: request ID is required")
	// ErrNoRequestIDReturned is returned when the submit response contains no request ID.
	ErrNoRequestIDReturned = errors.New("fal: submit failed: no request ID returned")
	// ErrSubmitFailed is returned when the submit operation fails.
	ErrSubmitFailed = errors.New("fal: submit failed")
	// ErrRequestNotFound is returned when a status check finds no request.
	// Immediately after submission this is expected: the FAL queue is
	// eventually consistent.
	ErrRequestNotFound = errors.New("fal: request not found")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("fal: server error")
	// ErrRateLimited is returned when the server returns a 429 status code.
	ErrRateLimited = errors.New("fal: rate limited")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("fal: request failed")
)

// Client defines the interface for interacting with the FAL API.
type Client interface {
	// Submit queues a generation request on the given model endpoint and
	// returns the FAL request ID.
	Submit(ctx context.Context, endpoint string, req SubmitRequest) (requestID string, err error)

	// Status checks the state of a queued request.
	Status(ctx context.Context, endpoint, requestID string) (StatusResult, error)
}

// HTTPClient is the HTTP implementation of the FAL Client interface.
type HTTPClient struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	maxRetries    int
	baseBackoff   time.Duration
	statusTimeout time.Duration
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithBaseURL sets a custom base URL for the FAL API.
func WithBaseURL(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) ClientOption {
	return func(hc *HTTPClient) {
		hc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.baseBackoff = d
	}
}

// WithStatusTimeout sets the per-call timeout for status checks.
// Status checks use a much shorter deadline than submissions.
func WithStatusTimeout(d time.Duration) ClientOption {
	return func(hc *HTTPClient) {
		hc.statusTimeout = d
	}
}

// NewClient creates a new FAL HTTP client.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from FAL_API_KEY (or the legacy FAL_KEY) environment variable.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		baseURL:       "https://fal.run",
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		maxRetries:    2,
		baseBackoff:   2 * time.Second,
		statusTimeout: 8 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("FAL_API_KEY")
	}
	if c.apiKey == "" {
		c.apiKey = os.Getenv("FAL_KEY")
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Submit queues a generation request and returns the FAL request ID.
func (c *HTTPClient) Submit(ctx context.Context, endpoint string, req SubmitRequest) (string, error) {
	if endpoint == "" {
		return "", ErrEndpointRequired
	}

	body := submitBody{
		ImageURL:            req.ImageURL,
		Prompt:              req.Prompt,
		Duration:            req.DurationSec,
		EnableSafetyChecker: false,
		Sync:                false,
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("fal: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)

	var resp submitResponse
	if err := c.doRequestWithRetry(ctx, http.MethodPost, url, bodyBytes, &resp); err != nil {
		return "", err
	}

	if resp.RequestID == "" {
		if resp.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrSubmitFailed, resp.Error)
		}
		return "", ErrNoRequestIDReturned
	}

	return resp.RequestID, nil
}

// Status checks the state of a queued request. It is a single attempt with a
// short deadline; the caller decides whether to keep polling.
func (c *HTTPClient) Status(ctx context.Context, endpoint, requestID string) (StatusResult, error) {
	if endpoint == "" {
		return StatusResult{}, ErrEndpointRequired
	}
	if requestID == "" {
		return StatusResult{}, ErrRequestIDRequired
	}

	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s/requests/%s", c.baseURL, endpoint, requestID)

	var resp statusResponse
	if err := c.doRequest(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return StatusResult{}, err
	}

	var mapped Status
	switch resp.Status {
	case "IN_QUEUE":
		mapped = StatusInQueue
	case "IN_PROGRESS":
		mapped = StatusInProgress
	case "COMPLETED":
		mapped = StatusCompleted
	case "FAILED":
		mapped = StatusFailed
	case "ERROR":
		mapped = StatusError
	default:
		mapped = Status(resp.Status)
	}

	result := StatusResult{Status: mapped}

	switch mapped {
	case StatusCompleted:
		if resp.Video != nil {
			result.Video = &Video{
				URL:    resp.Video.URL,
				Width:  resp.Video.Width,
				Height: resp.Video.Height,
			}
		}
	case StatusFailed, StatusError:
		result.Error = resp.Error
	}

	return result, nil
}

// doRequestWithRetry performs an HTTP request with exponential backoff retry.
func (c *HTTPClient) doRequestWithRetry(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("fal: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := c.doRequest(ctx, method, url, body, result)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("fal: max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request.
func (c *HTTPClient) doRequest(ctx context.Context, method, url string, body []byte, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("fal: create request: %w", err)
	}

	req.Header.Set("Authorization", "Key "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("fal: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("fal: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusNotFound {
			return ErrRequestNotFound
		}
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("fal: unmarshal response: %w", err)
		}
	}

	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// IsTransient reports whether a client error was a transient transport
// failure (connection error, timeout, 5xx, rate limit) rather than a
// definitive rejection.
func IsTransient(err error) bool {
	if isRetryable(err) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
