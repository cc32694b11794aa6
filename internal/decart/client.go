package decart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Static errors for Decart client operations.
var (
	// ErrAPIKeyNotSet is returned when no API key is provided for vid2vid.
	ErrAPIKeyNotSet = errors.New("decart: API key is required")
	// ErrEmptyVideo is returned when a completed response carries no bytes.
	ErrEmptyVideo = errors.New("decart: empty video in response")
	// ErrRejected is returned when the API rejects a request with a 4xx
	// status. Rejections are definitive and must not be retried.
	ErrRejected = errors.New("decart: request rejected")
	// ErrServerError is returned when the server returns a 5xx status code.
	ErrServerError = errors.New("decart: server error")
)

const (
	defaultVid2VidEndpoint = "https://cdn.api.decart.ai/vid2vid/process"
	defaultMirageBaseURL   = "https://bouncer.staging.mirage.decart.ai"
)

// Client defines the interface for the Decart vid2vid API.
type Client interface {
	// Process transforms a video according to the prompt and returns the
	// processed video as raw MP4 bytes.
	Process(ctx context.Context, req ProcessRequest) ([]byte, error)
}

// HTTPClient is the HTTP implementation of the vid2vid Client interface.
type HTTPClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

// ClientOption is a function that configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithAPIKey sets the API key for authentication.
func WithAPIKey(key string) ClientOption {
	return func(hc *HTTPClient) {
		hc.apiKey = key
	}
}

// WithEndpoint sets a custom vid2vid endpoint URL.
func WithEndpoint(url string) ClientOption {
	return func(hc *HTTPClient) {
		hc.endpoint = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(hc *HTTPClient) {
		hc.httpClient = c
	}
}

// NewClient creates a new Decart vid2vid HTTP client.
// The API key can be set via the WithAPIKey option. If not provided,
// it is read from the DECART_API_KEY environment variable.
func NewClient(opts ...ClientOption) (*HTTPClient, error) {
	c := &HTTPClient{
		endpoint: defaultVid2VidEndpoint,
		// Generation happens inside this call, so the deadline is
		// minutes rather than seconds.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.apiKey == "" {
		c.apiKey = os.Getenv("DECART_API_KEY")
	}

	if c.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	return c, nil
}

// Process transforms a video and returns the processed MP4 bytes.
func (c *HTTPClient) Process(ctx context.Context, req ProcessRequest) ([]byte, error) {
	bodyBytes, err := json.Marshal(processBody{
		Prompt:        req.Prompt,
		VideoBase64:   req.VideoBase64,
		EnhancePrompt: req.EnhancePrompt,
		Width:         req.Width,
		Height:        req.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("decart: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("decart: create request: %w", err)
	}
	httpReq.Header.Set("X-API-KEY", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	return doBinaryRequest(c.httpClient, httpReq)
}

// MirageClient defines the interface for the Mirage process_video API.
type MirageClient interface {
	// ProcessVideo transforms a video according to the prompt and returns
	// the processed video as raw MP4 bytes.
	ProcessVideo(ctx context.Context, req MirageRequest) ([]byte, error)
}

// MirageHTTPClient is the HTTP implementation of MirageClient.
// The Mirage endpoint takes multipart form data and requires no
// authentication.
type MirageHTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// MirageOption is a function that configures a MirageHTTPClient.
type MirageOption func(*MirageHTTPClient)

// WithMirageBaseURL sets a custom base URL for the Mirage API.
func WithMirageBaseURL(url string) MirageOption {
	return func(mc *MirageHTTPClient) {
		mc.baseURL = url
	}
}

// WithMirageHTTPClient sets a custom HTTP client.
func WithMirageHTTPClient(c *http.Client) MirageOption {
	return func(mc *MirageHTTPClient) {
		mc.httpClient = c
	}
}

// NewMirageClient creates a new Mirage HTTP client.
func NewMirageClient(opts ...MirageOption) *MirageHTTPClient {
	c := &MirageHTTPClient{
		baseURL:    defaultMirageBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessVideo transforms a video and returns the processed MP4 bytes.
func (c *MirageHTTPClient) ProcessVideo(ctx context.Context, req MirageRequest) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fileName := req.FileName
	if fileName == "" {
		fileName = "input.mp4"
	}
	part, err := w.CreateFormFile("video", fileName)
	if err != nil {
		return nil, fmt.Errorf("decart: create form file: %w", err)
	}
	if _, err := part.Write(req.Video); err != nil {
		return nil, fmt.Errorf("decart: write form file: %w", err)
	}
	if err := w.WriteField("prompt", req.Prompt); err != nil {
		return nil, fmt.Errorf("decart: write prompt field: %w", err)
	}
	generations := req.Generations
	if generations < 1 {
		generations = 1
	}
	if err := w.WriteField("generations_count", strconv.Itoa(generations)); err != nil {
		return nil, fmt.Errorf("decart: write generations field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("decart: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process_video", &buf)
	if err != nil {
		return nil, fmt.Errorf("decart: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", w.FormDataContentType())

	return doBinaryRequest(c.httpClient, httpReq)
}

// doBinaryRequest executes a request whose success response is a raw video
// body. 4xx responses map to ErrRejected; everything else transient maps to
// a transient error.
func doBinaryRequest(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("decart: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &transientError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(detail))}
		}
		return nil, fmt.Errorf("%w (%d): %s", ErrRejected, resp.StatusCode, string(detail))
	}

	video, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transientError{err: fmt.Errorf("decart: read response: %w", err)}
	}
	if len(video) == 0 {
		return nil, ErrEmptyVideo
	}

	return video, nil
}

// transientError wraps transport failures that the caller may retry.
type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

// IsTransient reports whether the error was a transient transport failure
// rather than a definitive rejection.
func IsTransient(err error) bool {
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, ErrServerError) || errors.Is(err, context.DeadlineExceeded)
}

// IsRejected reports whether the API definitively rejected the request.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
