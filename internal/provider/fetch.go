package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrFetchFailed is returned when an input file cannot be retrieved from its
// signed URL.
var ErrFetchFailed = errors.New("fetch input file failed")

// FileFetcher retrieves input media from its signed URL. Adapters that must
// replay the original file to a provider use it instead of reaching for the
// network directly, so tests can substitute a double.
type FileFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFileFetcher is the HTTP implementation of FileFetcher.
type HTTPFileFetcher struct {
	client *http.Client
}

// NewHTTPFileFetcher creates a FileFetcher with a bounded download timeout.
func NewHTTPFileFetcher(timeout time.Duration) *HTTPFileFetcher {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPFileFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads the file at url.
func (f *HTTPFileFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrFetchFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrFetchFailed, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}

	return data, nil
}
