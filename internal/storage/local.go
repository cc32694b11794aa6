package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Compile-time check that LocalStore implements ObjectStore.
var _ ObjectStore = (*LocalStore)(nil)

// LocalStore implements ObjectStore on local disk.
// Suitable for development; swap for S3Store in production.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates a new LocalStore rooted at dir.
// If dir is empty, a directory under os.TempDir() is used. baseURL is the
// public prefix returned by SignedURL; if empty, file:// URLs are issued.
// The directory is created if it doesn't exist.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "promptreel")
	}

	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	return &LocalStore{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Dir returns the storage root directory.
func (s *LocalStore) Dir() string {
	return s.dir
}

// Upload writes the object to disk, overwriting any existing file at key.
func (s *LocalStore) Upload(ctx context.Context, key string, body io.Reader, _ string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.keyPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create object directory: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 - path is constrained to the storage root
	if err != nil {
		return fmt.Errorf("create object file: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write object file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close object file: %w", err)
	}

	return nil
}

// SignedURL returns a URL for the object at key. Local URLs do not expire;
// the ttl parameter exists to satisfy the ObjectStore contract.
func (s *LocalStore) SignedURL(ctx context.Context, key string, _ time.Duration) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	path, err := s.keyPath(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("stat object file: %w", err)
	}

	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	return (&url.URL{Scheme: "file", Path: path}).String(), nil
}

// keyPath maps an object key onto the storage root, rejecting keys that
// would escape it.
func (s *LocalStore) keyPath(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.dir, clean), nil
}
