// Package storage provides object storage for uploaded input media and
// generated provider output. It defines the ObjectStore port and
// implementations for S3 and local disk.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a requested object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// DefaultSignedURLTTL is how long issued signed URLs stay valid.
const DefaultSignedURLTTL = time.Hour

// ObjectStore defines the interface for object storage.
// Upload overwrites any existing object at the same key: adapters rely on
// that to make repeated output writes for the same provider handle
// idempotent.
type ObjectStore interface {
	// Upload stores an object under key with the given content type.
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error

	// SignedURL issues a time-limited URL for reading the object at key.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
