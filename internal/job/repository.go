package job

import (
	"context"
	"errors"

	"github.com/promptreel/promptreel-api/internal/provider"
)

// ErrJobNotFound is returned when a job cannot be found by ID or provider
// handle.
var ErrJobNotFound = errors.New("job not found")

// Repository defines the interface for job persistence.
//
// Every write is a single atomic statement over one row, and the two state
// transitions are conditional: MarkRunning only fires from created, Finalize
// only fires from a non-terminal state. That conditional-update discipline is
// what lets the poll path and the webhook path race safely: at most one
// terminal write wins, and the loser observes that it lost instead of
// clobbering the row.
type Repository interface {
	// Insert persists a new job.
	Insert(ctx context.Context, j *Job) error

	// FindByID retrieves a job by its unique identifier.
	// Returns ErrJobNotFound if the job does not exist.
	FindByID(ctx context.Context, id string) (*Job, error)

	// FindByProviderJobID retrieves a job by the provider's tracking
	// handle. Returns ErrJobNotFound if no job carries it.
	FindByProviderJobID(ctx context.Context, providerJobID string) (*Job, error)

	// MarkRunning transitions a job from created to running and records
	// the provider handle, in one atomic write. It is a no-op when the
	// job already left the created state.
	MarkRunning(ctx context.Context, id, providerJobID string) error

	// Finalize writes a terminal state (status, output, and error
	// together, atomically) if and only if the job is not already
	// terminal. It reports whether this writer won.
	Finalize(ctx context.Context, id string, status Status, output *provider.Output, errMsg string) (bool, error)
}
