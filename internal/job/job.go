// Package job provides the Job record for tracking generation requests
// end-to-end, the repository port over the persistent store, and the
// orchestration service that drives the created → running → terminal state
// machine.
package job

import (
	"time"

	"github.com/google/uuid"

	"github.com/promptreel/promptreel-api/internal/provider"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusCreated indicates the job row exists but the provider has not
	// accepted the work yet.
	StatusCreated Status = "created"
	// StatusRunning indicates the provider accepted the work.
	StatusRunning Status = "running"
	// StatusSucceeded indicates the job finished with an output.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the job finished with an error.
	StatusFailed Status = "failed"
)

// IsTerminal returns true if the status permits no further mutation.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// MaxErrorLength bounds the persisted error message so clients always see a
// human-readable string of sane size.
const MaxErrorLength = 500

// TruncateError clamps an error message to MaxErrorLength.
func TruncateError(msg string) string {
	if len(msg) > MaxErrorLength {
		return msg[:MaxErrorLength]
	}
	return msg
}

// Job is the persisted unit of work tracking one generation request.
// Once Status is terminal the record is frozen: Output is non-nil iff
// succeeded, Error non-empty iff failed, and ProviderJobID is set at most
// once while running.
type Job struct {
	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// ModelCode identifies the logical model requested.
	ModelCode string
	// Provider is the adapter selected to service this job.
	Provider string
	// ProviderJobID is the provider's tracking handle for deferred work.
	// Empty for immediate-completion jobs.
	ProviderJobID string
	// Input is the original request payload, kept for poll replay.
	Input provider.Input
	// Output is the normalized result once succeeded.
	Output *provider.Output
	// Error is the failure reason once failed.
	Error string
	// CreatedAt is when the job was created; drives the TTL policy.
	CreatedAt time.Time
	// UpdatedAt is when the job was last written.
	UpdatedAt time.Time
}

// New creates a Job in the created state for the given request.
func New(modelCode, providerName string, input provider.Input) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        uuid.NewString(),
		Status:    StatusCreated,
		ModelCode: modelCode,
		Provider:  providerName,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	c := *j
	if j.Output != nil {
		out := *j.Output
		c.Output = &out
	}
	return &c
}
