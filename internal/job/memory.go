package job

import (
	"context"
	"sync"
	"time"

	"github.com/promptreel/promptreel-api/internal/provider"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// It uses a map with RWMutex for thread-safe access and clones on every
// boundary crossing to prevent external mutation. Suitable for development
// and testing; PostgresRepository is the production implementation.
type MemoryRepository struct {
	mu         sync.RWMutex
	jobs       map[string]*Job
	byProvider map[string]string // provider handle -> job ID
}

// NewMemoryRepository creates a new in-memory job repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs:       make(map[string]*Job),
		byProvider: make(map[string]string),
	}
}

// Insert persists a new job.
func (r *MemoryRepository) Insert(_ context.Context, j *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[j.ID] = j.Clone()
	if j.ProviderJobID != "" {
		r.byProvider[j.ProviderJobID] = j.ID
	}
	return nil
}

// FindByID retrieves a job by its ID.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

// FindByProviderJobID retrieves a job by the provider's tracking handle.
func (r *MemoryRepository) FindByProviderJobID(_ context.Context, providerJobID string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byProvider[providerJobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j.Clone(), nil
}

// MarkRunning transitions a created job to running with its provider handle.
func (r *MemoryRepository) MarkRunning(_ context.Context, id, providerJobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if j.Status != StatusCreated {
		return nil
	}
	j.Status = StatusRunning
	j.ProviderJobID = providerJobID
	j.UpdatedAt = time.Now().UTC()
	r.byProvider[providerJobID] = id
	return nil
}

// Finalize writes a terminal state unless the job is already terminal.
func (r *MemoryRepository) Finalize(_ context.Context, id string, status Status, output *provider.Output, errMsg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return false, ErrJobNotFound
	}
	if j.Status.IsTerminal() {
		return false, nil
	}
	j.Status = status
	j.Error = errMsg
	j.Output = nil
	if output != nil {
		out := *output
		j.Output = &out
	}
	j.UpdatedAt = time.Now().UTC()
	return true, nil
}
