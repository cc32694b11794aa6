package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/promptreel/promptreel-api/internal/provider"
)

// DefaultTTL is how long a non-terminal job may live before a status read
// force-fails it.
const DefaultTTL = 15 * time.Minute

// expiredMessage is the error recorded on jobs that outlived the TTL.
const expiredMessage = "This job took too long and was aborted"

// Service drives the job lifecycle: it resolves a provider, persists the
// job, and advances it lazily on reads. There is no background worker;
// status checks happen when a client asks or a webhook arrives.
type Service struct {
	repo     Repository
	registry *provider.Registry
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides the force-fail deadline for non-terminal jobs.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a job service.
func NewService(repo Repository, registry *provider.Registry, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		registry: registry,
		logger:   logger,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create resolves a provider for the request, persists the job, and submits
// it. Resolution failures surface before any row is written. Once the insert
// succeeded the job exists and the caller gets it back: submission failures
// are recorded on the job, and repository write failures after that point are
// logged without failing the call, since losing the job id would strand a row
// the client can never look up.
func (s *Service) Create(ctx context.Context, requestedProvider string, input provider.Input) (*Job, error) {
	adapter, err := s.registry.Resolve(requestedProvider, input.ModelCode)
	if err != nil {
		return nil, err
	}

	j := New(input.ModelCode, adapter.Name(), input)
	if err := s.repo.Insert(ctx, j); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}

	log := s.logger.With("job_id", j.ID, "provider", adapter.Name(), "model_code", j.ModelCode)

	res, err := adapter.Submit(ctx, input)
	if err != nil {
		log.Error("submission failed", "error", err)
		msg := TruncateError(fmt.Sprintf("provider failed: %v", err))
		if _, ferr := s.repo.Finalize(ctx, j.ID, StatusFailed, nil, msg); ferr != nil {
			log.Error("failed to record submission failure", "error", ferr)
		}
		return s.reread(ctx, log, j)
	}

	switch res.Kind {
	case provider.KindImmediate:
		log.Info("job completed synchronously")
		if _, err := s.repo.Finalize(ctx, j.ID, StatusSucceeded, res.Output, ""); err != nil {
			log.Error("failed to record immediate result", "error", err)
		}
	case provider.KindDeferred:
		log.Info("job queued", "provider_job_id", res.ProviderJobID)
		if err := s.repo.MarkRunning(ctx, j.ID, res.ProviderJobID); err != nil {
			log.Error("failed to mark job running", "error", err)
		}
	default:
		log.Error("provider returned unknown submit kind", "kind", string(res.Kind))
	}

	return s.reread(ctx, log, j)
}

// reread returns the stored job, falling back to the in-hand record when the
// read fails. The row was inserted, so the id must reach the caller even if
// the follow-up read does not.
func (s *Service) reread(ctx context.Context, log *slog.Logger, j *Job) (*Job, error) {
	stored, err := s.repo.FindByID(ctx, j.ID)
	if err != nil {
		log.Error("failed to re-read job after create", "error", err)
		return j, nil
	}
	return stored, nil
}

// Get returns the current state of a job, advancing it first when needed:
// expired jobs are force-failed, running jobs with a tracking handle are
// polled once. Poll transport errors are logged and swallowed; the client
// sees the job as still running and retries later.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	j, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if j.Status.IsTerminal() {
		return j, nil
	}

	if s.now().UTC().Sub(j.CreatedAt) > s.ttl {
		s.logger.Warn("job exceeded TTL, aborting", "job_id", j.ID, "age", s.now().UTC().Sub(j.CreatedAt))
		if _, err := s.repo.Finalize(ctx, j.ID, StatusFailed, nil, expiredMessage); err != nil {
			return nil, fmt.Errorf("abort expired job: %w", err)
		}
		return s.repo.FindByID(ctx, id)
	}

	if j.Status != StatusRunning || j.ProviderJobID == "" {
		return j, nil
	}

	adapter, err := s.registry.Adapter(j.Provider)
	if err != nil {
		s.logger.Error("job references unavailable provider", "job_id", j.ID, "provider", j.Provider, "error", err)
		return j, nil
	}

	res, err := adapter.Poll(ctx, j.ProviderJobID, j.Input)
	if err != nil {
		s.logger.Warn("status check failed, keeping job running", "job_id", j.ID, "provider", j.Provider, "error", err)
		return j, nil
	}

	switch res.State {
	case provider.StateSucceeded:
		won, err := s.repo.Finalize(ctx, j.ID, StatusSucceeded, res.Output, "")
		if err != nil {
			return nil, fmt.Errorf("record poll success: %w", err)
		}
		if !won {
			s.logger.Info("poll result discarded, job already finalized", "job_id", j.ID)
		}
	case provider.StateFailed:
		won, err := s.repo.Finalize(ctx, j.ID, StatusFailed, nil, TruncateError(res.Error))
		if err != nil {
			return nil, fmt.Errorf("record poll failure: %w", err)
		}
		if !won {
			s.logger.Info("poll result discarded, job already finalized", "job_id", j.ID)
		}
	case provider.StateRunning:
		return j, nil
	default:
		s.logger.Error("provider returned unknown poll state", "job_id", j.ID, "state", string(res.State))
		return j, nil
	}

	return s.repo.FindByID(ctx, id)
}

// ReconcileWebhook applies a provider callback to the job identified by the
// provider's tracking handle. Terminal statuses go through the same guarded
// write as polling, so whichever path lands first wins and the loser becomes
// a no-op. The returned bool reports whether this call changed the job.
func (s *Service) ReconcileWebhook(ctx context.Context, providerJobID string, status Status, output *provider.Output, errMsg string) (*Job, bool, error) {
	j, err := s.repo.FindByProviderJobID(ctx, providerJobID)
	if err != nil {
		return nil, false, err
	}

	log := s.logger.With("job_id", j.ID, "provider_job_id", providerJobID)

	switch status {
	case StatusSucceeded:
		if output != nil {
			enrichOutput(output, j)
		}
		won, err := s.repo.Finalize(ctx, j.ID, StatusSucceeded, output, "")
		if err != nil {
			return nil, false, fmt.Errorf("apply webhook success: %w", err)
		}
		if !won {
			log.Info("webhook discarded, job already finalized")
		}
		j, err = s.repo.FindByID(ctx, j.ID)
		return j, won, err
	case StatusFailed:
		won, err := s.repo.Finalize(ctx, j.ID, StatusFailed, nil, TruncateError(errMsg))
		if err != nil {
			return nil, false, fmt.Errorf("apply webhook failure: %w", err)
		}
		if !won {
			log.Info("webhook discarded, job already finalized")
		}
		j, err = s.repo.FindByID(ctx, j.ID)
		return j, won, err
	case StatusRunning:
		// Progress notifications carry no state we track.
		return j, false, nil
	default:
		return nil, false, fmt.Errorf("unsupported webhook status %q", status)
	}
}

// enrichOutput fills provenance fields the webhook payload does not carry.
func enrichOutput(out *provider.Output, j *Job) {
	if out.Provider == "" {
		out.Provider = j.Provider
	}
	if out.Model == "" {
		out.Model = j.ModelCode
	}
	if out.Prompt == "" {
		out.Prompt = j.Input.Prompt
	}
	if out.Orientation == "" {
		out.Orientation = j.Input.Orientation
	}
}
