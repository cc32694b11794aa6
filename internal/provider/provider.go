// Package provider defines the uniform contract implemented by every
// external video generation provider. Each adapter normalizes one provider's
// submission protocol, status vocabulary, and output shape onto the closed
// SubmitResult/PollResult types, so the orchestrator only ever deals with
// three states and one output shape.
package provider

import "context"

// FileRef points at an uploaded input file in object storage.
type FileRef struct {
	// Path is the object-storage key of the uploaded file.
	Path string `json:"path"`
	// SignedURL is a time-limited URL the provider can fetch the file from.
	SignedURL string `json:"signedUrl,omitempty"`
	// MIME is the detected content type.
	MIME string `json:"mime"`
	// Size is the file size in bytes.
	Size int64 `json:"size"`
	// OriginalName is the filename as uploaded, if known.
	OriginalName string `json:"originalName,omitempty"`
}

// Input is the original generation request payload. It is persisted with the
// job so later poll calls can re-derive request parameters; some providers
// are polled with only a handle, others need the input replayed.
type Input struct {
	// ModelCode identifies the logical model requested (e.g. "Lucy14b").
	ModelCode string `json:"modelCode"`
	// Prompt is the generation prompt text.
	Prompt string `json:"prompt,omitempty"`
	// DurationSec is the requested output duration in seconds.
	DurationSec int `json:"duration,omitempty"`
	// Orientation is "landscape" or "portrait".
	Orientation string `json:"orientation,omitempty"`
	// EnhancePrompt asks the provider to rewrite the prompt. Nil means
	// provider default.
	EnhancePrompt *bool `json:"enhance_prompt,omitempty"`
	// Generations is the number of generation passes (MirageLSD only).
	Generations int `json:"generationsCount,omitempty"`
	// File is the uploaded input media.
	File FileRef `json:"file"`
}

// Output is the provider-normalized result payload. Every adapter produces
// this shape regardless of the provider's native response.
type Output struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Format      string `json:"format"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	DurationSec int    `json:"duration_s,omitempty"`
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	Prompt      string `json:"prompt,omitempty"`
	Orientation string `json:"orientation,omitempty"`
	Generations int    `json:"generationsCount,omitempty"`
}

// SubmitKind tags a SubmitResult as immediate or deferred.
type SubmitKind string

const (
	// KindImmediate means the provider completed synchronously and the
	// result carries the final output.
	KindImmediate SubmitKind = "immediate"
	// KindDeferred means the provider queued the work and the result
	// carries a tracking handle.
	KindDeferred SubmitKind = "deferred"
)

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	Kind SubmitKind
	// Output is set only when Kind is KindImmediate.
	Output *Output
	// ProviderJobID is set only when Kind is KindDeferred.
	ProviderJobID string
}

// Immediate builds a SubmitResult carrying a final output.
func Immediate(out Output) SubmitResult {
	return SubmitResult{Kind: KindImmediate, Output: &out}
}

// Deferred builds a SubmitResult carrying a provider tracking handle.
func Deferred(providerJobID string) SubmitResult {
	return SubmitResult{Kind: KindDeferred, ProviderJobID: providerJobID}
}

// PollState is the three-way status every provider vocabulary maps onto.
type PollState string

const (
	StateRunning   PollState = "running"
	StateSucceeded PollState = "succeeded"
	StateFailed    PollState = "failed"
)

// PollResult is the outcome of one status check.
type PollResult struct {
	State PollState
	// Output is set only when State is StateSucceeded.
	Output *Output
	// Error is set only when State is StateFailed.
	Error string
}

// Running builds a non-terminal PollResult.
func Running() PollResult {
	return PollResult{State: StateRunning}
}

// Succeeded builds a terminal PollResult carrying the normalized output.
func Succeeded(out Output) PollResult {
	return PollResult{State: StateSucceeded, Output: &out}
}

// Failed builds a terminal PollResult carrying a failure reason.
func Failed(msg string) PollResult {
	return PollResult{State: StateFailed, Error: msg}
}

// Adapter wraps one external generation API. Implementations validate input
// before any network call, never write the job record, and map transient
// transport failures during Poll to StateRunning rather than propagating
// them.
type Adapter interface {
	// Name returns the provider identifier (e.g. "lucy14b").
	Name() string

	// Submit validates the input and sends the generation request.
	// It returns an immediate result when the provider completed
	// synchronously, or a deferred handle when the work was queued.
	Submit(ctx context.Context, in Input) (SubmitResult, error)

	// Poll checks the status of previously submitted work. The original
	// input is passed because some providers need it replayed.
	Poll(ctx context.Context, providerJobID string, in Input) (PollResult, error)
}
