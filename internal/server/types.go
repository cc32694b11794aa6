// Package server provides the HTTP server for the PromptReel API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "github.com/promptreel/promptreel-api/internal/provider"

// FileRefDTO describes the uploaded input file the job should consume.
type FileRefDTO struct {
	// Path is the object-storage key returned by the upload endpoint.
	Path string `json:"path" validate:"required"`
	// SignedURL is a time-limited URL the provider can fetch the file from.
	SignedURL string `json:"signedUrl,omitempty"`
	// MIME is the content type of the uploaded file.
	MIME string `json:"mime" validate:"required"`
	// Size is the file size in bytes.
	Size int64 `json:"size" validate:"gte=0"`
	// OriginalName is the filename as uploaded.
	OriginalName string `json:"originalName,omitempty"`
}

// JobInputDTO is the generation request payload inside CreateJobRequest.
type JobInputDTO struct {
	// ModelCode identifies the logical model (e.g. "Lucy14b").
	ModelCode string `json:"modelCode" validate:"required,max=64"`
	// Prompt is the generation prompt text.
	Prompt string `json:"prompt,omitempty" validate:"max=2000"`
	// DurationSec is the requested output duration in seconds.
	DurationSec int `json:"duration,omitempty" validate:"gte=0,lte=30"`
	// Orientation is "landscape" or "portrait".
	Orientation string `json:"orientation,omitempty" validate:"omitempty,oneof=landscape portrait"`
	// EnhancePrompt asks the provider to rewrite the prompt.
	EnhancePrompt *bool `json:"enhance_prompt,omitempty"`
	// Generations is the number of generation passes (MirageLSD only).
	Generations int `json:"generationsCount,omitempty" validate:"gte=0,lte=10"`
	// File is the uploaded input media.
	File FileRefDTO `json:"file" validate:"required"`
}

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// Input is the generation request payload.
	Input JobInputDTO `json:"input" validate:"required"`
	// Provider optionally forces a specific provider instead of routing
	// by model code.
	Provider string `json:"provider,omitempty" validate:"max=64"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// ModelCode echoes the model the job was created for.
	ModelCode string `json:"modelCode"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Output is the provider-normalized result, present once succeeded.
	Output *provider.Output `json:"output,omitempty"`
	// Error contains the failure message if the job failed.
	Error string `json:"error,omitempty"`
	// ModelCode is the model the job was created for.
	ModelCode string `json:"modelCode"`
}

// WebhookRequest is the provider callback payload.
type WebhookRequest struct {
	// RequestID is the provider's tracking handle for the job.
	RequestID string `json:"request_id"`
	// Status is the provider's status vocabulary, mapped internally.
	Status string `json:"status"`
	// Output is the result payload on success.
	Output *provider.Output `json:"output,omitempty"`
	// Error is the failure reason on error statuses.
	Error string `json:"error,omitempty"`
}

// WebhookResponse acknowledges a processed callback.
type WebhookResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId,omitempty"`
	Status  string `json:"status,omitempty"`
}

// UploadResponse is the HTTP response after storing an input file.
type UploadResponse struct {
	Status    string `json:"status"`
	Path      string `json:"path"`
	SignedURL string `json:"signedUrl,omitempty"`
	MIME      string `json:"mime"`
	Size      int64  `json:"size"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Status is always "failed" for error payloads.
	Status string `json:"status"`
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Details carries additional context when available.
	Details string `json:"details,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
