package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/promptreel/promptreel-api/internal/job"
	"github.com/promptreel/promptreel-api/internal/provider"
	"github.com/promptreel/promptreel-api/internal/storage"
)

// MaxUploadBytes caps input file size at 100 MB.
const MaxUploadBytes = 100 << 20

// allowedUploadMIMEs is the accepted input media allowlist.
var allowedUploadMIMEs = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"video/mp4":       true,
	"video/quicktime": true,
	"video/webm":      true,
	"video/x-msvideo": true,
}

// JobService is the subset of the job service the handlers need.
type JobService interface {
	Create(ctx context.Context, requestedProvider string, input provider.Input) (*job.Job, error)
	Get(ctx context.Context, id string) (*job.Job, error)
	ReconcileWebhook(ctx context.Context, providerJobID string, status job.Status, output *provider.Output, errMsg string) (*job.Job, bool, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service       JobService
	store         storage.ObjectStore
	validator     *validator.Validate
	logger        *slog.Logger
	webhookSecret string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service JobService, store storage.ObjectStore, webhookSecret string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:       service,
		store:         store,
		validator:     validator.New(),
		logger:        logger,
		webhookSecret: webhookSecret,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	input := provider.Input{
		ModelCode:     req.Input.ModelCode,
		Prompt:        req.Input.Prompt,
		DurationSec:   req.Input.DurationSec,
		Orientation:   req.Input.Orientation,
		EnhancePrompt: req.Input.EnhancePrompt,
		Generations:   req.Input.Generations,
		File: provider.FileRef{
			Path:         req.Input.File.Path,
			SignedURL:    req.Input.File.SignedURL,
			MIME:         req.Input.File.MIME,
			Size:         req.Input.File.Size,
			OriginalName: req.Input.File.OriginalName,
		},
	}

	createdJob, err := h.service.Create(r.Context(), req.Provider, input)
	if err != nil {
		switch {
		case errors.Is(err, provider.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, "unknown model or provider", err.Error())
		case provider.IsValidation(err):
			writeError(w, http.StatusBadRequest, "invalid input", err.Error())
		case provider.IsConfiguration(err):
			h.logger.Error("provider not configured", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "provider not configured", "")
		default:
			h.logger.Error("failed to create job", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to create job", "")
		}
		return
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("model_code", createdJob.ModelCode),
		slog.String("provider", createdJob.Provider),
	)

	writeJSON(w, http.StatusCreated, CreateJobResponse{
		ID:        createdJob.ID,
		ModelCode: createdJob.ModelCode,
	})
}

// GetJob handles GET /jobs/{id} requests. Reading a job advances it: the
// service force-fails expired jobs and polls the provider for running ones.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if _, err := uuid.Parse(jobID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid job ID", "job ID must be a UUID")
		return
	}

	foundJob, err := h.service.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "")
		return
	}

	writeJSON(w, http.StatusOK, JobResponse{
		ID:        foundJob.ID,
		Status:    string(foundJob.Status),
		Output:    foundJob.Output,
		Error:     foundJob.Error,
		ModelCode: foundJob.ModelCode,
	})
}

// Webhook handles POST /webhooks/fal requests. The raw body is verified
// against WEBHOOK_SECRET before parsing.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		h.logger.Error("webhook received but WEBHOOK_SECRET is not configured")
		writeError(w, http.StatusInternalServerError, "webhook not configured", "")
		return
	}

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body", "")
		return
	}

	signature := r.Header.Get("X-Signature-Sha256")
	if signature == "" {
		signature = r.Header.Get("X-Hub-Signature-256")
	}
	if !verifySignature(rawBody, signature, h.webhookSecret) {
		h.logger.Warn("webhook signature verification failed")
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid webhook signature")
		return
	}

	var req WebhookRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload", "webhook payload must be valid JSON")
		return
	}
	if req.RequestID == "" {
		writeError(w, http.StatusBadRequest, "invalid payload", "request_id is required")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "invalid payload", "status is required")
		return
	}

	status, ok := mapWebhookStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid status", fmt.Sprintf("unknown provider status: %s", req.Status))
		return
	}

	errMsg := req.Error
	if status == job.StatusFailed && errMsg == "" {
		errMsg = "Provider processing failed"
	}

	updatedJob, won, err := h.service.ReconcileWebhook(r.Context(), req.RequestID, status, req.Output, errMsg)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found",
				fmt.Sprintf("no job found with provider ID: %s", req.RequestID))
			return
		}
		h.logger.Error("webhook reconciliation failed",
			slog.String("provider_job_id", req.RequestID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to update job", "")
		return
	}

	if !won {
		writeJSON(w, http.StatusOK, WebhookResponse{Message: "Job already completed"})
		return
	}

	h.logger.Info("webhook processed",
		slog.String("job_id", updatedJob.ID),
		slog.String("status", string(updatedJob.Status)),
	)
	writeJSON(w, http.StatusOK, WebhookResponse{
		Message: "Webhook processed successfully",
		JobID:   updatedJob.ID,
		Status:  string(updatedJob.Status),
	})
}

// Upload handles POST /uploads requests: multipart file, MIME sniffed from
// content rather than trusted from the client.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided", "file field is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read file", "")
		return
	}
	if len(data) > MaxUploadBytes {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("file too large (%.1fMB)", float64(len(data))/(1<<20)),
			fmt.Sprintf("maximum file size is %dMB", MaxUploadBytes/(1<<20)))
		return
	}

	mtype := mimetype.Detect(data)
	if !allowedUploadMIMEs[mtype.String()] {
		writeError(w, http.StatusBadRequest, "invalid file type",
			fmt.Sprintf("detected type %s is not allowed", mtype.String()))
		return
	}

	key := fmt.Sprintf("%s/%s%s", time.Now().UTC().Format("20060102"), uuid.NewString(), mtype.Extension())
	if err := h.store.Upload(r.Context(), key, bytes.NewReader(data), mtype.String()); err != nil {
		h.logger.Error("upload failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "upload failed", "storage operation failed")
		return
	}

	signedURL, err := h.store.SignedURL(r.Context(), key, storage.DefaultSignedURLTTL)
	if err != nil {
		// The file is stored; a missing signed URL is not fatal.
		h.logger.Error("failed to create signed URL",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	h.logger.Info("upload succeeded",
		slog.String("key", key),
		slog.String("mime", mtype.String()),
		slog.Int("size", len(data)),
		slog.String("original_name", header.Filename),
	)

	writeJSON(w, http.StatusCreated, UploadResponse{
		Status:    "succeeded",
		Path:      key,
		SignedURL: signedURL,
		MIME:      mtype.String(),
		Size:      int64(len(data)),
	})
}

// mapWebhookStatus normalizes the provider's status vocabulary. Running
// notifications are accepted but carry no state to record.
func mapWebhookStatus(s string) (job.Status, bool) {
	switch strings.ToLower(s) {
	case "completed", "succeeded":
		return job.StatusSucceeded, true
	case "failed", "error":
		return job.StatusFailed, true
	case "running", "in_progress":
		return job.StatusRunning, true
	default:
		return "", false
	}
}

// verifySignature checks an HMAC-SHA256 hex signature over the raw body.
// Handles both "sha256=" prefixed and bare signatures.
func verifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format. Messages are
// truncated to the same cap applied to stored job errors.
func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, ErrorResponse{
		Status:  "failed",
		Error:   job.TruncateError(message),
		Details: job.TruncateError(details),
	})
}
