package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/promptreel/promptreel-api/internal/fal"
)

// Lucy14b constraints and endpoint.
const (
	lucy14bName      = "lucy14b"
	lucy14bEndpoint  = "fal-ai/wan/v2.2-a14b/image-to-video"
	lucy14bMaxFileMB = 10
	lucy14bMaxPrompt = 500
	lucy14bMaxSec    = 10

	lucy14bDefaultPrompt = "Generate smooth video from image"
	lucy14bDefaultSec    = 4
)

// lucy14bModelCodes lists the model codes serviced by this adapter.
var lucy14bModelCodes = []string{"Lucy14b", "Lucy5b"}

// lucy14bImageMIMEs are the input image types FAL accepts.
var lucy14bImageMIMEs = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
}

// Lucy14bAdapter generates video from a still image via the FAL queue API.
// Submission is truly deferred: FAL returns a request ID that is later
// resolved through polling or a webhook.
type Lucy14bAdapter struct {
	client   fal.Client
	endpoint string
}

// NewLucy14bAdapter creates a Lucy14b adapter over a FAL client.
func NewLucy14bAdapter(client fal.Client) *Lucy14bAdapter {
	return &Lucy14bAdapter{client: client, endpoint: lucy14bEndpoint}
}

// Name returns the provider identifier.
func (a *Lucy14bAdapter) Name() string { return lucy14bName }

// Submit validates the input and queues an image-to-video request.
func (a *Lucy14bAdapter) Submit(ctx context.Context, in Input) (SubmitResult, error) {
	if err := a.validate(in); err != nil {
		return SubmitResult{}, err
	}

	prompt := in.Prompt
	if prompt == "" {
		prompt = lucy14bDefaultPrompt
	}
	duration := in.DurationSec
	if duration == 0 {
		duration = lucy14bDefaultSec
	}

	requestID, err := a.client.Submit(ctx, a.endpoint, fal.SubmitRequest{
		ImageURL:    in.File.SignedURL,
		Prompt:      prompt,
		DurationSec: duration,
	})
	if err != nil {
		return SubmitResult{}, fmt.Errorf("lucy14b submit: %w", err)
	}

	return Deferred(requestID), nil
}

// Poll maps the FAL request status onto the three-way poll result.
// A not-yet-visible request and transient transport failures map to running:
// the FAL queue is eventually consistent and a flaky status check must not
// fail the job. A definitive non-404 rejection of the status check means the
// queue will never answer this request, so the job fails now rather than
// polling until the TTL aborts it.
func (a *Lucy14bAdapter) Poll(ctx context.Context, providerJobID string, in Input) (PollResult, error) {
	res, err := a.client.Status(ctx, a.endpoint, providerJobID)
	if err != nil {
		if errors.Is(err, fal.ErrRequestNotFound) || fal.IsTransient(err) {
			return Running(), nil
		}
		return Failed(fmt.Sprintf("status check rejected: %v", err)), nil
	}

	if !res.Status.IsTerminal() {
		return Running(), nil
	}

	switch res.Status {
	case fal.StatusCompleted:
		if res.Video == nil || res.Video.URL == "" {
			// Completed without a video is a provider contract breach.
			return Failed("video generation completed without output"), nil
		}
		width, height := res.Video.Width, res.Video.Height
		if width == 0 {
			width = 1280
		}
		if height == 0 {
			height = 720
		}
		duration := in.DurationSec
		if duration == 0 {
			duration = lucy14bDefaultSec
		}
		return Succeeded(Output{
			Type:        "video",
			URL:         res.Video.URL,
			Format:      "mp4",
			Width:       width,
			Height:      height,
			DurationSec: duration,
			Provider:    lucy14bName,
			Model:       a.endpoint,
			Prompt:      in.Prompt,
		}), nil
	default:
		// StatusFailed or StatusError, the remaining terminal states.
		msg := res.Error
		if msg == "" {
			msg = "video generation failed"
		}
		return Failed(msg), nil
	}
}

func (a *Lucy14bAdapter) validate(in Input) error {
	known := false
	for _, code := range lucy14bModelCodes {
		if in.ModelCode == code {
			known = true
			break
		}
	}
	if !known {
		return Validationf("invalid model code %q for lucy14b", in.ModelCode)
	}

	if in.File.SignedURL == "" {
		return Validationf("image file with signed URL required")
	}
	if mb := float64(in.File.Size) / (1024 * 1024); mb > lucy14bMaxFileMB {
		return Validationf("file too large (%.1fMB, max %dMB)", mb, lucy14bMaxFileMB)
	}
	if !lucy14bImageMIMEs[in.File.MIME] {
		return Validationf("unsupported file type %q, allowed: image/png, image/jpeg, image/webp", in.File.MIME)
	}
	if len(in.Prompt) > lucy14bMaxPrompt {
		return Validationf("prompt too long (max %d chars)", lucy14bMaxPrompt)
	}
	if in.DurationSec < 0 || in.DurationSec > lucy14bMaxSec {
		return Validationf("duration must be between 1 and %d seconds", lucy14bMaxSec)
	}
	return nil
}

// Compile-time check that Lucy14bAdapter implements Adapter.
var _ Adapter = (*Lucy14bAdapter)(nil)
