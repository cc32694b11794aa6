package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/promptreel/promptreel-api/internal/decart"
	"github.com/promptreel/promptreel-api/internal/provider/id"
	"github.com/promptreel/promptreel-api/internal/storage"
)

// MirageLSD constraints.
const (
	mirageName           = "miragelsd"
	mirageModel          = "mirage"
	mirageModelCode      = "MirageLSD"
	mirageMaxFileMB      = 200
	mirageMaxPrompt      = 1000
	mirageMaxGenerations = 10
)

// mirageVideoMIMEs lists accepted input types; MirageLSD takes video only.
var mirageVideoMIMEs = map[string]bool{
	"video/mp4":       true,
	"video/avi":       true,
	"video/mov":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
	"video/webm":      true,
}

// MirageLSDAdapter transforms video via the Mirage API. Same shape as
// splice: a local deferred handle from Submit, generation inside Poll with
// an idempotent output write.
type MirageLSDAdapter struct {
	client  decart.MirageClient
	fetcher FileFetcher
	store   storage.ObjectStore
}

// NewMirageLSDAdapter creates a MirageLSD adapter.
func NewMirageLSDAdapter(client decart.MirageClient, fetcher FileFetcher, store storage.ObjectStore) *MirageLSDAdapter {
	return &MirageLSDAdapter{client: client, fetcher: fetcher, store: store}
}

// Name returns the provider identifier.
func (a *MirageLSDAdapter) Name() string { return mirageName }

// Submit validates the input and returns a deferred handle.
func (a *MirageLSDAdapter) Submit(_ context.Context, in Input) (SubmitResult, error) {
	if err := a.validate(in); err != nil {
		return SubmitResult{}, err
	}
	return Deferred(id.Generate(mirageName)), nil
}

// Poll runs the transformation and stores the result.
func (a *MirageLSDAdapter) Poll(ctx context.Context, providerJobID string, in Input) (PollResult, error) {
	if !id.HasPrefix(providerJobID, mirageName) {
		return Running(), nil
	}

	orientation, width, height := orientationDims(in.Orientation)

	data, err := a.fetcher.Fetch(ctx, in.File.SignedURL)
	if err != nil {
		return Running(), nil
	}

	generations := in.Generations
	if generations < 1 {
		generations = 1
	}

	video, err := a.client.ProcessVideo(ctx, decart.MirageRequest{
		Prompt:      in.Prompt,
		Video:       data,
		FileName:    in.File.OriginalName,
		Generations: generations,
	})
	if err != nil {
		switch {
		case decart.IsRejected(err):
			return Failed(fmt.Sprintf("video processing failed: %v", err)), nil
		case decart.IsTransient(err):
			return Running(), nil
		default:
			return Failed(fmt.Sprintf("video processing failed: %v", err)), nil
		}
	}

	key := fmt.Sprintf("output_model/out_%s.mp4", providerJobID)
	url, err := storeOutput(ctx, a.store, key, video)
	if err != nil {
		return Running(), nil
	}

	return Succeeded(Output{
		Type:        "video",
		URL:         url,
		Format:      "mp4",
		Width:       width,
		Height:      height,
		Provider:    mirageName,
		Model:       mirageModel,
		Prompt:      in.Prompt,
		Orientation: orientation,
		Generations: generations,
	}), nil
}

func (a *MirageLSDAdapter) validate(in Input) error {
	if in.ModelCode != mirageModelCode {
		return Validationf("invalid model code %q for miragelsd", in.ModelCode)
	}
	if in.File.SignedURL == "" {
		return Validationf("video file with signed URL required")
	}
	if mb := float64(in.File.Size) / (1024 * 1024); mb > mirageMaxFileMB {
		return Validationf("file too large (%.1fMB, max %dMB)", mb, mirageMaxFileMB)
	}
	if !mirageVideoMIMEs[in.File.MIME] {
		return Validationf("unsupported file type %q", in.File.MIME)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return Validationf("prompt is required for video transformation")
	}
	if len(in.Prompt) > mirageMaxPrompt {
		return Validationf("prompt too long (max %d chars)", mirageMaxPrompt)
	}
	if in.Generations < 0 || in.Generations > mirageMaxGenerations {
		return Validationf("generationsCount must be an integer between 1 and %d", mirageMaxGenerations)
	}
	return nil
}

// Compile-time check that MirageLSDAdapter implements Adapter.
var _ Adapter = (*MirageLSDAdapter)(nil)
