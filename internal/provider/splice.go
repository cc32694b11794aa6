package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/promptreel/promptreel-api/internal/decart"
	"github.com/promptreel/promptreel-api/internal/provider/id"
	"github.com/promptreel/promptreel-api/internal/storage"
)

// Splice constraints.
const (
	spliceName      = "splice"
	spliceModel     = "vid2vid"
	spliceModelCode = "Splice"
	spliceMaxFileMB = 100
	spliceMaxPrompt = 1000
)

// Output dimensions per orientation, shared with miragelsd.
const (
	landscapeWidth  = 1280
	landscapeHeight = 704
	portraitWidth   = 704
	portraitHeight  = 1280
)

// spliceVideoMIMEs and spliceImageMIMEs list accepted input types. Images
// are allowed so a still frame can seed a video-from-image transformation.
var (
	spliceVideoMIMEs = map[string]bool{
		"video/mp4":       true,
		"video/avi":       true,
		"video/mov":       true,
		"video/quicktime": true,
		"video/x-msvideo": true,
		"video/webm":      true,
	}
	spliceImageMIMEs = map[string]bool{
		"image/png":  true,
		"image/jpeg": true,
		"image/webp": true,
	}
)

// orientationDims returns output dimensions for an orientation, defaulting
// to landscape.
func orientationDims(orientation string) (string, int, int) {
	if orientation == "portrait" {
		return "portrait", portraitWidth, portraitHeight
	}
	return "landscape", landscapeWidth, landscapeHeight
}

// SpliceAdapter transforms video via the Decart vid2vid API. The provider
// has no queue: Submit only validates and mints a local tracking handle, and
// the transformation itself runs inside Poll. The output write is keyed by
// the handle and overwrite-allowed, so a repeated Poll for the same handle
// is idempotent.
type SpliceAdapter struct {
	client  decart.Client
	fetcher FileFetcher
	store   storage.ObjectStore
}

// NewSpliceAdapter creates a Splice adapter.
func NewSpliceAdapter(client decart.Client, fetcher FileFetcher, store storage.ObjectStore) *SpliceAdapter {
	return &SpliceAdapter{client: client, fetcher: fetcher, store: store}
}

// Name returns the provider identifier.
func (a *SpliceAdapter) Name() string { return spliceName }

// Submit validates the input and returns a deferred handle. No network call
// happens here; the work starts on the first Poll.
func (a *SpliceAdapter) Submit(_ context.Context, in Input) (SubmitResult, error) {
	if err := a.validate(in); err != nil {
		return SubmitResult{}, err
	}
	return Deferred(id.Generate(spliceName)), nil
}

// Poll runs the transformation: fetch the input, call Decart, store the
// returned binary, and resolve a signed URL. Transient failures at any step
// map to running so the next poll retries the whole sequence.
func (a *SpliceAdapter) Poll(ctx context.Context, providerJobID string, in Input) (PollResult, error) {
	if !id.HasPrefix(providerJobID, spliceName) {
		return Running(), nil
	}

	orientation, width, height := orientationDims(in.Orientation)

	data, err := a.fetcher.Fetch(ctx, in.File.SignedURL)
	if err != nil {
		return Running(), nil
	}

	enhance := true
	if in.EnhancePrompt != nil {
		enhance = *in.EnhancePrompt
	}

	video, err := a.client.Process(ctx, decart.ProcessRequest{
		Prompt:        in.Prompt,
		VideoBase64:   base64.StdEncoding.EncodeToString(data),
		EnhancePrompt: enhance,
		Width:         width,
		Height:        height,
	})
	if err != nil {
		switch {
		case decart.IsRejected(err):
			return Failed(fmt.Sprintf("video processing failed: %v", err)), nil
		case decart.IsTransient(err):
			return Running(), nil
		default:
			// Definitive but not a rejection, e.g. an empty response body.
			return Failed(fmt.Sprintf("video processing failed: %v", err)), nil
		}
	}

	key := fmt.Sprintf("processed/%s.mp4", providerJobID)
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
		Provider:    spliceName,
		Model:       spliceModel,
		Prompt:      in.Prompt,
		Orientation: orientation,
	}), nil
}

func (a *SpliceAdapter) validate(in Input) error {
	if in.ModelCode != spliceModelCode {
		return Validationf("invalid model code %q for splice", in.ModelCode)
	}
	if in.File.SignedURL == "" {
		return Validationf("video file with signed URL required")
	}
	if mb := float64(in.File.Size) / (1024 * 1024); mb > spliceMaxFileMB {
		return Validationf("file too large (%.1fMB, max %dMB)", mb, spliceMaxFileMB)
	}
	if !spliceVideoMIMEs[in.File.MIME] && !spliceImageMIMEs[in.File.MIME] {
		return Validationf("unsupported file type %q", in.File.MIME)
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return Validationf("prompt is required for video transformation")
	}
	if len(in.Prompt) > spliceMaxPrompt {
		return Validationf("prompt too long (max %d chars)", spliceMaxPrompt)
	}
	if in.Orientation != "" && in.Orientation != "landscape" && in.Orientation != "portrait" {
		return Validationf("orientation must be either \"landscape\" or \"portrait\"")
	}
	return nil
}

// storeOutput writes provider output bytes to object storage and resolves a
// signed URL for them.
func storeOutput(ctx context.Context, store storage.ObjectStore, key string, video []byte) (string, error) {
	if err := store.Upload(ctx, key, bytes.NewReader(video), "video/mp4"); err != nil {
		return "", fmt.Errorf("store output: %w", err)
	}
	url, err := store.SignedURL(ctx, key, storage.DefaultSignedURLTTL)
	if err != nil {
		return "", fmt.Errorf("sign output URL: %w", err)
	}
	return url, nil
}

// Compile-time check that SpliceAdapter implements Adapter.
var _ Adapter = (*SpliceAdapter)(nil)
