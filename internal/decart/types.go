// Package decart provides HTTP clients for the Decart video transformation
// APIs: the vid2vid endpoint used by Splice and the Mirage endpoint used by
// MirageLSD. Both return the processed video as raw MP4 bytes rather than a
// reference URL.
package decart

// ProcessRequest contains the parameters for a vid2vid transformation.
type ProcessRequest struct {
	Prompt        string
	VideoBase64   string
	EnhancePrompt bool
	Width         int
	Height        int
}

// processBody is the JSON body for the vid2vid endpoint.
type processBody struct {
	Prompt        string `json:"prompt"`
	VideoBase64   string `json:"video_base64"`
	EnhancePrompt bool   `json:"enhance_prompt"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
}

// MirageRequest contains the parameters for a Mirage transformation.
// The video is sent as a multipart file part.
type MirageRequest struct {
	Prompt      string
	Video       []byte
	FileName    string
	Generations int
}
