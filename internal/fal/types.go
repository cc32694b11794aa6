// Package fal provides an HTTP client for the FAL queue-based generation API.
package fal

// Status represents the status of a FAL request.
type Status string

// FAL request statuses aligned with the FAL queue API.
const (
	StatusInQueue    Status = "IN_QUEUE"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusError      Status = "ERROR"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError:
		return true
	default:
		return false
	}
}

// SubmitRequest contains the parameters for submitting an image-to-video
// request to a FAL model endpoint.
type SubmitRequest struct {
	ImageURL    string
	Prompt      string
	DurationSec int
}

// submitBody is the request body for a FAL submission.
// sync is always false: results are obtained via polling or webhook.
type submitBody struct {
	ImageURL            string `json:"image_url"`
	Prompt              string `json:"prompt"`
	Duration            int    `json:"duration"`
	EnableSafetyChecker bool   `json:"enable_safety_checker"`
	Sync                bool   `json:"sync"`
}

// submitResponse is the response from a FAL submission.
type submitResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// statusResponse is the response from the FAL request-status endpoint.
type statusResponse struct {
	Status string    `json:"status"`
	Video  *videoOut `json:"video,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// videoOut is the video field in a completed status response.
type videoOut struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Video describes a generated video in a StatusResult.
type Video struct {
	URL    string
	Width  int
	Height int
}

// StatusResult contains the result of checking a request's status.
type StatusResult struct {
	Status Status
	Video  *Video // set when Status is StatusCompleted and a video exists
	Error  string // set when Status is StatusFailed or StatusError
}
