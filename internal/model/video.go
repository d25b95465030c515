package model

import "time"

// GenerateRequest represents the request to start a composite video job.
// Either a theme (expanded into two scene prompts) or two explicit prompts
// must be provided.
type GenerateRequest struct {
	Theme       string      `json:"theme" validate:"omitempty,min=3,max=500"`
	Prompts     []string    `json:"prompts" validate:"omitempty,len=2,dive,min=3"`
	AspectRatio AspectRatio `json:"aspectRatio" validate:"omitempty,oneof=16:9 9:16 1:1"`
	RecordID    string      `json:"recordId" validate:"omitempty,max=64"`
}

// GenerateResponse represents the response to a started job
type GenerateResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// StatusResponse represents the current status of a job
type StatusResponse struct {
	JobID       string     `json:"jobId"`
	Status      JobStatus  `json:"status"`
	Slots       []Slot     `json:"slots"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
}

// ResultResponse represents the result of a completed job
type ResultResponse struct {
	JobID       string      `json:"jobId"`
	ResultURL   string      `json:"resultUrl"`
	ResultRefs  []string    `json:"resultRefs"`
	AspectRatio AspectRatio `json:"aspectRatio"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// RenderCallback is the raw payload delivered by the render provider when a
// task finishes. State and the url/error pair vary per outcome.
type RenderCallback struct {
	TaskID   string `json:"taskId" validate:"required"`
	State    string `json:"state" validate:"required"`
	VideoURL string `json:"videoUrl,omitempty"`
	ErrCode  string `json:"errCode,omitempty"`
	ErrMsg   string `json:"errMsg,omitempty"`
}

// TaskOutcome is the normalized form of a provider callback: either a
// successful artifact reference or a failure reason.
type TaskOutcome struct {
	OK     bool
	Ref    string
	Reason string
}

// Outcome normalizes the provider payload. Any state other than the provider's
// success markers is treated as failure.
func (c *RenderCallback) Outcome() TaskOutcome {
	switch c.State {
	case "succeeded", "completed", "success":
		return TaskOutcome{OK: true, Ref: c.VideoURL}
	default:
		reason := c.ErrMsg
		if reason == "" {
			reason = "render failed with state " + c.State
		}
		if c.ErrCode != "" {
			reason = c.ErrCode + ": " + reason
		}
		return TaskOutcome{Reason: reason}
	}
}
