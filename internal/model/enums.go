package model

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusDispatched JobStatus = "dispatched"
	JobStatusAwaiting   JobStatus = "awaiting"
	JobStatusReady      JobStatus = "ready"
	JobStatusMerging    JobStatus = "merging"
	JobStatusPublishing JobStatus = "publishing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Slot state
type SlotState string

const (
	SlotEmpty     SlotState = "empty"
	SlotSucceeded SlotState = "succeeded"
	SlotFailed    SlotState = "failed"
)

// Aspect ratios accepted by the render provider
type AspectRatio string

const (
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectSquare    AspectRatio = "1:1"
)

var ValidAspectRatios = []AspectRatio{
	AspectLandscape, AspectPortrait, AspectSquare,
}

// Record status written back to the external record store
type RecordStatus string

const (
	RecordStatusProcessing RecordStatus = "processing"
	RecordStatusCompleted  RecordStatus = "completed"
	RecordStatusFailed     RecordStatus = "failed"
)
