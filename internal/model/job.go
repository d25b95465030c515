package model

import (
	"fmt"
	"time"
)

// SlotCount is the number of render tasks correlated into one job. The merge
// step takes an ordered list of inputs, so raising this is a merge-pipeline
// concern, not a data-model one.
const SlotCount = 2

// Slot holds the outcome of one render task. A slot is empty until its
// callback arrives, then holds either an artifact reference or a failure
// reason.
type Slot struct {
	State      SlotState  `json:"state"`
	Ref        string     `json:"ref,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	ReceivedAt *time.Time `json:"receivedAt,omitempty"`
}

// Filled reports whether the slot has received its callback.
func (s Slot) Filled() bool {
	return s.State != SlotEmpty && s.State != ""
}

// Job correlates two independent render tasks into one merged video.
type Job struct {
	ID          string            `json:"id"`
	Status      JobStatus         `json:"status"`
	AspectRatio AspectRatio       `json:"aspectRatio"`
	Prompts     [SlotCount]string `json:"prompts"`
	Slots       [SlotCount]Slot   `json:"slots"`
	TaskIDs     [SlotCount]string `json:"taskIds"`
	// ExternalRef points at the originating record in the external record
	// store. Empty means fire-and-forget.
	ExternalRef string     `json:"externalRef,omitempty"`
	ResultURL   string     `json:"resultUrl,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
}

// legalTransitions encodes the forward-only lifecycle. Failed is reachable
// from every non-terminal state; terminal states have no outgoing edges.
var legalTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:    {JobStatusDispatched, JobStatusFailed},
	JobStatusDispatched: {JobStatusAwaiting, JobStatusFailed},
	JobStatusAwaiting:   {JobStatusReady, JobStatusFailed},
	JobStatusReady:      {JobStatusMerging, JobStatusFailed},
	JobStatusMerging:    {JobStatusPublishing, JobStatusFailed},
	JobStatusPublishing: {JobStatusCompleted, JobStatusFailed},
	JobStatusCompleted:  {},
	JobStatusFailed:     {},
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// CanTransition reports whether moving from the job's current status to the
// target is a legal edge.
func (j *Job) CanTransition(to JobStatus) bool {
	for _, next := range legalTransitions[j.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition moves the job to the target status, rejecting illegal edges
// instead of silently overwriting.
func (j *Job) Transition(to JobStatus) error {
	if !j.CanTransition(to) {
		return fmt.Errorf("illegal transition %s -> %s for job %s", j.Status, to, j.ID)
	}
	j.Status = to
	return nil
}

// Ready reports whether both slots hold successful results.
func (j *Job) Ready() bool {
	for _, s := range j.Slots {
		if s.State != SlotSucceeded {
			return false
		}
	}
	return true
}

// ResultRefs returns the per-slot artifact references in slot order.
func (j *Job) ResultRefs() []string {
	refs := make([]string, 0, SlotCount)
	for _, s := range j.Slots {
		refs = append(refs, s.Ref)
	}
	return refs
}
