// Package orchestrator implements the asynchronous job pipeline: dispatching
// paired render tasks, correlating their out-of-order callbacks, merging the
// resulting clips under bounded concurrency and publishing the merged video.
package orchestrator

import (
	"context"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/store"
)

// Store is the job bookkeeping surface the pipeline depends on. Implemented
// by store.RedisStore; tests substitute an in-memory fake.
type Store interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	UpdateJob(ctx context.Context, jobID string, fn func(*model.Job) error) (*model.Job, error)
	MapTask(ctx context.Context, taskID, jobID string, slot int) error
	ResolveTask(ctx context.Context, taskID string) (store.TaskRef, error)
}

// Submitter submits one render task to the external provider.
type Submitter interface {
	SubmitRender(ctx context.Context, req *client.SubmitRenderRequest) (*client.SubmitRenderResponse, error)
}

// Fetcher downloads a rendered clip to a local file.
type Fetcher interface {
	Fetch(ctx context.Context, ref, destPath string) error
}

// Merger concatenates local clips, in order, into one output file.
type Merger interface {
	Merge(ctx context.Context, inputs []string, output string) error
}

// Notifier receives job lifecycle events for live progress delivery.
type Notifier interface {
	JobProgress(jobID string, status model.JobStatus, slotsFilled int, step string)
	JobComplete(jobID string, result interface{})
	JobError(jobID string, code, message string)
}

type nopNotifier struct{}

func (nopNotifier) JobProgress(string, model.JobStatus, int, string) {}
func (nopNotifier) JobComplete(string, interface{})                  {}
func (nopNotifier) JobError(string, string, string)                  {}

func orNopNotifier(n Notifier) Notifier {
	if n == nil {
		return nopNotifier{}
	}
	return n
}

// filledSlots counts slots that have received their callback.
func filledSlots(job *model.Job) int {
	n := 0
	for _, s := range job.Slots {
		if s.Filled() {
			n++
		}
	}
	return n
}
