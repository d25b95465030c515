package orchestrator

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/store"
)

// Failer centralizes terminal-failure bookkeeping. Every error originating
// inside the pipeline for a specific job converges here and becomes that
// job's terminal failed state.
type Failer struct {
	store    Store
	records  client.RecordStore
	notifier Notifier
}

// NewFailer creates a failure handler. records may be nil when no external
// record store is configured.
func NewFailer(s Store, records client.RecordStore, notifier Notifier) *Failer {
	return &Failer{
		store:    s,
		records:  records,
		notifier: orNopNotifier(notifier),
	}
}

var errAlreadyTerminal = errors.New("job already terminal")

// Fail marks the job failed with the given reason. Idempotent: failing an
// already-failed job has no additional effect, and a completed job is never
// reopened.
func (f *Failer) Fail(ctx context.Context, jobID, reason string) {
	job, err := f.store.UpdateJob(ctx, jobID, func(j *model.Job) error {
		if j.Terminal() {
			return errAlreadyTerminal
		}
		if err := j.Transition(model.JobStatusFailed); err != nil {
			return err
		}
		j.Error = &reason
		now := time.Now()
		j.FailedAt = &now
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errAlreadyTerminal):
			// duplicate failure or late error after completion
		case errors.Is(err, store.ErrNotFound):
			log.Printf("Fail: job %s not found (expired?)", jobID)
		case errors.Is(err, store.ErrUnavailable):
			log.Printf("Warning: job store unavailable, failure of job %s not recorded: %v", jobID, err)
		default:
			log.Printf("Fail: could not mark job %s failed: %v", jobID, err)
		}
		return
	}

	log.Printf("Job %s failed: %s", jobID, reason)
	f.notifier.JobError(jobID, "JOB_FAILED", reason)

	// Best-effort propagation to the external record store. The job's own
	// terminal state is already recorded authoritatively above.
	if job.ExternalRef != "" && f.records != nil {
		if err := f.records.SetStatus(ctx, job.ExternalRef, model.RecordStatusFailed, reason, ""); err != nil {
			log.Printf("Failed to propagate failure of job %s to record %s: %v", jobID, job.ExternalRef, err)
		}
	}
}
