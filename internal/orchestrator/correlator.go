package orchestrator

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/store"
)

// MergeSink accepts ready jobs for merging without blocking the caller.
type MergeSink interface {
	Submit(job *model.Job)
}

// Correlator is the single inbound entry point for render task completions.
// It tolerates callbacks arriving in either order, duplicated, late, or for
// tasks it has never heard of.
type Correlator struct {
	store    Store
	merges   MergeSink
	failer   *Failer
	notifier Notifier
}

// NewCorrelator creates a correlator feeding ready jobs into merges.
func NewCorrelator(s Store, merges MergeSink, failer *Failer, notifier Notifier) *Correlator {
	return &Correlator{
		store:    s,
		merges:   merges,
		failer:   failer,
		notifier: orNopNotifier(notifier),
	}
}

var errSlotFilled = errors.New("slot already filled")

// OnTaskResult records one task outcome into its job slot and decides whether
// the job advances. Unknown, duplicate and post-terminal callbacks are
// no-ops; delivering the same callback twice has the same observable effect
// as delivering it once.
//
// The terminal check, slot write and readiness decision run inside the
// store's per-job critical section, so concurrent callbacks for the two slots
// of the same job cannot both conclude they were first (or both second).
func (c *Correlator) OnTaskResult(ctx context.Context, taskID string, outcome model.TaskOutcome) {
	ref, err := c.store.ResolveTask(ctx, taskID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Printf("Callback for unknown or expired task %s ignored", taskID)
		case errors.Is(err, store.ErrUnavailable):
			log.Printf("Warning: job store unavailable, callback for task %s dropped: %v", taskID, err)
		default:
			log.Printf("Callback for task %s not resolvable: %v", taskID, err)
		}
		return
	}

	becameReady := false
	job, err := c.store.UpdateJob(ctx, ref.JobID, func(j *model.Job) error {
		if j.Terminal() {
			return errAlreadyTerminal
		}
		if j.Slots[ref.Slot].Filled() {
			return errSlotFilled
		}

		now := time.Now()
		if outcome.OK {
			j.Slots[ref.Slot] = model.Slot{State: model.SlotSucceeded, Ref: outcome.Ref, ReceivedAt: &now}
			if j.Ready() {
				if err := j.Transition(model.JobStatusReady); err != nil {
					return err
				}
				becameReady = true
			}
		} else {
			j.Slots[ref.Slot] = model.Slot{State: model.SlotFailed, Reason: outcome.Reason, ReceivedAt: &now}
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, errAlreadyTerminal):
			log.Printf("Late callback for task %s ignored, job %s already terminal", taskID, ref.JobID)
		case errors.Is(err, errSlotFilled):
			log.Printf("Duplicate callback for task %s ignored", taskID)
		case errors.Is(err, store.ErrNotFound):
			log.Printf("Callback for task %s ignored, job %s expired", taskID, ref.JobID)
		case errors.Is(err, store.ErrUnavailable):
			log.Printf("Warning: job store unavailable, callback for task %s dropped: %v", taskID, err)
		default:
			log.Printf("Callback for task %s not applied to job %s: %v", taskID, ref.JobID, err)
		}
		return
	}

	// Fail-fast: one failed render fails the whole job without waiting for
	// the other side.
	if !outcome.OK {
		c.failer.Fail(ctx, job.ID, outcome.Reason)
		return
	}

	if becameReady {
		log.Printf("Job %s ready, both clips rendered", job.ID)
		c.notifier.JobProgress(job.ID, model.JobStatusReady, filledSlots(job), "Both clips rendered, queued for merge")
		// Enqueue only; the callback sender gets its acknowledgment without
		// waiting on the merge.
		c.merges.Submit(job)
		return
	}

	c.notifier.JobProgress(job.ID, job.Status, filledSlots(job), "Clip rendered, waiting for the other")
}
