package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/store"
)

// Dispatcher submits the two render tasks of a job and records the task
// mappings the callbacks will be correlated through. It never blocks on
// render completion; that is observed only via the Correlator.
type Dispatcher struct {
	store    Store
	video    Submitter
	failer   *Failer
	notifier Notifier

	callbackURL  string
	awaitTimeout time.Duration
}

// NewDispatcher creates a dispatcher. callbackURL is the externally reachable
// callback endpoint handed to the render provider. awaitTimeout of zero
// disables the stuck-awaiting policy, leaving TTL expiry as the only reclaim
// path.
func NewDispatcher(s Store, video Submitter, failer *Failer, notifier Notifier, callbackURL string, awaitTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		store:        s,
		video:        video,
		failer:       failer,
		notifier:     orNopNotifier(notifier),
		callbackURL:  callbackURL,
		awaitTimeout: awaitTimeout,
	}
}

// DispatchRequest describes one composite video job to dispatch.
type DispatchRequest struct {
	// JobID of a pre-created pending record; empty creates a new job.
	JobID       string
	Prompts     [model.SlotCount]string
	AspectRatio model.AspectRatio
	ExternalRef string
}

// Dispatch creates (or advances) the job record, submits both render tasks
// and records the task mappings, then moves the job to awaiting. If either
// submission fails the job is failed immediately with a reason naming the
// failed side; no retry is attempted here. Returns the job id synchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (string, error) {
	for i, p := range req.Prompts {
		if p == "" {
			return "", fmt.Errorf("prompt %d is empty", i)
		}
	}
	if req.AspectRatio == "" {
		req.AspectRatio = model.AspectLandscape
	}

	jobID := req.JobID
	if jobID == "" {
		jobID = uuid.New().String()
		now := time.Now()
		job := &model.Job{
			ID:          jobID,
			Status:      model.JobStatusPending,
			AspectRatio: req.AspectRatio,
			Prompts:     req.Prompts,
			ExternalRef: req.ExternalRef,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := d.store.CreateJob(ctx, job); err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				log.Printf("Warning: job store unavailable, job %s will be untracked: %v", jobID, err)
			} else {
				return "", fmt.Errorf("failed to create job: %w", err)
			}
		}
	}

	if _, err := d.store.UpdateJob(ctx, jobID, func(j *model.Job) error {
		if err := j.Transition(model.JobStatusDispatched); err != nil {
			return err
		}
		j.Prompts = req.Prompts
		j.AspectRatio = req.AspectRatio
		return nil
	}); err != nil && !errors.Is(err, store.ErrUnavailable) {
		return "", fmt.Errorf("failed to mark job dispatched: %w", err)
	}

	// Submit both tasks; order between them is deliberately unspecified. Each
	// mapping is recorded as soon as its submission returns so an early
	// callback can already resolve.
	var (
		wg      sync.WaitGroup
		taskIDs [model.SlotCount]string
		subErrs [model.SlotCount]error
	)
	for slot := 0; slot < model.SlotCount; slot++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			resp, err := d.video.SubmitRender(ctx, &client.SubmitRenderRequest{
				Prompt:      req.Prompts[slot],
				AspectRatio: req.AspectRatio,
				CallbackURL: d.callbackURL,
			})
			if err != nil {
				subErrs[slot] = err
				return
			}
			taskIDs[slot] = resp.TaskID
			if err := d.store.MapTask(ctx, resp.TaskID, jobID, slot); err != nil {
				if errors.Is(err, store.ErrUnavailable) {
					log.Printf("Warning: task mapping %s for job %s not persisted: %v", resp.TaskID, jobID, err)
					return
				}
				subErrs[slot] = err
			}
		}(slot)
	}
	wg.Wait()

	for slot, err := range subErrs {
		if err != nil {
			reason := fmt.Sprintf("slot %d submission failed: %v", slot, err)
			d.failer.Fail(ctx, jobID, reason)
			return jobID, fmt.Errorf("%s", reason)
		}
	}

	if _, err := d.store.UpdateJob(ctx, jobID, func(j *model.Job) error {
		if err := j.Transition(model.JobStatusAwaiting); err != nil {
			return err
		}
		j.TaskIDs = taskIDs
		return nil
	}); err != nil && !errors.Is(err, store.ErrUnavailable) {
		return "", fmt.Errorf("failed to mark job awaiting: %w", err)
	}

	log.Printf("Job %s dispatched: tasks %s, %s", jobID, taskIDs[0], taskIDs[1])
	d.notifier.JobProgress(jobID, model.JobStatusAwaiting, 0, "Waiting for render callbacks...")

	if d.awaitTimeout > 0 {
		d.scheduleAwaitTimeout(jobID)
	}

	return jobID, nil
}

// scheduleAwaitTimeout fails the job if it is still awaiting callbacks after
// the configured window. In-process only; a restart loses pending timers and
// TTL expiry takes over.
func (d *Dispatcher) scheduleAwaitTimeout(jobID string) {
	time.AfterFunc(d.awaitTimeout, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := d.store.GetJob(ctx, jobID)
		if err != nil {
			return
		}
		if job.Status == model.JobStatusAwaiting {
			d.failer.Fail(ctx, jobID, fmt.Sprintf("no render callback within %s", d.awaitTimeout))
		}
	})
}
