package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/model"
)

type fakeSubmitter struct {
	mu         sync.Mutex
	seq        int
	failPrompt string
	reqs       []*client.SubmitRenderRequest
}

func (f *fakeSubmitter) SubmitRender(ctx context.Context, req *client.SubmitRenderRequest) (*client.SubmitRenderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.failPrompt != "" && req.Prompt == f.failPrompt {
		return nil, errors.New("provider rejected the prompt")
	}
	f.seq++
	return &client.SubmitRenderResponse{TaskID: fmt.Sprintf("task-%d", f.seq), Status: "queued"}, nil
}

func (f *fakeSubmitter) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func newTestDispatcher(sub *fakeSubmitter, awaitTimeout time.Duration) (*Dispatcher, *memStore, *recordingNotifier) {
	ms := newMemStore()
	notifier := &recordingNotifier{}
	failer := NewFailer(ms, nil, notifier)
	return NewDispatcher(ms, sub, failer, notifier, "https://api.example.com/callbacks/video", awaitTimeout), ms, notifier
}

func TestDispatch_SubmitsBothAndAwaits(t *testing.T) {
	sub := &fakeSubmitter{}
	d, ms, _ := newTestDispatcher(sub, 0)
	ctx := context.Background()

	jobID, err := d.Dispatch(ctx, DispatchRequest{
		Prompts:     [model.SlotCount]string{"opening scene", "closing scene"},
		AspectRatio: model.AspectPortrait,
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	job, err := ms.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("job not stored: %v", err)
	}
	if job.Status != model.JobStatusAwaiting {
		t.Errorf("expected awaiting, got %s", job.Status)
	}
	if job.TaskIDs[0] == "" || job.TaskIDs[1] == "" {
		t.Errorf("expected both task ids recorded, got %v", job.TaskIDs)
	}
	if sub.requestCount() != model.SlotCount {
		t.Errorf("expected %d submissions, got %d", model.SlotCount, sub.requestCount())
	}

	// Each mapping resolves back to its slot.
	for slot := 0; slot < model.SlotCount; slot++ {
		ref, err := ms.ResolveTask(ctx, job.TaskIDs[slot])
		if err != nil {
			t.Fatalf("task %s not mapped: %v", job.TaskIDs[slot], err)
		}
		if ref.JobID != jobID || ref.Slot != slot {
			t.Errorf("task %s mapped to %+v, expected slot %d", job.TaskIDs[slot], ref, slot)
		}
	}

	for _, req := range sub.reqs {
		if req.CallbackURL != "https://api.example.com/callbacks/video" {
			t.Errorf("unexpected callback url %q", req.CallbackURL)
		}
		if req.AspectRatio != model.AspectPortrait {
			t.Errorf("unexpected aspect ratio %q", req.AspectRatio)
		}
	}
}

func TestDispatch_ExistingJob(t *testing.T) {
	sub := &fakeSubmitter{}
	d, ms, _ := newTestDispatcher(sub, 0)
	ctx := context.Background()

	now := time.Now()
	ms.CreateJob(ctx, &model.Job{
		ID:        "pre-created",
		Status:    model.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})

	jobID, err := d.Dispatch(ctx, DispatchRequest{
		JobID:   "pre-created",
		Prompts: [model.SlotCount]string{"a scene", "another scene"},
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if jobID != "pre-created" {
		t.Errorf("expected the existing job id back, got %s", jobID)
	}
	if got := ms.status("pre-created"); got != model.JobStatusAwaiting {
		t.Errorf("expected awaiting, got %s", got)
	}
}

func TestDispatch_SubmissionFailureFailsJob(t *testing.T) {
	sub := &fakeSubmitter{failPrompt: "closing scene"}
	d, ms, notifier := newTestDispatcher(sub, 0)
	ctx := context.Background()

	jobID, err := d.Dispatch(ctx, DispatchRequest{
		Prompts: [model.SlotCount]string{"opening scene", "closing scene"},
	})
	if err == nil {
		t.Fatal("expected dispatch error")
	}
	if !strings.Contains(err.Error(), "submission failed") {
		t.Errorf("error should name the failed submission: %v", err)
	}

	job, getErr := ms.GetJob(ctx, jobID)
	if getErr != nil {
		t.Fatalf("job not stored: %v", getErr)
	}
	if job.Status != model.JobStatusFailed {
		t.Errorf("expected failed, got %s", job.Status)
	}
	if job.Error == nil || !strings.Contains(*job.Error, "slot 1") {
		t.Errorf("failure reason should name the slot, got %v", job.Error)
	}
	if notifier.errorCount() != 1 {
		t.Errorf("expected one error notification, got %d", notifier.errorCount())
	}
}

func TestDispatch_EmptyPromptRejected(t *testing.T) {
	sub := &fakeSubmitter{}
	d, _, _ := newTestDispatcher(sub, 0)

	_, err := d.Dispatch(context.Background(), DispatchRequest{
		Prompts: [model.SlotCount]string{"only one", ""},
	})
	if err == nil {
		t.Fatal("expected error for empty prompt")
	}
	if sub.requestCount() != 0 {
		t.Error("nothing should be submitted for an invalid request")
	}
}

func TestDispatch_AwaitTimeoutFailsStuckJob(t *testing.T) {
	sub := &fakeSubmitter{}
	d, ms, _ := newTestDispatcher(sub, 50*time.Millisecond)
	ctx := context.Background()

	jobID, err := d.Dispatch(ctx, DispatchRequest{
		Prompts: [model.SlotCount]string{"a scene", "another scene"},
	})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for ms.status(jobID) != model.JobStatusFailed {
		select {
		case <-deadline:
			t.Fatalf("job still %s after await timeout", ms.status(jobID))
		case <-time.After(10 * time.Millisecond):
		}
	}

	job, _ := ms.GetJob(ctx, jobID)
	if job.Error == nil || !strings.Contains(*job.Error, "no render callback") {
		t.Errorf("expected timeout reason, got %v", job.Error)
	}
}
