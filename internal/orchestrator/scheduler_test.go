package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clipforge/api/internal/model"
)

type fakeFetcher struct {
	mu      sync.Mutex
	fetched []string
	failRef string
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref, destPath string) error {
	f.mu.Lock()
	f.fetched = append(f.fetched, ref)
	f.mu.Unlock()
	if f.failRef != "" && ref == f.failRef {
		return errors.New("clip gone")
	}
	return os.WriteFile(destPath, []byte("clip "+ref), 0o644)
}

type fakeMerger struct {
	mu        sync.Mutex
	active    int
	maxActive int
	delay     time.Duration
	fail      bool
}

func (m *fakeMerger) Merge(ctx context.Context, inputs []string, output string) error {
	m.mu.Lock()
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active--
		m.mu.Unlock()
	}()

	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.fail {
		return errors.New("codec mismatch")
	}
	return os.WriteFile(output, []byte("merged"), 0o644)
}

func (m *fakeMerger) peakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

func newTestScheduler(t *testing.T, ms *memStore, fetcher Fetcher, merger Merger, workers int) (*MergeScheduler, *recordingNotifier, string) {
	t.Helper()
	tempDir := t.TempDir()
	notifier := &recordingNotifier{}
	failer := NewFailer(ms, nil, notifier)
	publisher := NewPublisher(ms, nil, nil, failer, notifier, time.Minute)
	sch := NewMergeScheduler(ms, fetcher, merger, publisher, failer, notifier, workers, tempDir, time.Minute)
	sch.Start()
	t.Cleanup(sch.Stop)
	return sch, notifier, tempDir
}

func seedReadyJob(ms *memStore, jobID string) *model.Job {
	now := time.Now()
	job := &model.Job{
		ID:          jobID,
		Status:      model.JobStatusReady,
		AspectRatio: model.AspectLandscape,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	job.Slots[0] = model.Slot{State: model.SlotSucceeded, Ref: "ref-" + jobID + "-0", ReceivedAt: &now}
	job.Slots[1] = model.Slot{State: model.SlotSucceeded, Ref: "ref-" + jobID + "-1", ReceivedAt: &now}
	ms.CreateJob(context.Background(), job)
	return job
}

func waitForStatus(t *testing.T, ms *memStore, jobID string, want model.JobStatus) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if got := ms.status(jobID); got == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("job %s stuck in %s, wanted %s", jobID, ms.status(jobID), want)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestScheduler_CompletesJob(t *testing.T) {
	ms := newMemStore()
	sch, notifier, tempDir := newTestScheduler(t, ms, &fakeFetcher{}, &fakeMerger{}, 1)

	job := seedReadyJob(ms, "j1")
	sch.Submit(job)

	waitForStatus(t, ms, "j1", model.JobStatusCompleted)

	done, _ := ms.GetJob(context.Background(), "j1")
	if done.ResultURL == "" {
		t.Error("completed job should carry a result url")
	}
	if done.CompletedAt == nil {
		t.Error("completed job should carry completedAt")
	}

	notifier.mu.Lock()
	completes := len(notifier.completes)
	notifier.mu.Unlock()
	if completes != 1 {
		t.Errorf("expected one completion notification, got %d", completes)
	}

	// Working files are gone once the job settles.
	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatalf("reading temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty temp dir, found %d entries", len(entries))
	}
}

func TestScheduler_MergeConcurrencyBound(t *testing.T) {
	ms := newMemStore()
	merger := &fakeMerger{delay: 50 * time.Millisecond}
	sch, _, _ := newTestScheduler(t, ms, &fakeFetcher{}, merger, 1)

	const jobs = 4
	for i := 0; i < jobs; i++ {
		sch.Submit(seedReadyJob(ms, fmt.Sprintf("j%d", i)))
	}
	for i := 0; i < jobs; i++ {
		waitForStatus(t, ms, fmt.Sprintf("j%d", i), model.JobStatusCompleted)
	}

	if peak := merger.peakConcurrency(); peak != 1 {
		t.Errorf("merge concurrency ceiling violated: peak %d with 1 worker", peak)
	}
}

func TestScheduler_HonorsConfiguredWorkers(t *testing.T) {
	ms := newMemStore()
	merger := &fakeMerger{delay: 50 * time.Millisecond}
	sch, _, _ := newTestScheduler(t, ms, &fakeFetcher{}, merger, 3)

	const jobs = 6
	for i := 0; i < jobs; i++ {
		sch.Submit(seedReadyJob(ms, fmt.Sprintf("j%d", i)))
	}
	for i := 0; i < jobs; i++ {
		waitForStatus(t, ms, fmt.Sprintf("j%d", i), model.JobStatusCompleted)
	}

	if peak := merger.peakConcurrency(); peak > 3 {
		t.Errorf("merge concurrency ceiling violated: peak %d with 3 workers", peak)
	}
}

func TestScheduler_FetchFailureFailsJob(t *testing.T) {
	ms := newMemStore()
	fetcher := &fakeFetcher{failRef: "ref-j1-1"}
	sch, _, tempDir := newTestScheduler(t, ms, fetcher, &fakeMerger{}, 1)

	sch.Submit(seedReadyJob(ms, "j1"))
	waitForStatus(t, ms, "j1", model.JobStatusFailed)

	job, _ := ms.GetJob(context.Background(), "j1")
	if job.Error == nil || !strings.Contains(*job.Error, "fetch failed") {
		t.Errorf("expected fetch failure reason, got %v", job.Error)
	}

	entries, _ := os.ReadDir(tempDir)
	if len(entries) != 0 {
		t.Errorf("expected temp dir cleaned after failure, found %d entries", len(entries))
	}
}

func TestScheduler_MergeFailureFailsJob(t *testing.T) {
	ms := newMemStore()
	sch, _, tempDir := newTestScheduler(t, ms, &fakeFetcher{}, &fakeMerger{fail: true}, 1)

	sch.Submit(seedReadyJob(ms, "j1"))
	waitForStatus(t, ms, "j1", model.JobStatusFailed)

	job, _ := ms.GetJob(context.Background(), "j1")
	if job.Error == nil || !strings.Contains(*job.Error, "merge failed") {
		t.Errorf("expected merge failure reason, got %v", job.Error)
	}

	entries, _ := os.ReadDir(tempDir)
	if len(entries) != 0 {
		t.Errorf("expected temp dir cleaned after failure, found %d entries", len(entries))
	}
}

func TestScheduler_SubmitAfterStopIsDropped(t *testing.T) {
	ms := newMemStore()
	tempDir := t.TempDir()
	notifier := &recordingNotifier{}
	failer := NewFailer(ms, nil, notifier)
	publisher := NewPublisher(ms, nil, nil, failer, notifier, time.Minute)
	sch := NewMergeScheduler(ms, &fakeFetcher{}, &fakeMerger{}, publisher, failer, notifier, 1, tempDir, time.Minute)
	sch.Start()
	sch.Stop()

	// Must not block or panic.
	sch.Submit(seedReadyJob(ms, "j1"))

	if got := ms.status("j1"); got != model.JobStatusReady {
		t.Errorf("job submitted after stop was processed: %s", got)
	}
}
