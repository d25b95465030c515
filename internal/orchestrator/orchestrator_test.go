package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/store"
)

// memStore is an in-memory Store with the same locking discipline as the
// Redis-backed one: UpdateJob runs its closure as a critical section per job.
type memStore struct {
	mu    sync.Mutex
	jobs  map[string]*model.Job
	tasks map[string]store.TaskRef
}

func newMemStore() *memStore {
	return &memStore{
		jobs:  make(map[string]*model.Job),
		tasks: make(map[string]store.TaskRef),
	}
}

func copyJob(j *model.Job) *model.Job {
	cp := *j
	return &cp
}

func (m *memStore) CreateJob(ctx context.Context, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = copyJob(job)
	return nil
}

func (m *memStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyJob(job), nil
}

func (m *memStore) UpdateJob(ctx context.Context, jobID string, fn func(*model.Job) error) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := copyJob(job)
	if err := fn(cp); err != nil {
		return nil, err
	}
	cp.UpdatedAt = time.Now()
	m.jobs[jobID] = cp
	return copyJob(cp), nil
}

func (m *memStore) MapTask(ctx context.Context, taskID, jobID string, slot int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[taskID] = store.TaskRef{JobID: jobID, Slot: slot}
	return nil
}

func (m *memStore) ResolveTask(ctx context.Context, taskID string) (store.TaskRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, ok := m.tasks[taskID]
	if !ok {
		return store.TaskRef{}, store.ErrNotFound
	}
	return ref, nil
}

func (m *memStore) status(jobID string) model.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[jobID]; ok {
		return job.Status
	}
	return ""
}

// recordingNotifier captures lifecycle events for assertions.
type recordingNotifier struct {
	mu        sync.Mutex
	progress  []model.JobStatus
	completes []string
	errors    []string
}

func (n *recordingNotifier) JobProgress(jobID string, status model.JobStatus, slotsFilled int, step string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, status)
}

func (n *recordingNotifier) JobComplete(jobID string, result interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completes = append(n.completes, jobID)
}

func (n *recordingNotifier) JobError(jobID string, code, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

// recordingSink collects jobs handed over for merging.
type recordingSink struct {
	mu   sync.Mutex
	jobs []*model.Job
}

func (s *recordingSink) Submit(job *model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// seedAwaitingJob stores a job that has been dispatched and is awaiting both
// callbacks, with its task mappings in place.
func seedAwaitingJob(ms *memStore, jobID, task0, task1 string) {
	now := time.Now()
	job := &model.Job{
		ID:          jobID,
		Status:      model.JobStatusAwaiting,
		AspectRatio: model.AspectLandscape,
		Prompts:     [model.SlotCount]string{"opening scene", "closing scene"},
		TaskIDs:     [model.SlotCount]string{task0, task1},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	ms.CreateJob(context.Background(), job)
	ms.MapTask(context.Background(), task0, jobID, 0)
	ms.MapTask(context.Background(), task1, jobID, 1)
}
