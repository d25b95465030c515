package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/store"
)

// MergeScheduler serializes access to the merge step. Ready jobs enter an
// unbounded FIFO queue; each job's two clips are fetched concurrently (plain
// I/O, unbounded), but the merge itself runs under a fixed number of slots,
// default one. Within a job, fetch, merge and publish are strictly
// sequential; across jobs no ordering is guaranteed.
type MergeScheduler struct {
	store     Store
	fetcher   Fetcher
	merger    Merger
	publisher *Publisher
	failer    *Failer
	notifier  Notifier

	tempDir      string
	fetchTimeout time.Duration

	mergeSlots chan struct{}

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*model.Job
	stopped bool

	wg sync.WaitGroup
}

// NewMergeScheduler creates a scheduler with the given merge concurrency.
func NewMergeScheduler(s Store, fetcher Fetcher, merger Merger, publisher *Publisher, failer *Failer, notifier Notifier, workers int, tempDir string, fetchTimeout time.Duration) *MergeScheduler {
	if workers < 1 {
		workers = 1
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	sch := &MergeScheduler{
		store:        s,
		fetcher:      fetcher,
		merger:       merger,
		publisher:    publisher,
		failer:       failer,
		notifier:     orNopNotifier(notifier),
		tempDir:      tempDir,
		fetchTimeout: fetchTimeout,
		mergeSlots:   make(chan struct{}, workers),
	}
	sch.cond = sync.NewCond(&sch.mu)
	return sch
}

// Start launches the dispatch loop.
func (s *MergeScheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop drains the queue and waits for in-flight jobs to finish.
func (s *MergeScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()
	s.wg.Wait()
}

// Submit enqueues a ready job. Never blocks; the queue is unbounded.
func (s *MergeScheduler) Submit(job *model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		log.Printf("Merge scheduler stopped, job %s dropped", job.ID)
		return
	}
	s.queue = append(s.queue, job)
	s.cond.Signal()
}

func (s *MergeScheduler) loop() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.stopped {
			s.mu.Unlock()
			return
		}
		job := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.process(job)
		}()
	}
}

// process runs one job through fetch, merge and publish. Jobs outlive the
// request that created them, so everything runs off context.Background with
// per-step timeouts.
func (s *MergeScheduler) process(job *model.Job) {
	ctx := context.Background()

	if _, err := s.store.UpdateJob(ctx, job.ID, func(j *model.Job) error {
		return j.Transition(model.JobStatusMerging)
	}); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			log.Printf("Warning: job store unavailable, merge of job %s proceeds untracked: %v", job.ID, err)
		} else {
			// Failed, expired or otherwise diverged since enqueue.
			log.Printf("Job %s no longer mergeable: %v", job.ID, err)
			return
		}
	}
	s.notifier.JobProgress(job.ID, model.JobStatusMerging, model.SlotCount, "Merging clips...")

	workDir, err := os.MkdirTemp(s.tempDir, "clipforge-"+job.ID+"-")
	if err != nil {
		s.failer.Fail(ctx, job.ID, fmt.Sprintf("merge failed: %v", err))
		return
	}
	// No intermediate per-job files survive the attempt, success or failure.
	defer os.RemoveAll(workDir)

	inputs, err := s.fetchClips(ctx, job, workDir)
	if err != nil {
		s.failer.Fail(ctx, job.ID, fmt.Sprintf("fetch failed: %v", err))
		return
	}

	merged := filepath.Join(workDir, "merged.mp4")
	if err := s.merge(ctx, inputs, merged); err != nil {
		s.failer.Fail(ctx, job.ID, fmt.Sprintf("merge failed: %v", err))
		return
	}

	if _, err := s.store.UpdateJob(ctx, job.ID, func(j *model.Job) error {
		return j.Transition(model.JobStatusPublishing)
	}); err != nil && !errors.Is(err, store.ErrUnavailable) {
		log.Printf("Job %s no longer publishable: %v", job.ID, err)
		return
	}

	s.publisher.Publish(ctx, job, merged)
}

// fetchClips downloads both slot artifacts into workDir, concurrently.
func (s *MergeScheduler) fetchClips(ctx context.Context, job *model.Job, workDir string) ([]string, error) {
	inputs := make([]string, model.SlotCount)
	errs := make([]error, model.SlotCount)

	var wg sync.WaitGroup
	for slot := 0; slot < model.SlotCount; slot++ {
		inputs[slot] = filepath.Join(workDir, fmt.Sprintf("clip-%d.mp4", slot))
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			fctx := ctx
			if s.fetchTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
				defer cancel()
			}
			errs[slot] = s.fetcher.Fetch(fctx, job.Slots[slot].Ref, inputs[slot])
		}(slot)
	}
	wg.Wait()

	for slot, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", slot, err)
		}
	}
	return inputs, nil
}

// merge runs the merge under a concurrency slot. The fetched inputs are
// removed before the slot is released, whatever the outcome.
func (s *MergeScheduler) merge(ctx context.Context, inputs []string, output string) error {
	s.mergeSlots <- struct{}{}
	defer func() { <-s.mergeSlots }()
	defer func() {
		for _, in := range inputs {
			os.Remove(in)
		}
	}()

	return s.merger.Merge(ctx, inputs, output)
}
