package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/clipforge/api/internal/client"
	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/store"
)

// Publisher moves a merged video to durable storage, propagates the result to
// the external record store and closes out the job. The local artifact is
// deleted unconditionally; a failed publish is terminal for this job and not
// retried here.
type Publisher struct {
	store    Store
	storage  client.StorageClient
	records  client.RecordStore
	failer   *Failer
	notifier Notifier
	timeout  time.Duration
}

// NewPublisher creates a publisher. storage may be nil in development, in
// which case a mock URL is issued so jobs still complete end to end. records
// may be nil when no record store is configured.
func NewPublisher(s Store, storage client.StorageClient, records client.RecordStore, failer *Failer, notifier Notifier, timeout time.Duration) *Publisher {
	return &Publisher{
		store:    s,
		storage:  storage,
		records:  records,
		failer:   failer,
		notifier: orNopNotifier(notifier),
		timeout:  timeout,
	}
}

// Publish uploads the merged artifact and marks the job completed.
func (p *Publisher) Publish(ctx context.Context, job *model.Job, localPath string) {
	// Local storage must not grow regardless of outcome.
	defer os.Remove(localPath)

	url, err := p.upload(ctx, job, localPath)
	if err != nil {
		p.failer.Fail(ctx, job.ID, fmt.Sprintf("publish failed: %v", err))
		return
	}

	completed, err := p.store.UpdateJob(ctx, job.ID, func(j *model.Job) error {
		if err := j.Transition(model.JobStatusCompleted); err != nil {
			return err
		}
		j.ResultURL = url
		now := time.Now()
		j.CompletedAt = &now
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			log.Printf("Warning: job store unavailable, completion of job %s not recorded: %v", job.ID, err)
			completed = job
			completed.ResultURL = url
		} else {
			log.Printf("Job %s could not be completed: %v", job.ID, err)
			return
		}
	}

	log.Printf("Job %s completed: %s", job.ID, url)
	p.notifier.JobComplete(job.ID, &model.ResultResponse{
		JobID:       job.ID,
		ResultURL:   url,
		ResultRefs:  completed.ResultRefs(),
		AspectRatio: completed.AspectRatio,
		CompletedAt: completed.CompletedAt,
	})

	if job.ExternalRef != "" && p.records != nil {
		if err := p.records.SetStatus(ctx, job.ExternalRef, model.RecordStatusCompleted, "", url); err != nil {
			log.Printf("Failed to propagate completion of job %s to record %s: %v", job.ID, job.ExternalRef, err)
		}
	}
}

func (p *Publisher) upload(ctx context.Context, job *model.Job, localPath string) (string, error) {
	if p.storage == nil {
		log.Printf("Storage not configured, issuing mock URL for job %s", job.ID)
		return fmt.Sprintf("https://cdn.clipforge.dev/videos/%s.mp4", job.ID), nil
	}

	uctx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	key := fmt.Sprintf("videos/%s.mp4", job.ID)
	return p.storage.UploadFile(uctx, key, localPath, "video/mp4")
}
