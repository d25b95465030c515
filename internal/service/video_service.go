package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/orchestrator"
	"github.com/clipforge/api/internal/store"
)

const TaskTypeDispatch = "video:dispatch"

// DispatchTaskPayload is the queued work item that turns a request into two
// submitted render tasks.
type DispatchTaskPayload struct {
	JobID       string            `json:"jobId"`
	Theme       string            `json:"theme,omitempty"`
	Prompts     []string          `json:"prompts,omitempty"`
	AspectRatio model.AspectRatio `json:"aspectRatio"`
}

// VideoService handles composite video job intake and status queries.
type VideoService struct {
	store       orchestrator.Store
	asynqClient *asynq.Client
}

func NewVideoService(s orchestrator.Store, asynqClient *asynq.Client) *VideoService {
	return &VideoService{
		store:       s,
		asynqClient: asynqClient,
	}
}

// StartGenerate creates the job record and queues dispatch work. Returns the
// job handle immediately; rendering is observed via callbacks, seconds to
// minutes later.
func (s *VideoService) StartGenerate(ctx context.Context, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	if req.Theme == "" && len(req.Prompts) != model.SlotCount {
		return nil, fmt.Errorf("either a theme or exactly %d prompts required", model.SlotCount)
	}

	ratio := req.AspectRatio
	if ratio == "" {
		ratio = model.AspectLandscape
	}

	jobID := uuid.New().String()
	now := time.Now()
	job := &model.Job{
		ID:          jobID,
		Status:      model.JobStatusPending,
		AspectRatio: ratio,
		ExternalRef: req.RecordID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			log.Printf("Warning: job store unavailable, job %s will be untracked: %v", jobID, err)
		} else {
			return nil, fmt.Errorf("failed to save job: %w", err)
		}
	}

	payload, err := json.Marshal(&DispatchTaskPayload{
		JobID:       jobID,
		Theme:       req.Theme,
		Prompts:     req.Prompts,
		AspectRatio: ratio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Submission failures are terminal for the job (fail-fast, no retry), so
	// the task itself is not retried either.
	_, err = s.asynqClient.Enqueue(asynq.NewTask(TaskTypeDispatch, payload),
		asynq.Queue("dispatch"),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.GenerateResponse{
		JobID:     jobID,
		Status:    model.JobStatusPending,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current status of a job
func (s *VideoService) GetStatus(ctx context.Context, jobID string) (*model.StatusResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &model.StatusResponse{
		JobID:       job.ID,
		Status:      job.Status,
		Slots:       job.Slots[:],
		Error:       job.Error,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
		FailedAt:    job.FailedAt,
	}, nil
}

// GetResult returns the result of a completed job
func (s *VideoService) GetResult(ctx context.Context, jobID string) (*model.ResultResponse, error) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status != model.JobStatusCompleted {
		return nil, fmt.Errorf("job not completed")
	}

	return &model.ResultResponse{
		JobID:       job.ID,
		ResultURL:   job.ResultURL,
		ResultRefs:  job.ResultRefs(),
		AspectRatio: job.AspectRatio,
		CompletedAt: job.CompletedAt,
	}, nil
}

func (s *VideoService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("job not found")
		}
		return nil, err
	}
	return job, nil
}
