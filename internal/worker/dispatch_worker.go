package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/clipforge/api/internal/model"
	"github.com/clipforge/api/internal/orchestrator"
	"github.com/clipforge/api/internal/service"
)

// DispatchWorker processes queued dispatch tasks: it expands the theme into
// prompts when needed and hands the job to the dispatcher.
type DispatchWorker struct {
	promptService *service.PromptService
	dispatcher    *orchestrator.Dispatcher
	failer        *orchestrator.Failer
}

func NewDispatchWorker(promptService *service.PromptService, dispatcher *orchestrator.Dispatcher, failer *orchestrator.Failer) *DispatchWorker {
	return &DispatchWorker{
		promptService: promptService,
		dispatcher:    dispatcher,
		failer:        failer,
	}
}

// ProcessTask handles a video:dispatch task. Dispatch failures mark the job
// failed and are not returned, so the task is never requeued against a job
// that already converged to a terminal state.
func (w *DispatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload service.DispatchTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Dispatching job %s", payload.JobID)

	var prompts [model.SlotCount]string
	if len(payload.Prompts) == model.SlotCount {
		copy(prompts[:], payload.Prompts)
	} else {
		generated, err := w.promptService.GeneratePrompts(ctx, payload.Theme)
		if err != nil {
			w.failer.Fail(ctx, payload.JobID, fmt.Sprintf("prompt generation failed: %v", err))
			return nil
		}
		prompts = generated
	}

	if _, err := w.dispatcher.Dispatch(ctx, orchestrator.DispatchRequest{
		JobID:       payload.JobID,
		Prompts:     prompts,
		AspectRatio: payload.AspectRatio,
	}); err != nil {
		log.Printf("Dispatch of job %s failed: %v", payload.JobID, err)
		// Idempotent: a no-op when the dispatcher already failed the job.
		w.failer.Fail(ctx, payload.JobID, fmt.Sprintf("dispatch failed: %v", err))
		return nil
	}

	return nil
}
