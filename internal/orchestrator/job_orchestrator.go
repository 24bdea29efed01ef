package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/queue"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"
)

// DefaultJobOrchestrator implements job state transitions and initial message
// dispatch. It owns the state machine entrypoints so the API layer can remain
// focused on validation and persistence.
type DefaultJobOrchestrator struct {
	publisher QueuePublisher
	repo      JobRepository
}

// NewJobOrchestrator builds a DefaultJobOrchestrator.
func NewJobOrchestrator(publisher QueuePublisher, repo JobRepository) *DefaultJobOrchestrator {
	return &DefaultJobOrchestrator{
		publisher: publisher,
		repo:      repo,
	}
}

// StartJob initializes the job state machine by publishing the download step.
func (o *DefaultJobOrchestrator) StartJob(ctx context.Context, job *models.Job) error {
	id := job.ID.String()
	msg := models.NewJobMessage(job.ID, "download", map[string]interface{}{
		"source_url":       job.SourceURL,
		"source_video_key": storage.SourceVideoKey(id),
		"source_audio_key": storage.SourceAudioKey(id),
	})

	if err := o.publisher.Publish(ctx, queue.RoutingKey("download"), msg); err != nil {
		return fmt.Errorf("publish initial step: %w", err)
	}
	return nil
}

// CancelJob marks the job cancelled and schedules its scratch cleanup. The
// worker also checks the status before every step, so an in-flight job stops
// at the next stage boundary.
func (o *DefaultJobOrchestrator) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	now := time.Now()
	if err := o.repo.UpdateStatus(ctx, jobID, models.JobStatusCancelled, now); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}

	msg := models.NewJobMessage(jobID, "cleanup", nil)
	if err := o.publisher.Publish(ctx, queue.RoutingKey("cleanup"), msg); err != nil {
		return fmt.Errorf("publish cleanup step: %w", err)
	}
	return nil
}
