package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
)

// QueuePublisher describes the minimal queue publisher behavior the
// orchestrator depends on. It intentionally matches the signature of
// queue.Publisher to enable easy swapping with other implementations.
type QueuePublisher interface {
	Publish(ctx context.Context, routingKey string, message interface{}) error
}

// JobRepository abstracts the job persistence mutations required by the
// orchestrator.
type JobRepository interface {
	UpdateStatus(ctx context.Context, jobID uuid.UUID, status models.JobStatus, updatedAt time.Time) error
}

// JobOrchestrator exposes the orchestration operations used by the API layer.
// Keeping this minimal makes it easy to inject mocks in tests.
type JobOrchestrator interface {
	StartJob(ctx context.Context, job *models.Job) error
	CancelJob(ctx context.Context, jobID uuid.UUID) error
}
