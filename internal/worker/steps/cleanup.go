package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CleanupProcessor promotes artifacts out of the scratch namespace and wipes
// it. It runs on both the success and the failure path; on failure there is
// nothing to promote and the wipe guarantees partial artifacts never leak.
type CleanupProcessor struct {
	deps Deps
}

func NewCleanupProcessor(deps Deps) *CleanupProcessor {
	return &CleanupProcessor{deps: deps}
}

func (p *CleanupProcessor) Name() string {
	return StepCleanup
}

func (p *CleanupProcessor) Process(ctx context.Context, jobID uuid.UUID, msg models.JobMessage) error {
	var payload models.CleanupPayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	id := jobID.String()
	p.deps.Logger.Info("processing cleanup",
		zap.String("job_id", id),
		zap.Int("promote_count", len(payload.Promote)),
	)

	for src, dst := range payload.Promote {
		if err := p.deps.Storage.CopyObject(ctx, src, dst); err != nil {
			return fmt.Errorf("failed to promote %s: %w", src, err)
		}
	}

	if len(payload.Promote) > 0 {
		videoKey := storage.ArtifactVideoKey(id)
		audioKey := storage.ArtifactAudioKey(id)
		transcriptKey := storage.ArtifactTranscriptKey(id)
		if _, err := p.deps.DB.ExecContext(ctx, `
			UPDATE jobs SET status = 'succeeded', stage = 'done', progress = 100,
			       output_video_key = $1, output_audio_key = $2, transcript_key = $3,
			       updated_at = $4
			WHERE id = $5 AND status NOT IN ('failed', 'cancelled')`,
			videoKey, audioKey, transcriptKey, time.Now(), jobID,
		); err != nil {
			return fmt.Errorf("failed to finalize job: %w", err)
		}
	}

	if err := p.deps.Storage.DeletePrefix(ctx, storage.ScratchPrefix(id)); err != nil {
		return fmt.Errorf("failed to wipe scratch namespace: %w", err)
	}

	p.deps.Logger.Info("cleanup completed", zap.String("job_id", id))
	return nil
}
