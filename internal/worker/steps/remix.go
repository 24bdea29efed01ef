package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RemixProcessor recombines the dubbed speech with the instrumental bed and
// muxes the result onto the original video.
type RemixProcessor struct {
	deps Deps
}

func NewRemixProcessor(deps Deps) *RemixProcessor {
	return &RemixProcessor{deps: deps}
}

func (p *RemixProcessor) Name() string {
	return StepRemix
}

func (p *RemixProcessor) Process(ctx context.Context, jobID uuid.UUID, msg models.JobMessage) error {
	var payload models.RemixPayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	p.deps.Logger.Info("processing remix",
		zap.String("job_id", jobID.String()),
		zap.Bool("with_instrumental", payload.InstrumentalKey != ""),
	)

	workDir, err := os.MkdirTemp("", fmt.Sprintf("remix_%s_*", jobID))
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	videoPath := filepath.Join(workDir, "source.mp4")
	if err := fetchToFile(ctx, p.deps.Storage, payload.SourceVideoKey, videoPath); err != nil {
		return err
	}
	audioPath := filepath.Join(workDir, "dub.wav")
	if err := fetchToFile(ctx, p.deps.Storage, payload.DubbedAudioKey, audioPath); err != nil {
		return err
	}

	if payload.InstrumentalKey != "" {
		instrumentalPath := filepath.Join(workDir, "instrumental.wav")
		if err := fetchToFile(ctx, p.deps.Storage, payload.InstrumentalKey, instrumentalPath); err != nil {
			return err
		}
		mixedPath := filepath.Join(workDir, "mixed.wav")
		if err := p.deps.Media.MixOverlay(ctx, audioPath, instrumentalPath, mixedPath,
			p.deps.Config.Media.InstrumentalGain); err != nil {
			return fmt.Errorf("instrumental mix failed: %w", err)
		}
		audioPath = mixedPath
	}

	finalPath := filepath.Join(workDir, "final.mp4")
	if err := p.deps.Media.Mux(ctx, videoPath, audioPath, finalPath); err != nil {
		return fmt.Errorf("muxing failed: %w", err)
	}

	if err := uploadFile(ctx, p.deps.Storage, payload.OutputVideoKey, finalPath, "video/mp4"); err != nil {
		return err
	}
	// The mixed track replaces the plain dub as the standalone audio artifact.
	if err := uploadFile(ctx, p.deps.Storage, payload.DubbedAudioKey, audioPath, "audio/wav"); err != nil {
		return err
	}

	p.deps.Logger.Info("remix completed",
		zap.String("job_id", jobID.String()),
		zap.String("output_video_key", payload.OutputVideoKey),
	)

	id := jobID.String()
	return publishNext(ctx, p.deps.Publisher, jobID, StepCleanup, models.CleanupPayload{
		Promote: map[string]string{
			payload.OutputVideoKey:               storage.ArtifactVideoKey(id),
			payload.DubbedAudioKey:               storage.ArtifactAudioKey(id),
			storage.TranscriptTextScratchKey(id): storage.ArtifactTranscriptKey(id),
		},
	})
}
