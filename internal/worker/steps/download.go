package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DownloadProcessor fetches the source video, probes its duration, and
// extracts the raw audio track.
type DownloadProcessor struct {
	deps Deps
}

func NewDownloadProcessor(deps Deps) *DownloadProcessor {
	return &DownloadProcessor{deps: deps}
}

func (p *DownloadProcessor) Name() string {
	return StepDownload
}

func (p *DownloadProcessor) Process(ctx context.Context, jobID uuid.UUID, msg models.JobMessage) error {
	var payload models.DownloadPayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	p.deps.Logger.Info("processing download",
		zap.String("job_id", jobID.String()),
		zap.String("source_url", payload.SourceURL),
	)

	workDir, err := os.MkdirTemp("", fmt.Sprintf("download_%s_*", jobID))
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	videoPath := filepath.Join(workDir, "source.mp4")
	if _, err := p.deps.Downloader.Download(ctx, payload.SourceURL, videoPath); err != nil {
		return fmt.Errorf("source download failed: %w", err)
	}

	duration, err := p.deps.Media.Probe(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("failed to probe source video: %w", err)
	}

	audioPath := filepath.Join(workDir, "audio.wav")
	if err := p.deps.Media.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return fmt.Errorf("audio extraction failed: %w", err)
	}

	if err := uploadFile(ctx, p.deps.Storage, payload.SourceVideoKey, videoPath, "video/mp4"); err != nil {
		return err
	}
	if err := uploadFile(ctx, p.deps.Storage, payload.SourceAudioKey, audioPath, "audio/wav"); err != nil {
		return err
	}

	durationMs := int(duration.Milliseconds())
	if _, err := p.deps.DB.ExecContext(ctx,
		`UPDATE jobs SET duration_ms = $1, updated_at = $2 WHERE id = $3`,
		durationMs, time.Now(), jobID,
	); err != nil {
		return fmt.Errorf("failed to record source duration: %w", err)
	}

	p.deps.Logger.Info("download completed",
		zap.String("job_id", jobID.String()),
		zap.Int("duration_ms", durationMs),
	)

	id := jobID.String()
	if p.deps.Config.Media.SeparateVocals {
		return publishNext(ctx, p.deps.Publisher, jobID, StepSeparate, models.SeparatePayload{
			SourceAudioKey:  payload.SourceAudioKey,
			VocalsKey:       storage.VocalsKey(id),
			InstrumentalKey: storage.InstrumentalKey(id),
		})
	}
	return publishNext(ctx, p.deps.Publisher, jobID, StepTranscribe, models.TranscribePayload{
		AudioKey:  payload.SourceAudioKey,
		OutputKey: storage.TranscriptScratchKey(id),
	})
}
