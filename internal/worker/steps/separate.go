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

// SeparateProcessor splits the source audio into vocal and instrumental
// stems so background music survives the dub.
type SeparateProcessor struct {
	deps Deps
}

func NewSeparateProcessor(deps Deps) *SeparateProcessor {
	return &SeparateProcessor{deps: deps}
}

func (p *SeparateProcessor) Name() string {
	return StepSeparate
}

func (p *SeparateProcessor) Process(ctx context.Context, jobID uuid.UUID, msg models.JobMessage) error {
	var payload models.SeparatePayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	p.deps.Logger.Info("processing separation",
		zap.String("job_id", jobID.String()),
		zap.String("audio_key", payload.SourceAudioKey),
	)

	workDir, err := os.MkdirTemp("", fmt.Sprintf("separate_%s_*", jobID))
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	audioPath := filepath.Join(workDir, "audio.wav")
	if err := fetchToFile(ctx, p.deps.Storage, payload.SourceAudioKey, audioPath); err != nil {
		return err
	}

	result, err := p.deps.Separator.Separate(ctx, audioPath, filepath.Join(workDir, "stems"))
	if err != nil {
		return fmt.Errorf("separation failed: %w", err)
	}

	if err := uploadFile(ctx, p.deps.Storage, payload.VocalsKey, result.VocalsPath, "audio/wav"); err != nil {
		return err
	}
	if err := uploadFile(ctx, p.deps.Storage, payload.InstrumentalKey, result.InstrumentalPath, "audio/wav"); err != nil {
		return err
	}

	if _, err := p.deps.DB.ExecContext(ctx,
		`UPDATE jobs SET separated = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now(), jobID,
	); err != nil {
		return fmt.Errorf("failed to mark job separated: %w", err)
	}

	// Transcription runs on the vocal stem: diarization quality degrades
	// badly when music bleeds into the input.
	return publishNext(ctx, p.deps.Publisher, jobID, StepTranscribe, models.TranscribePayload{
		AudioKey:  payload.VocalsKey,
		OutputKey: storage.TranscriptScratchKey(jobID.String()),
	})
}
