package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TranscribeProcessor sends the speech audio to the transcriber and persists
// the diarized segments.
type TranscribeProcessor struct {
	deps Deps
}

func NewTranscribeProcessor(deps Deps) *TranscribeProcessor {
	return &TranscribeProcessor{deps: deps}
}

func (p *TranscribeProcessor) Name() string {
	return StepTranscribe
}

func (p *TranscribeProcessor) Process(ctx context.Context, jobID uuid.UUID, msg models.JobMessage) error {
	var payload models.TranscribePayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	p.deps.Logger.Info("processing transcription",
		zap.String("job_id", jobID.String()),
		zap.String("audio_key", payload.AudioKey),
	)

	var sourceLang *string
	var targetLang string
	if err := p.deps.DB.QueryRowContext(ctx,
		`SELECT source_language, target_language FROM jobs WHERE id = $1`, jobID,
	).Scan(&sourceLang, &targetLang); err != nil {
		return fmt.Errorf("failed to load job languages: %w", err)
	}

	// The transcriber downloads the audio itself.
	audioURL, err := p.deps.Storage.PresignedGetURL(ctx, payload.AudioKey, time.Hour)
	if err != nil {
		return fmt.Errorf("failed to presign audio url: %w", err)
	}

	hint := ""
	if sourceLang != nil {
		hint = *sourceLang
	}
	result, err := p.deps.Transcriber.Transcribe(ctx, audioURL, hint)
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}
	if len(result.Segments) == 0 {
		return fmt.Errorf("no speech found in source audio")
	}

	p.deps.Logger.Info("transcription completed",
		zap.String("job_id", jobID.String()),
		zap.String("language", result.Language),
		zap.Int("segment_count", len(result.Segments)),
	)

	resultJSON, _ := json.Marshal(result)
	if err := p.deps.Storage.PutObject(ctx, payload.OutputKey,
		bytes.NewReader(resultJSON), int64(len(resultJSON)), "application/json"); err != nil {
		return fmt.Errorf("failed to save transcript: %w", err)
	}

	now := time.Now()
	for _, seg := range result.Segments {
		if seg.EndMs <= seg.StartMs {
			return fmt.Errorf("transcriber returned invalid segment %d window [%d, %d]", seg.Idx, seg.StartMs, seg.EndMs)
		}
		speakerID := seg.SpeakerID
		if speakerID == "" {
			speakerID = "speaker_0"
		}
		var gender *string
		if seg.Gender != "" {
			g := seg.Gender
			gender = &g
		}
		if _, err := p.deps.DB.ExecContext(ctx, `
			INSERT INTO segments (job_id, idx, start_ms, end_ms, speaker_id, gender, src_text, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (job_id, idx) DO UPDATE
			SET start_ms = EXCLUDED.start_ms, end_ms = EXCLUDED.end_ms,
			    speaker_id = EXCLUDED.speaker_id, gender = EXCLUDED.gender,
			    src_text = EXCLUDED.src_text, updated_at = EXCLUDED.updated_at`,
			jobID, seg.Idx, seg.StartMs, seg.EndMs, speakerID, gender, seg.Text, now, now,
		); err != nil {
			return fmt.Errorf("failed to save segment %d: %w", seg.Idx, err)
		}
	}

	if result.Language != "" {
		if _, err := p.deps.DB.ExecContext(ctx,
			`UPDATE jobs SET source_language = $1, updated_at = $2 WHERE id = $3`,
			result.Language, now, jobID,
		); err != nil {
			return fmt.Errorf("failed to record detected language: %w", err)
		}
	}

	return publishNext(ctx, p.deps.Publisher, jobID, StepTranslate, models.TranslatePayload{
		TargetLanguage: targetLang,
	})
}
