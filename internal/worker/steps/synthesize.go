package steps

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"
	"github.com/VishnuKaranth/Dubbing-Software/internal/synth"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const flagSynthesisFallback = "synthesis_fallback"

// SynthesizeProcessor generates speech audio for every translated segment.
type SynthesizeProcessor struct {
	deps Deps
}

func NewSynthesizeProcessor(deps Deps) *SynthesizeProcessor {
	return &SynthesizeProcessor{deps: deps}
}

func (p *SynthesizeProcessor) Name() string {
	return StepSynthesize
}

func (p *SynthesizeProcessor) Process(ctx context.Context, jobID uuid.UUID, msg models.JobMessage) error {
	var payload models.SynthesizePayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	segments, err := loadSegments(ctx, p.deps, jobID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("no segments to synthesize")
	}

	var separated bool
	if err := p.deps.DB.QueryRowContext(ctx,
		`SELECT separated FROM jobs WHERE id = $1`, jobID,
	).Scan(&separated); err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	// The cloning engine conditions on the source speaker's voice, so it
	// gets the vocal stem as a prompt when separation ran.
	promptURL := ""
	if separated {
		promptURL, err = p.deps.Storage.PresignedGetURL(ctx, payload.VocalsKey, time.Hour)
		if err != nil {
			return fmt.Errorf("failed to presign vocals url: %w", err)
		}
	}

	p.deps.Logger.Info("processing synthesis",
		zap.String("job_id", jobID.String()),
		zap.String("target_language", payload.TargetLanguage),
		zap.Int("segment_count", len(segments)),
		zap.Bool("clone_prompt", promptURL != ""),
	)

	workDir, err := os.MkdirTemp("", fmt.Sprintf("synth_%s_*", jobID))
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	scheduler := synth.NewScheduler(
		p.deps.Synth,
		synth.NewProfileResolver(p.deps.Config.External.Synthesizer.CloneLanguages),
		p.deps.Config.Pipeline.SynthesisRetries,
		p.deps.Config.Pipeline.SynthesisConcurrency,
		p.deps.Config.External.Synthesizer.SampleRate,
		p.deps.Logger,
	)
	results, err := scheduler.SynthesizeSegments(ctx, segments, payload.TargetLanguage, promptURL, workDir)
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	now := time.Now()
	fallbacks := 0
	for _, res := range results {
		key := storage.SegmentAudioKey(jobID.String(), res.Idx)
		if err := uploadFile(ctx, p.deps.Storage, key, res.Path, "audio/wav"); err != nil {
			return err
		}

		var flags *string
		if res.Fallback {
			fallbacks++
			f := flagSynthesisFallback
			flags = &f
		}
		// Flags accumulate as a comma-joined set so an earlier
		// translation_fallback survives a later synthesis_fallback.
		if _, err := p.deps.DB.ExecContext(ctx, `
			UPDATE segments SET tts_audio_key = $1, tts_duration_ms = $2,
			       flags = CASE
			           WHEN $3::varchar IS NULL THEN flags
			           WHEN flags IS NULL OR flags = '' THEN $3
			           WHEN position($3 in flags) > 0 THEN flags
			           ELSE flags || ',' || $3
			       END,
			       updated_at = $4
			WHERE job_id = $5 AND idx = $6`,
			key, res.DurationMs, flags, now, jobID, res.Idx,
		); err != nil {
			return fmt.Errorf("failed to save synthesis result for segment %d: %w", res.Idx, err)
		}
	}
	if fallbacks > 0 {
		p.deps.Logger.Warn("some segments were replaced with silence",
			zap.String("job_id", jobID.String()),
			zap.Int("fallback_count", fallbacks),
		)
	}

	return publishNext(ctx, p.deps.Publisher, jobID, StepSync, models.SyncPayload{
		OutputAudioKey: storage.DubbedAudioScratchKey(jobID.String()),
	})
}
