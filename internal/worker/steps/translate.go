package steps

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"
	"github.com/VishnuKaranth/Dubbing-Software/internal/translate"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const flagTranslationFallback = "translation_fallback"

// TranslateProcessor translates every segment's source text with the
// terminology codec applied around the translator call.
type TranslateProcessor struct {
	deps       Deps
	translator *translate.SegmentTranslator
}

func NewTranslateProcessor(deps Deps) *TranslateProcessor {
	return &TranslateProcessor{
		deps: deps,
		translator: translate.NewSegmentTranslator(
			deps.Translator,
			deps.Terms,
			deps.Logger,
			deps.Config.Pipeline.TranslateRetries,
			deps.Config.Pipeline.TranslateConcurrency,
		),
	}
}

func (p *TranslateProcessor) Name() string {
	return StepTranslate
}

func (p *TranslateProcessor) Process(ctx context.Context, jobID uuid.UUID, msg models.JobMessage) error {
	var payload models.TranslatePayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	segments, err := loadSegments(ctx, p.deps, jobID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("no segments to translate")
	}

	var sourceLang *string
	if err := p.deps.DB.QueryRowContext(ctx,
		`SELECT source_language FROM jobs WHERE id = $1`, jobID,
	).Scan(&sourceLang); err != nil {
		return fmt.Errorf("failed to load source language: %w", err)
	}
	src := ""
	if sourceLang != nil {
		src = *sourceLang
	}

	p.deps.Logger.Info("processing translation",
		zap.String("job_id", jobID.String()),
		zap.String("source_language", src),
		zap.String("target_language", payload.TargetLanguage),
		zap.Int("segment_count", len(segments)),
	)

	results := p.translator.TranslateSegments(ctx, segments, src, payload.TargetLanguage)
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now()
	fallbacks := 0
	for _, res := range results {
		var flags *string
		if res.Fallback {
			fallbacks++
			f := flagTranslationFallback
			flags = &f
		}
		if _, err := p.deps.DB.ExecContext(ctx, `
			UPDATE segments SET mt_text = $1, flags = $2, updated_at = $3
			WHERE job_id = $4 AND idx = $5`,
			res.Text, flags, now, jobID, res.Idx,
		); err != nil {
			return fmt.Errorf("failed to save translation for segment %d: %w", res.Idx, err)
		}
	}
	if fallbacks > 0 {
		p.deps.Logger.Warn("some segments kept source text",
			zap.String("job_id", jobID.String()),
			zap.Int("fallback_count", fallbacks),
		)
	}

	// Side-by-side transcript becomes the job's transcript artifact.
	transcript := renderTranscript(segments, results)
	key := storage.TranscriptTextScratchKey(jobID.String())
	if err := p.deps.Storage.PutObject(ctx, key,
		bytes.NewReader(transcript), int64(len(transcript)), "text/plain; charset=utf-8"); err != nil {
		return fmt.Errorf("failed to save transcript text: %w", err)
	}

	return publishNext(ctx, p.deps.Publisher, jobID, StepSynthesize, models.SynthesizePayload{
		TargetLanguage: payload.TargetLanguage,
		VocalsKey:      storage.VocalsKey(jobID.String()),
	})
}

func renderTranscript(segments []models.Segment, results []translate.TranslatedSegment) []byte {
	var buf bytes.Buffer
	for i, seg := range segments {
		speaker := ""
		if seg.SpeakerID != nil {
			speaker = *seg.SpeakerID
		}
		fmt.Fprintf(&buf, "[%s - %s] %s\n", formatMs(seg.StartMs), formatMs(seg.EndMs), speaker)
		fmt.Fprintf(&buf, "%s\n", seg.SrcText)
		fmt.Fprintf(&buf, "%s\n\n", results[i].Text)
	}
	return buf.Bytes()
}

func formatMs(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60, ms%1000)
}
