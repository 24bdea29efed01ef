package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/terms"

	"go.uber.org/zap"
)

// TranslatedSegment is the per-segment translation result. Results preserve
// the input ordering and count.
type TranslatedSegment struct {
	Idx      int
	Text     string
	Fallback bool
}

// SegmentTranslator applies the terminology codec around the translation call
// for each transcript segment independently.
type SegmentTranslator struct {
	translator  Translator
	codec       *terms.Codec
	logger      *zap.Logger
	maxRetries  int
	concurrency int
	retryDelay  time.Duration
}

// NewSegmentTranslator builds a segment translator.
func NewSegmentTranslator(translator Translator, codec *terms.Codec, logger *zap.Logger, maxRetries, concurrency int) *SegmentTranslator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SegmentTranslator{
		translator:  translator,
		codec:       codec,
		logger:      logger,
		maxRetries:  maxRetries,
		concurrency: concurrency,
		retryDelay:  time.Second,
	}
}

// TranslateSegments translates each segment, returning one result per input
// segment in the same order. Segments are translated independently and in
// parallel up to the configured concurrency; a segment whose translation
// exhausts its retries falls back to the source text with a fallback flag
// rather than failing the batch.
func (st *SegmentTranslator) TranslateSegments(ctx context.Context, segments []models.Segment, sourceLang, targetLang string) []TranslatedSegment {
	results := make([]TranslatedSegment, len(segments))

	sem := make(chan struct{}, st.concurrency)
	var wg sync.WaitGroup

	for i, seg := range segments {
		results[i] = TranslatedSegment{Idx: seg.Idx}

		// Empty segments pass through with no network call.
		if strings.TrimSpace(seg.SrcText) == "" {
			results[i].Text = seg.SrcText
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(pos int, segment models.Segment) {
			defer wg.Done()
			defer func() { <-sem }()
			results[pos] = st.translateOne(ctx, segment, sourceLang, targetLang)
		}(i, seg)
	}

	wg.Wait()
	return results
}

func (st *SegmentTranslator) translateOne(ctx context.Context, seg models.Segment, sourceLang, targetLang string) TranslatedSegment {
	protected := st.codec.Protect(seg.SrcText)

	var lastErr error
	for attempt := 0; attempt <= st.maxRetries; attempt++ {
		if attempt > 0 {
			delay := st.retryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				attempt = st.maxRetries
				continue
			case <-time.After(delay):
			}
		}

		translated, err := st.translator.Translate(ctx, []string{protected.Text}, sourceLang, targetLang)
		if err != nil {
			lastErr = err
			st.logger.Warn("Segment translation attempt failed",
				zap.Int("segment_idx", seg.Idx),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		if len(translated) != 1 {
			lastErr = fmt.Errorf("unexpected translation response length: %d", len(translated))
			continue
		}

		return TranslatedSegment{
			Idx:  seg.Idx,
			Text: st.codec.Restore(translated[0], protected.Mapping),
		}
	}

	// Degrade to the original-language text; the job continues.
	st.logger.Warn("Segment translation exhausted retries, keeping source text",
		zap.Int("segment_idx", seg.Idx),
		zap.Error(lastErr),
	)
	return TranslatedSegment{Idx: seg.Idx, Text: seg.SrcText, Fallback: true}
}
