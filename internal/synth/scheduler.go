package synth

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/media"
	"github.com/VishnuKaranth/Dubbing-Software/internal/models"

	"go.uber.org/zap"
)

// Result is one synthesized segment on local disk.
type Result struct {
	Idx        int
	Path       string
	DurationMs int
	// Fallback marks segments whose synthesis failed after all retries and
	// were replaced with silence of the segment window length.
	Fallback bool
}

// Scheduler fans segment synthesis out over a bounded worker pool. Segment
// order in the returned slice always matches the input order.
type Scheduler struct {
	synth       Synthesizer
	resolver    *ProfileResolver
	logger      *zap.Logger
	maxRetries  int
	concurrency int
	retryDelay  time.Duration
	sampleRate  int
}

// NewScheduler creates a synthesis scheduler for one job.
func NewScheduler(synth Synthesizer, resolver *ProfileResolver, maxRetries, concurrency, sampleRate int, logger *zap.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		synth:       synth,
		resolver:    resolver,
		logger:      logger,
		maxRetries:  maxRetries,
		concurrency: concurrency,
		retryDelay:  time.Second,
		sampleRate:  sampleRate,
	}
}

// SynthesizeSegments synthesizes every segment's translated text into a WAV
// file under outDir. A segment that cannot be synthesized after retries is
// written as silence and flagged, so one bad segment never fails the job.
func (s *Scheduler) SynthesizeSegments(ctx context.Context, segments []models.Segment, targetLang, promptAudioURL, outDir string) ([]Result, error) {
	results := make([]Result, len(segments))

	// Profiles are resolved up front so the per-speaker assignment does not
	// depend on worker scheduling order.
	profiles := make([]VoiceProfile, len(segments))
	for i, seg := range segments {
		speaker, gender := "", ""
		if seg.SpeakerID != nil {
			speaker = *seg.SpeakerID
		}
		if seg.Gender != nil {
			gender = *seg.Gender
		}
		profiles[i] = s.resolver.Resolve(speaker, targetLang, gender, promptAudioURL)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)
	for i := range segments {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.synthesizeOne(ctx, segments[i], profiles[i], targetLang, outDir)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Scheduler) synthesizeOne(ctx context.Context, seg models.Segment, profile VoiceProfile, targetLang, outDir string) Result {
	path := filepath.Join(outDir, fmt.Sprintf("seg_%04d.wav", seg.Idx))
	text := ""
	if seg.MtText != nil {
		text = *seg.MtText
	}
	if text == "" {
		// Nothing to speak; keep the timeline slot with silence.
		r := s.silenceResult(seg, path)
		r.Fallback = false
		return r
	}

	req := SynthesisRequest{
		Text:             text,
		Language:         targetLang,
		Engine:           profile.Engine,
		Voice:            profile.Voice,
		PromptAudioURL:   profile.PromptAudioURL,
		TargetDurationMs: seg.WindowMs(),
		OutputFormat:     "wav",
		SampleRate:       s.sampleRate,
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return s.silenceResult(seg, path)
			case <-time.After(s.retryDelay * time.Duration(attempt)):
			}
		}

		stream, err := s.synth.Synthesize(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if err := writeStream(path, stream); err != nil {
			lastErr = err
			continue
		}
		dur, err := media.WAVDuration(path)
		if err != nil {
			lastErr = err
			continue
		}
		return Result{Idx: seg.Idx, Path: path, DurationMs: int(dur.Milliseconds())}
	}

	s.logger.Warn("segment synthesis failed, substituting silence",
		zap.Int("segment", seg.Idx),
		zap.Error(lastErr))
	return s.silenceResult(seg, path)
}

func (s *Scheduler) silenceResult(seg models.Segment, path string) Result {
	window := time.Duration(seg.WindowMs()) * time.Millisecond
	if err := media.WriteSilence(path, window, s.sampleRate); err != nil {
		s.logger.Error("failed to write silence fallback",
			zap.Int("segment", seg.Idx),
			zap.Error(err))
	}
	return Result{Idx: seg.Idx, Path: path, DurationMs: seg.WindowMs(), Fallback: true}
}

func writeStream(path string, stream io.ReadCloser) error {
	defer stream.Close()
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create segment audio file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, stream); err != nil {
		return fmt.Errorf("failed to write segment audio: %w", err)
	}
	return nil
}
