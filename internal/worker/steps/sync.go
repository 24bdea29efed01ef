package steps

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/media"
	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"
	"github.com/VishnuKaranth/Dubbing-Software/internal/timeline"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncProcessor fits the synthesized segments onto the source timeline and
// assembles the full dubbed speech track.
type SyncProcessor struct {
	deps    Deps
	planner *timeline.Planner
}

func NewSyncProcessor(deps Deps) *SyncProcessor {
	return &SyncProcessor{
		deps: deps,
		planner: timeline.NewPlanner(
			deps.Config.Pipeline.StretchMin,
			deps.Config.Pipeline.StretchMax,
			deps.Config.Pipeline.SyncTolerance,
			deps.Logger,
		),
	}
}

func (p *SyncProcessor) Name() string {
	return StepSync
}

func (p *SyncProcessor) Process(ctx context.Context, jobID uuid.UUID, msg models.JobMessage) error {
	var payload models.SyncPayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}

	segments, err := loadSegments(ctx, p.deps, jobID)
	if err != nil {
		return err
	}

	var targetMs int
	if err := p.deps.DB.QueryRowContext(ctx,
		`SELECT duration_ms FROM jobs WHERE id = $1`, jobID,
	).Scan(&targetMs); err != nil {
		return fmt.Errorf("failed to load job duration: %w", err)
	}

	p.deps.Logger.Info("processing sync",
		zap.String("job_id", jobID.String()),
		zap.Int("target_ms", targetMs),
		zap.Int("segment_count", len(segments)),
		zap.Bool("per_segment", p.deps.Config.Pipeline.PerSegmentSync),
	)

	workDir, err := os.MkdirTemp("", fmt.Sprintf("sync_%s_*", jobID))
	if err != nil {
		return fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	segPaths := make([]string, len(segments))
	for i, seg := range segments {
		if seg.TTSAudioKey == nil {
			return fmt.Errorf("segment %d has no synthesized audio", seg.Idx)
		}
		segPaths[i] = filepath.Join(workDir, fmt.Sprintf("seg_%04d.wav", seg.Idx))
		if err := fetchToFile(ctx, p.deps.Storage, *seg.TTSAudioKey, segPaths[i]); err != nil {
			return err
		}
	}

	var outPath string
	if p.deps.Config.Pipeline.PerSegmentSync {
		outPath, err = p.syncPerSegment(ctx, segments, segPaths, targetMs, workDir)
	} else {
		outPath, err = p.syncGlobal(ctx, segments, segPaths, targetMs, workDir)
	}
	if err != nil {
		return err
	}

	return p.finish(ctx, jobID, payload.OutputAudioKey, outPath)
}

// syncPerSegment stretches each segment to its own window and places it at
// its original start time.
func (p *SyncProcessor) syncPerSegment(ctx context.Context, segments []models.Segment, segPaths []string, targetMs int, workDir string) (string, error) {
	inputs := make([]timeline.SegmentInput, len(segments))
	for i, seg := range segments {
		inputs[i] = timeline.SegmentInput{
			Idx:             seg.Idx,
			StartMs:         seg.StartMs,
			EndMs:           seg.EndMs,
			SynthDurationMs: seg.TTSDurationMs,
		}
	}
	plan, err := p.planner.PlanSegments(targetMs, inputs)
	if err != nil {
		return "", fmt.Errorf("segment planning failed: %w", err)
	}

	stretched := make([]string, len(segments))
	for i, pl := range plan.Placements {
		stretched[i] = segPaths[i]
		if pl.DurationMs == 0 {
			stretched[i] = ""
			continue
		}
		if pl.Factor != 1.0 {
			out := filepath.Join(workDir, fmt.Sprintf("stretched_%04d.wav", pl.Idx))
			if err := p.deps.Media.Stretch(ctx, segPaths[i], out, pl.Factor); err != nil {
				return "", fmt.Errorf("failed to stretch segment %d: %w", pl.Idx, err)
			}
			stretched[i] = out
		}
	}

	assembled, err := p.assemble(ctx, plan.Placements, stretched, workDir)
	if err != nil {
		return "", err
	}

	if plan.CorrectiveFactor > 1.0 {
		corrected := filepath.Join(workDir, "corrected.wav")
		if err := p.deps.Media.Stretch(ctx, assembled, corrected, plan.CorrectiveFactor); err != nil {
			return "", fmt.Errorf("corrective stretch failed: %w", err)
		}
		assembled = corrected
	}

	return p.pad(ctx, assembled, targetMs, workDir)
}

// syncGlobal assembles segments at natural pace on the original timeline and
// applies a single stretch to the whole track.
func (p *SyncProcessor) syncGlobal(ctx context.Context, segments []models.Segment, segPaths []string, targetMs int, workDir string) (string, error) {
	placements := make([]timeline.Placement, len(segments))
	cursor := 0
	for i, seg := range segments {
		pl := timeline.Placement{Idx: seg.Idx, Factor: 1.0, PlaceAtMs: seg.StartMs, DurationMs: seg.TTSDurationMs}
		if pl.PlaceAtMs < cursor {
			pl.PlaceAtMs = cursor
		}
		cursor = pl.PlaceAtMs + pl.DurationMs
		placements[i] = pl
		if seg.TTSDurationMs == 0 {
			segPaths[i] = ""
		}
	}

	assembled, err := p.assemble(ctx, placements, segPaths, workDir)
	if err != nil {
		return "", err
	}

	plan, err := p.planner.PlanGlobal(cursor, targetMs)
	if err != nil {
		return "", fmt.Errorf("global planning failed: %w", err)
	}
	if plan.Factor != 1.0 {
		out := filepath.Join(workDir, "stretched.wav")
		if err := p.deps.Media.Stretch(ctx, assembled, out, plan.Factor); err != nil {
			return "", fmt.Errorf("global stretch failed: %w", err)
		}
		assembled = out
	}

	return p.pad(ctx, assembled, targetMs, workDir)
}

// assemble lays segments onto a silent timeline via an ffmpeg concat list,
// generating silence files for the gaps between placements.
func (p *SyncProcessor) assemble(ctx context.Context, placements []timeline.Placement, paths []string, workDir string) (string, error) {
	sampleRate := p.deps.Config.External.Synthesizer.SampleRate

	var entries []string
	cursor := 0
	silenceCount := 0
	for i, pl := range placements {
		if gap := pl.PlaceAtMs - cursor; gap > 0 {
			silencePath := filepath.Join(workDir, fmt.Sprintf("silence_%04d.wav", silenceCount))
			silenceCount++
			if err := media.WriteSilence(silencePath, time.Duration(gap)*time.Millisecond, sampleRate); err != nil {
				return "", fmt.Errorf("failed to write gap silence: %w", err)
			}
			entries = append(entries, silencePath)
			cursor = pl.PlaceAtMs
		}
		if paths[i] == "" {
			continue
		}
		entries = append(entries, paths[i])
		cursor += pl.DurationMs
	}
	if len(entries) == 0 {
		return "", fmt.Errorf("nothing to assemble")
	}

	var list strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&list, "file '%s'\n", e)
	}
	listPath := filepath.Join(workDir, "concat.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return "", fmt.Errorf("failed to write concat list: %w", err)
	}

	outPath := filepath.Join(workDir, "assembled.wav")
	if err := p.deps.Media.Concat(ctx, listPath, outPath, sampleRate); err != nil {
		return "", fmt.Errorf("assembly failed: %w", err)
	}
	return outPath, nil
}

// pad extends the track with trailing silence to the full video length.
func (p *SyncProcessor) pad(ctx context.Context, inPath string, targetMs int, workDir string) (string, error) {
	outPath := filepath.Join(workDir, "dub.wav")
	if err := p.deps.Media.PadAudio(ctx, inPath, outPath, time.Duration(targetMs)*time.Millisecond); err != nil {
		return "", fmt.Errorf("failed to pad dubbed track: %w", err)
	}
	return outPath, nil
}

func (p *SyncProcessor) finish(ctx context.Context, jobID uuid.UUID, outputKey, outPath string) error {
	if err := uploadFile(ctx, p.deps.Storage, outputKey, outPath, "audio/wav"); err != nil {
		return err
	}

	id := jobID.String()
	var separated bool
	if err := p.deps.DB.QueryRowContext(ctx,
		`SELECT separated FROM jobs WHERE id = $1`, jobID,
	).Scan(&separated); err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	remix := models.RemixPayload{
		SourceVideoKey: storage.SourceVideoKey(id),
		DubbedAudioKey: outputKey,
		OutputVideoKey: storage.FinalVideoScratchKey(id),
	}
	if separated {
		remix.InstrumentalKey = storage.InstrumentalKey(id)
	}
	return publishNext(ctx, p.deps.Publisher, jobID, StepRemix, remix)
}
