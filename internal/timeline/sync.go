package timeline

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Planner computes pitch-preserving stretch plans that fit synthesized
// speech into the source video's timeline. Planning is pure; applying a
// plan is the media engine's job.
type Planner struct {
	stretchMin float64
	stretchMax float64
	tolerance  time.Duration
	logger     *zap.Logger
}

// NewPlanner creates a planner with the configured clamp bounds and end
// tolerance.
func NewPlanner(stretchMin, stretchMax float64, tolerance time.Duration, logger *zap.Logger) *Planner {
	return &Planner{
		stretchMin: stretchMin,
		stretchMax: stretchMax,
		tolerance:  tolerance,
		logger:     logger,
	}
}

// GlobalPlan is a single stretch factor applied once to the concatenated
// speech track.
type GlobalPlan struct {
	Factor  float64
	Clamped bool
}

// PlanGlobal computes the factor that fits rawMs of synthesized speech into
// targetMs of video. Speech already shorter than the target keeps natural
// pacing; speech is never slowed down to fill the video.
func (p *Planner) PlanGlobal(rawMs, targetMs int) (GlobalPlan, error) {
	if targetMs <= 0 {
		return GlobalPlan{}, fmt.Errorf("invalid target duration %dms", targetMs)
	}
	if rawMs <= targetMs {
		return GlobalPlan{Factor: 1.0}, nil
	}
	factor := float64(rawMs) / float64(targetMs)
	if factor > p.stretchMax {
		p.logger.Warn("global stretch factor clamped, output will drift past target",
			zap.Float64("raw_factor", factor),
			zap.Float64("clamp", p.stretchMax))
		return GlobalPlan{Factor: p.stretchMax, Clamped: true}, nil
	}
	return GlobalPlan{Factor: factor}, nil
}

// SegmentInput carries what per-segment planning needs about one segment.
type SegmentInput struct {
	Idx             int
	StartMs         int
	EndMs           int
	SynthDurationMs int
}

// Placement is one segment's position on the output timeline. Factor is the
// atempo tempo multiplier; DurationMs is the post-stretch length.
type Placement struct {
	Idx        int
	Factor     float64
	PlaceAtMs  int
	DurationMs int
}

// SegmentPlan places each stretched segment on the output timeline.
// CorrectiveFactor is 1.0 unless clamping pushed the final end past
// target + tolerance, in which case it is a uniform second pass over the
// assembled track.
type SegmentPlan struct {
	Placements       []Placement
	CorrectiveFactor float64
	TotalMs          int
}

// PlanSegments computes per-segment factors and placements. Segments are
// placed at their original start time; rounding overlaps nudge the later
// segment forward instead of overlapping audio.
func (p *Planner) PlanSegments(targetMs int, inputs []SegmentInput) (*SegmentPlan, error) {
	if targetMs <= 0 {
		return nil, fmt.Errorf("invalid target duration %dms", targetMs)
	}

	plan := &SegmentPlan{
		Placements:       make([]Placement, 0, len(inputs)),
		CorrectiveFactor: 1.0,
	}
	cursor := 0
	for _, in := range inputs {
		window := in.EndMs - in.StartMs
		if window <= 0 {
			return nil, fmt.Errorf("segment %d has non-positive window [%d, %d]", in.Idx, in.StartMs, in.EndMs)
		}

		pl := Placement{Idx: in.Idx, Factor: 1.0, PlaceAtMs: in.StartMs}
		if in.SynthDurationMs > 0 {
			factor := float64(in.SynthDurationMs) / float64(window)
			clamped := clamp(factor, p.stretchMin, p.stretchMax)
			if clamped != factor {
				p.logger.Debug("segment stretch factor clamped",
					zap.Int("segment", in.Idx),
					zap.Float64("raw_factor", factor),
					zap.Float64("factor", clamped))
			}
			pl.Factor = clamped
			pl.DurationMs = int(float64(in.SynthDurationMs) / clamped)
		}

		if pl.PlaceAtMs < cursor {
			pl.PlaceAtMs = cursor
		}
		cursor = pl.PlaceAtMs + pl.DurationMs
		plan.Placements = append(plan.Placements, pl)
	}

	plan.TotalMs = cursor
	limit := targetMs + int(p.tolerance.Milliseconds())
	if cursor > limit {
		plan.CorrectiveFactor = float64(cursor) / float64(targetMs)
		p.logger.Warn("placed timeline exceeds target, adding corrective pass",
			zap.Int("total_ms", cursor),
			zap.Int("target_ms", targetMs),
			zap.Float64("corrective_factor", plan.CorrectiveFactor))
	}
	return plan, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
