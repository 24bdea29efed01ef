package timeline

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testPlanner() *Planner {
	return NewPlanner(0.5, 2.0, 300*time.Millisecond, zap.NewNop())
}

func TestPlanGlobalComputesFactor(t *testing.T) {
	// 12.0s of synthesized speech onto a 10.0s video compresses by 1.2.
	plan, err := testPlanner().PlanGlobal(12000, 10000)
	if err != nil {
		t.Fatalf("PlanGlobal returned error: %v", err)
	}
	if math.Abs(plan.Factor-1.2) > 1e-9 {
		t.Errorf("factor = %v, want 1.2", plan.Factor)
	}
	if plan.Clamped {
		t.Errorf("factor 1.2 should not be clamped")
	}
}

func TestPlanGlobalSparseSpeechKeepsNaturalPace(t *testing.T) {
	plan, err := testPlanner().PlanGlobal(4000, 10000)
	if err != nil {
		t.Fatalf("PlanGlobal returned error: %v", err)
	}
	if plan.Factor != 1.0 {
		t.Errorf("sparse speech factor = %v, want 1.0", plan.Factor)
	}
}

func TestPlanGlobalClampsExtremeFactor(t *testing.T) {
	plan, err := testPlanner().PlanGlobal(30000, 10000)
	if err != nil {
		t.Fatalf("PlanGlobal returned error: %v", err)
	}
	if plan.Factor != 2.0 || !plan.Clamped {
		t.Errorf("got %+v, want factor 2.0 clamped", plan)
	}
}

func TestPlanGlobalRejectsZeroTarget(t *testing.T) {
	if _, err := testPlanner().PlanGlobal(1000, 0); err == nil {
		t.Fatal("expected error for zero target duration")
	}
}

func TestPlanSegmentsFactorsAndPlacement(t *testing.T) {
	plan, err := testPlanner().PlanSegments(10000, []SegmentInput{
		{Idx: 0, StartMs: 0, EndMs: 2000, SynthDurationMs: 3000},    // 1.5x
		{Idx: 1, StartMs: 3000, EndMs: 5000, SynthDurationMs: 2000}, // exact fit
		{Idx: 2, StartMs: 6000, EndMs: 8000, SynthDurationMs: 1000}, // 0.5x
	})
	if err != nil {
		t.Fatalf("PlanSegments returned error: %v", err)
	}

	want := []Placement{
		{Idx: 0, Factor: 1.5, PlaceAtMs: 0, DurationMs: 2000},
		{Idx: 1, Factor: 1.0, PlaceAtMs: 3000, DurationMs: 2000},
		{Idx: 2, Factor: 0.5, PlaceAtMs: 6000, DurationMs: 2000},
	}
	for i, w := range want {
		got := plan.Placements[i]
		if got != w {
			t.Errorf("placement %d = %+v, want %+v", i, got, w)
		}
	}
	if plan.CorrectiveFactor != 1.0 {
		t.Errorf("corrective factor = %v, want 1.0", plan.CorrectiveFactor)
	}
}

func TestPlanSegmentsNudgesOverlapForward(t *testing.T) {
	// First segment overruns its window after clamping; the second is nudged
	// forward rather than overlapped.
	plan, err := testPlanner().PlanSegments(20000, []SegmentInput{
		{Idx: 0, StartMs: 0, EndMs: 1000, SynthDurationMs: 4000}, // clamps to 2.0 -> 2000ms
		{Idx: 1, StartMs: 1500, EndMs: 3000, SynthDurationMs: 1500},
	})
	if err != nil {
		t.Fatalf("PlanSegments returned error: %v", err)
	}
	if plan.Placements[0].Factor != 2.0 || plan.Placements[0].DurationMs != 2000 {
		t.Errorf("unexpected first placement: %+v", plan.Placements[0])
	}
	if plan.Placements[1].PlaceAtMs != 2000 {
		t.Errorf("second segment placed at %d, want nudged to 2000", plan.Placements[1].PlaceAtMs)
	}
}

func TestPlanSegmentsZeroDurationPlaceholder(t *testing.T) {
	plan, err := testPlanner().PlanSegments(10000, []SegmentInput{
		{Idx: 0, StartMs: 0, EndMs: 2000, SynthDurationMs: 0},
		{Idx: 1, StartMs: 2000, EndMs: 4000, SynthDurationMs: 2000},
	})
	if err != nil {
		t.Fatalf("PlanSegments returned error: %v", err)
	}
	if plan.Placements[0].DurationMs != 0 || plan.Placements[0].Factor != 1.0 {
		t.Errorf("zero-duration segment should be a zero-length placeholder: %+v", plan.Placements[0])
	}
	if plan.Placements[1].PlaceAtMs != 2000 {
		t.Errorf("second segment displaced by empty placeholder: %+v", plan.Placements[1])
	}
}

func TestPlanSegmentsCorrectivePass(t *testing.T) {
	// Clamped segments pile past the end of the video beyond the tolerance,
	// so the plan carries a uniform corrective factor.
	plan, err := testPlanner().PlanSegments(3000, []SegmentInput{
		{Idx: 0, StartMs: 0, EndMs: 1000, SynthDurationMs: 4000},    // 2000ms after clamp
		{Idx: 1, StartMs: 1000, EndMs: 2000, SynthDurationMs: 4000}, // 2000ms after clamp
	})
	if err != nil {
		t.Fatalf("PlanSegments returned error: %v", err)
	}
	if plan.TotalMs != 4000 {
		t.Fatalf("total = %d, want 4000", plan.TotalMs)
	}
	want := 4000.0 / 3000.0
	if math.Abs(plan.CorrectiveFactor-want) > 1e-9 {
		t.Errorf("corrective factor = %v, want %v", plan.CorrectiveFactor, want)
	}
}

func TestPlanSegmentsRejectsInvalidWindow(t *testing.T) {
	_, err := testPlanner().PlanSegments(10000, []SegmentInput{
		{Idx: 0, StartMs: 2000, EndMs: 2000, SynthDurationMs: 1000},
	})
	if err == nil {
		t.Fatal("expected error for non-positive segment window")
	}
}
