package translate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/terms"

	"go.uber.org/zap"
)

type stubTranslator struct {
	mu        sync.Mutex
	calls     int
	failIdx   map[string]int // text -> remaining failures
	transform func(string) string
}

func (s *stubTranslator) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	out := make([]string, len(texts))
	for i, text := range texts {
		if s.failIdx != nil {
			if remaining, ok := s.failIdx[text]; ok && remaining > 0 {
				s.failIdx[text] = remaining - 1
				return nil, fmt.Errorf("translator unavailable")
			}
		}
		if s.transform != nil {
			out[i] = s.transform(text)
		} else {
			out[i] = text
		}
	}
	return out, nil
}

func newTestSegmentTranslator(t *testing.T, translator Translator, retries int) *SegmentTranslator {
	t.Helper()
	dict, err := terms.NewDictionary(map[string]string{"ffmpeg": "FFmpeg"})
	if err != nil {
		t.Fatalf("failed to build dictionary: %v", err)
	}
	st := NewSegmentTranslator(translator, terms.NewCodec(dict, zap.NewNop()), zap.NewNop(), retries, 4)
	st.retryDelay = 0
	return st
}

func makeSegments(texts ...string) []models.Segment {
	segs := make([]models.Segment, len(texts))
	for i, text := range texts {
		segs[i] = models.Segment{Idx: i, StartMs: i * 1000, EndMs: (i + 1) * 1000, SrcText: text}
	}
	return segs
}

func TestTranslateSegmentsPreservesOrderAndCount(t *testing.T) {
	stub := &stubTranslator{transform: strings.ToUpper}
	st := newTestSegmentTranslator(t, stub, 0)

	segments := makeSegments("one", "two", "three", "four")
	results := st.TranslateSegments(context.Background(), segments, "en", "hi")

	if len(results) != len(segments) {
		t.Fatalf("expected %d results, got %d", len(segments), len(results))
	}
	for i, res := range results {
		if res.Idx != segments[i].Idx {
			t.Fatalf("result %d has idx %d, ordering broken", i, res.Idx)
		}
		if res.Text != strings.ToUpper(segments[i].SrcText) {
			t.Fatalf("result %d text %q", i, res.Text)
		}
		if res.Fallback {
			t.Fatalf("unexpected fallback on segment %d", i)
		}
	}
}

func TestTranslateSegmentsIdentityRoundTripWithTerms(t *testing.T) {
	// Identity translator: restore(translate(protect(text))) == text with
	// dictionary display forms intact.
	stub := &stubTranslator{}
	st := newTestSegmentTranslator(t, stub, 0)

	segments := makeSegments("run ffmpeg twice")
	results := st.TranslateSegments(context.Background(), segments, "en", "hi")

	if results[0].Text != "run FFmpeg twice" {
		t.Fatalf("term not preserved through round trip: %q", results[0].Text)
	}
}

func TestTranslateSegmentsEmptySegmentSkipsCall(t *testing.T) {
	stub := &stubTranslator{}
	st := newTestSegmentTranslator(t, stub, 0)

	results := st.TranslateSegments(context.Background(), makeSegments("", "   "), "en", "hi")

	if stub.calls != 0 {
		t.Fatalf("expected no translator calls for empty segments, got %d", stub.calls)
	}
	if results[0].Text != "" || results[1].Text != "   " {
		t.Fatalf("empty segments must pass through unchanged: %+v", results)
	}
}

func TestTranslateSegmentsFallbackAfterRetries(t *testing.T) {
	stub := &stubTranslator{failIdx: map[string]int{"broken": 100}}
	st := newTestSegmentTranslator(t, stub, 2)

	results := st.TranslateSegments(context.Background(), makeSegments("fine", "broken"), "en", "hi")

	if results[0].Fallback {
		t.Fatalf("healthy segment flagged as fallback")
	}
	if !results[1].Fallback {
		t.Fatalf("failing segment not flagged as fallback")
	}
	if results[1].Text != "broken" {
		t.Fatalf("fallback must keep source text, got %q", results[1].Text)
	}
}

func TestTranslateSegmentsRecoversWithinRetryBudget(t *testing.T) {
	stub := &stubTranslator{failIdx: map[string]int{"flaky": 1}}
	st := newTestSegmentTranslator(t, stub, 2)

	results := st.TranslateSegments(context.Background(), makeSegments("flaky"), "en", "hi")

	if results[0].Fallback {
		t.Fatalf("segment should recover within retry budget")
	}
	if results[0].Text != "flaky" {
		t.Fatalf("unexpected text %q", results[0].Text)
	}
}
