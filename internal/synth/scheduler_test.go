package synth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"

	"go.uber.org/zap"
)

// stubSynth returns a short valid WAV per call, failing the first failCount
// calls for texts listed in failTexts.
type stubSynth struct {
	mu        sync.Mutex
	calls     int
	requests  []SynthesisRequest
	failTexts map[string]int
}

func (s *stubSynth) Synthesize(ctx context.Context, req SynthesisRequest) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)
	if remaining, ok := s.failTexts[req.Text]; ok && remaining > 0 {
		s.failTexts[req.Text] = remaining - 1
		return nil, fmt.Errorf("synthesis backend unavailable")
	}
	return io.NopCloser(bytes.NewReader(makeWAV(16000, 1600))), nil
}

func makeWAV(sampleRate, samples int) []byte {
	var buf seekableBuffer
	enc := wav.NewEncoder(&buf, sampleRate, 16, 1, 1)
	enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, samples),
	})
	enc.Close()
	return buf.data
}

// seekableBuffer satisfies the encoder's io.WriteSeeker requirement.
type seekableBuffer struct {
	data []byte
	pos  int
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	if b.pos+len(p) > len(b.data) {
		grown := make([]byte, b.pos+len(p))
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		b.pos = int(offset)
	case io.SeekCurrent:
		b.pos += int(offset)
	case io.SeekEnd:
		b.pos = len(b.data) + int(offset)
	}
	return int64(b.pos), nil
}

func strPtr(s string) *string { return &s }

func testSegments() []models.Segment {
	return []models.Segment{
		{Idx: 0, StartMs: 0, EndMs: 2000, SpeakerID: strPtr("spk0"), Gender: strPtr("female"), MtText: strPtr("namaste")},
		{Idx: 1, StartMs: 2000, EndMs: 4500, SpeakerID: strPtr("spk1"), Gender: strPtr("male"), MtText: strPtr("dhanyavaad")},
	}
}

func TestSynthesizeSegmentsPreservesOrder(t *testing.T) {
	stub := &stubSynth{}
	sched := NewScheduler(stub, NewProfileResolver(nil), 2, 4, 16000, zap.NewNop())
	sched.retryDelay = 0

	results, err := sched.SynthesizeSegments(context.Background(), testSegments(), "hi", "", t.TempDir())
	if err != nil {
		t.Fatalf("SynthesizeSegments returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, r := range results {
		if r.Idx != i {
			t.Errorf("result %d has idx %d", i, r.Idx)
		}
		if r.Fallback {
			t.Errorf("result %d unexpectedly flagged as fallback", i)
		}
		if r.DurationMs <= 0 {
			t.Errorf("result %d has non-positive duration", i)
		}
	}
}

func TestSynthesizeSegmentsSilenceFallback(t *testing.T) {
	stub := &stubSynth{failTexts: map[string]int{"dhanyavaad": 10}}
	sched := NewScheduler(stub, NewProfileResolver(nil), 1, 1, 16000, zap.NewNop())
	sched.retryDelay = 0

	results, err := sched.SynthesizeSegments(context.Background(), testSegments(), "hi", "", t.TempDir())
	if err != nil {
		t.Fatalf("SynthesizeSegments returned error: %v", err)
	}
	if results[0].Fallback {
		t.Errorf("healthy segment flagged as fallback")
	}
	if !results[1].Fallback {
		t.Fatalf("failed segment not flagged as fallback")
	}
	// Silence spans the segment window so downstream placement stays intact.
	if results[1].DurationMs != 2500 {
		t.Errorf("fallback duration = %d, want window 2500", results[1].DurationMs)
	}
}

func TestSynthesizeSegmentsRetriesTransientFailure(t *testing.T) {
	stub := &stubSynth{failTexts: map[string]int{"namaste": 1}}
	sched := NewScheduler(stub, NewProfileResolver(nil), 2, 1, 16000, zap.NewNop())
	sched.retryDelay = 0

	results, err := sched.SynthesizeSegments(context.Background(), testSegments(), "hi", "", t.TempDir())
	if err != nil {
		t.Fatalf("SynthesizeSegments returned error: %v", err)
	}
	if results[0].Fallback {
		t.Errorf("segment should have recovered within retry budget")
	}
}

func TestProfileResolverEnginePerLanguage(t *testing.T) {
	r := NewProfileResolver([]string{"en", "es", "fr", "hi"})

	clone := r.Resolve("spk0", "hi", "female", "https://storage/vocals.wav")
	if clone.Engine != EngineClone || clone.PromptAudioURL == "" {
		t.Errorf("expected clone profile for supported language, got %+v", clone)
	}

	neural := r.Resolve("spk1", "kn", "female", "https://storage/vocals.wav")
	if neural.Engine != EngineNeural || neural.Voice != "kn-IN-SapnaNeural" {
		t.Errorf("expected curated kannada voice, got %+v", neural)
	}

	// Same speaker resolves to the same profile on every call.
	again := r.Resolve("spk0", "hi", "female", "https://storage/other.wav")
	if again != clone {
		t.Errorf("speaker profile not stable: %+v vs %+v", again, clone)
	}
}

func TestCuratedVoiceFallbacks(t *testing.T) {
	if v := CuratedVoice("ta", "male"); v != "ta-IN-ValluvarNeural" {
		t.Errorf("unexpected tamil male voice %q", v)
	}
	if v := CuratedVoice("xx", "female"); v != "en-US-JennyNeural" {
		t.Errorf("unknown language should fall back to english, got %q", v)
	}
	if v := CuratedVoice("te", ""); v != "te-IN-MohanNeural" {
		t.Errorf("unknown gender should fall back to male voice, got %q", v)
	}
}
