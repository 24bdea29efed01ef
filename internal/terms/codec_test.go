package terms

import (
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testCodec(t *testing.T, raw map[string]string) *Codec {
	t.Helper()
	dict, err := NewDictionary(raw)
	if err != nil {
		t.Fatalf("failed to build dictionary: %v", err)
	}
	return NewCodec(dict, zap.NewNop())
}

func TestProtectRestoreRoundTrip(t *testing.T) {
	codec := testCodec(t, map[string]string{
		"kubernetes": "Kubernetes",
		"gRPC":       "gRPC",
	})

	input := "Deploy the service on kubernetes and expose it over gRPC."
	protected := codec.Protect(input)

	if strings.Contains(protected.Text, "kubernetes") || strings.Contains(protected.Text, "gRPC") {
		t.Fatalf("terms not protected: %q", protected.Text)
	}
	if len(protected.Mapping) != 2 {
		t.Fatalf("expected 2 mapped placeholders, got %d", len(protected.Mapping))
	}

	// Identity translator round-trip restores display forms verbatim.
	restored := codec.Restore(protected.Text, protected.Mapping)
	want := "Deploy the service on Kubernetes and expose it over gRPC."
	if restored != want {
		t.Fatalf("round-trip mismatch:\n got %q\nwant %q", restored, want)
	}
}

func TestProtectLongestMatchFirst(t *testing.T) {
	codec := testCodec(t, map[string]string{
		"machine learning":       "machine learning",
		"machine learning model": "machine learning model",
	})

	protected := codec.Protect("Train the machine learning model overnight.")
	if len(protected.Mapping) != 1 {
		t.Fatalf("expected a single longest-match placeholder, got mapping %v", protected.Mapping)
	}
	for _, term := range protected.Mapping {
		if term != "machine learning model" {
			t.Fatalf("longest match not preferred, got %q", term)
		}
	}
}

func TestProtectWordBoundary(t *testing.T) {
	codec := testCodec(t, map[string]string{"API": "API"})

	protected := codec.Protect("The rapid APIs of the API.")
	// "rapid" and "APIs" must survive; only the standalone "API" is protected.
	if !strings.Contains(protected.Text, "rapid") || !strings.Contains(protected.Text, "APIs") {
		t.Fatalf("substring protected inside an unrelated word: %q", protected.Text)
	}
	if len(protected.Mapping) != 1 {
		t.Fatalf("expected 1 placeholder, got %d", len(protected.Mapping))
	}
}

func TestProtectCaseInsensitive(t *testing.T) {
	codec := testCodec(t, map[string]string{"postgresql": "PostgreSQL"})

	protected := codec.Protect("We run POSTGRESQL and postgresql side by side.")
	restored := codec.Restore(protected.Text, protected.Mapping)
	if restored != "We run PostgreSQL and PostgreSQL side by side." {
		t.Fatalf("case-insensitive protection failed: %q", restored)
	}
}

func TestRestoreFuzzyRecovery(t *testing.T) {
	codec := testCodec(t, map[string]string{"ffmpeg": "FFmpeg"})

	protected := codec.Protect("Use ffmpeg to remux.")
	if len(protected.Mapping) != 1 {
		t.Fatalf("expected 1 placeholder, got %d", len(protected.Mapping))
	}

	// Simulate translator mangling: case change, spacing, dropped underscores.
	corrupted := map[string]string{
		"Use _ Term 0 _ to remux.": "Use FFmpeg to remux.",
		"Use __term_0__ to remux.": "Use FFmpeg to remux.",
		"Use TERM-0 to remux.":     "Use FFmpeg to remux.",
	}
	for in, want := range corrupted {
		if got := codec.Restore(in, protected.Mapping); got != want {
			t.Fatalf("fuzzy restore of %q: got %q, want %q", in, got, want)
		}
	}
}

func TestRestoreLostPlaceholderDegradesSoftly(t *testing.T) {
	codec := testCodec(t, map[string]string{"ffmpeg": "FFmpeg"})
	protected := codec.Protect("ffmpeg")

	// Translator dropped the placeholder entirely; restore must not fail.
	got := codec.Restore("something unrelated", protected.Mapping)
	if got != "something unrelated" {
		t.Fatalf("restore altered text with no placeholder: %q", got)
	}
}

func TestProtectEmptyDictionary(t *testing.T) {
	codec := testCodec(t, nil)
	protected := codec.Protect("plain text")
	if protected.Text != "plain text" || len(protected.Mapping) != 0 {
		t.Fatalf("empty dictionary must be a no-op, got %q with %v", protected.Text, protected.Mapping)
	}
}
