package steps

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"
	"github.com/VishnuKaranth/Dubbing-Software/internal/database"
	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"
	"github.com/VishnuKaranth/Dubbing-Software/internal/synth"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	lastRoutingKey string
	lastMessage    interface{}
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	p.lastRoutingKey = routingKey
	p.lastMessage = message
	return nil
}

// nopStore satisfies storage.ObjectStorage for steps that only upload.
type nopStore struct{}

func (nopStore) PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return nil
}

func (nopStore) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("not implemented")
}

func (nopStore) DeleteObject(ctx context.Context, key string) error {
	return nil
}

func (nopStore) DeletePrefix(ctx context.Context, prefix string) error {
	return nil
}

func (nopStore) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	return nil
}

func (nopStore) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://minio.local/" + key, nil
}

func (nopStore) ObjectExists(ctx context.Context, key string) (bool, error) {
	return true, nil
}

// brokenSynth fails every request so the scheduler substitutes silence.
type brokenSynth struct{}

func (brokenSynth) Synthesize(ctx context.Context, req synth.SynthesisRequest) (io.ReadCloser, error) {
	return nil, fmt.Errorf("synthesizer unavailable")
}

// A segment that already carries translation_fallback must keep it when the
// synthesis fallback flag is recorded on top.
func TestSynthesizePreservesEarlierFallbackFlags(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	jobID := uuid.New()
	pub := &recordingPublisher{}
	deps := Deps{
		DB:        &database.DB{DB: sqlDB},
		Storage:   nopStore{},
		Publisher: pub,
		Config: &config.Config{
			Pipeline: config.PipelineConfig{
				SynthesisRetries:     0,
				SynthesisConcurrency: 1,
			},
			External: config.ExternalConfig{
				Synthesizer: config.SynthesizerConfig{SampleRate: 16000},
			},
		},
		Logger: zap.NewNop(),
		Synth:  brokenSynth{},
	}

	mock.ExpectQuery(`SELECT idx, start_ms, end_ms, speaker_id, gender, src_text, mt_text, flags, tts_audio_key, tts_duration_ms`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{
			"idx", "start_ms", "end_ms", "speaker_id", "gender", "src_text", "mt_text", "flags", "tts_audio_key", "tts_duration_ms",
		}).
			AddRow(0, 0, 800, nil, nil, "Hello", "Hello", "translation_fallback", nil, 0).
			AddRow(1, 800, 2000, nil, nil, "How are you", "Comment allez-vous", nil, nil, 0))

	mock.ExpectQuery(`SELECT separated FROM jobs`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"separated"}).AddRow(false))

	appendFlagSQL := `(?s)UPDATE segments SET tts_audio_key = \$1, tts_duration_ms = \$2,.*ELSE flags \|\| ',' \|\| \$3.*WHERE job_id = \$5 AND idx = \$6`
	mock.ExpectExec(appendFlagSQL).
		WithArgs(storage.SegmentAudioKey(jobID.String(), 0), 800, flagSynthesisFallback, sqlmock.AnyArg(), jobID, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(appendFlagSQL).
		WithArgs(storage.SegmentAudioKey(jobID.String(), 1), 1200, flagSynthesisFallback, sqlmock.AnyArg(), jobID, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	processor := NewSynthesizeProcessor(deps)
	msg := models.JobMessage{
		JobID:   jobID.String(),
		Step:    StepSynthesize,
		Attempt: 1,
		Payload: toPayload(models.SynthesizePayload{TargetLanguage: "fr"}),
	}
	if err := processor.Process(context.Background(), jobID, msg); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if pub.lastRoutingKey != "job.sync" {
		t.Fatalf("published to %q, want job.sync", pub.lastRoutingKey)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("there were unfulfilled expectations: %v", err)
	}
}
