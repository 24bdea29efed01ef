package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/database"
	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/quota"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

type stubOrchestrator struct {
	started   []uuid.UUID
	cancelled []uuid.UUID
	err       error
}

func (o *stubOrchestrator) StartJob(ctx context.Context, job *models.Job) error {
	if o.err != nil {
		return o.err
	}
	o.started = append(o.started, job.ID)
	return nil
}

func (o *stubOrchestrator) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	if o.err != nil {
		return o.err
	}
	o.cancelled = append(o.cancelled, jobID)
	return nil
}

type stubQuota struct {
	err      error
	reserved []string
}

func (q *stubQuota) Reserve(ctx context.Context, clientID string) error {
	if q.err != nil {
		return q.err
	}
	q.reserved = append(q.reserved, clientID)
	return nil
}

type stubStorage struct {
	presigned map[string]string
	deleted   []string
}

func (s *stubStorage) PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return nil
}

func (s *stubStorage) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func (s *stubStorage) DeleteObject(ctx context.Context, key string) error {
	return nil
}

func (s *stubStorage) DeletePrefix(ctx context.Context, prefix string) error {
	s.deleted = append(s.deleted, prefix)
	return nil
}

func (s *stubStorage) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	return nil
}

func (s *stubStorage) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if url, ok := s.presigned[key]; ok {
		return url, nil
	}
	return "", fmt.Errorf("no presigned URL for %s", key)
}

func (s *stubStorage) ObjectExists(ctx context.Context, key string) (bool, error) {
	return s.presigned[key] != "", nil
}

func newTestService(t *testing.T) (*JobService, sqlmock.Sqlmock, *stubOrchestrator, *stubQuota, *stubStorage) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	orch := &stubOrchestrator{}
	q := &stubQuota{}
	store := &stubStorage{presigned: map[string]string{}}
	svc := NewJobService(&database.DB{DB: sqlDB}, store, orch, q, []string{"hi", "kn", "ta"})
	return svc, mock, orch, q, store
}

func TestCreateJob(t *testing.T) {
	svc, mock, orch, q, _ := newTestService(t)

	mock.ExpectExec(`INSERT INTO jobs`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	job, err := svc.CreateJob(context.Background(), "client-1", "https://cdn.example.com/in.mp4", "hi")
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.TargetLanguage != "hi" {
		t.Errorf("target language = %s, want hi", job.TargetLanguage)
	}
	if len(q.reserved) != 1 || q.reserved[0] != "client-1" {
		t.Errorf("quota reserved for %v, want [client-1]", q.reserved)
	}
	if len(orch.started) != 1 || orch.started[0] != job.ID {
		t.Errorf("orchestrator started %v, want [%s]", orch.started, job.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestCreateJobRejectsInvalidURL(t *testing.T) {
	svc, _, orch, q, _ := newTestService(t)

	_, err := svc.CreateJob(context.Background(), "client-1", "ftp://example.com/in.mp4", "hi")
	if !errors.Is(err, ErrInvalidSourceURL) {
		t.Fatalf("err = %v, want ErrInvalidSourceURL", err)
	}
	if len(q.reserved) != 0 {
		t.Error("quota consumed for a rejected request")
	}
	if len(orch.started) != 0 {
		t.Error("job started for a rejected request")
	}
}

func TestCreateJobRejectsUnsupportedLanguage(t *testing.T) {
	svc, _, _, q, _ := newTestService(t)

	cases := []string{"zz-!!", "fr"}
	for _, lang := range cases {
		_, err := svc.CreateJob(context.Background(), "client-1", "https://cdn.example.com/in.mp4", lang)
		if !errors.Is(err, ErrUnsupportedLanguage) {
			t.Errorf("lang %q: err = %v, want ErrUnsupportedLanguage", lang, err)
		}
	}
	if len(q.reserved) != 0 {
		t.Error("quota consumed for a rejected request")
	}
}

func TestCreateJobQuotaExceeded(t *testing.T) {
	svc, _, orch, q, _ := newTestService(t)
	q.err = quota.ErrExceeded

	_, err := svc.CreateJob(context.Background(), "client-1", "https://cdn.example.com/in.mp4", "hi")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}
	if len(orch.started) != 0 {
		t.Error("job started despite exhausted quota")
	}
}

func jobRows(id uuid.UUID, status models.JobStatus, videoKey, audioKey, transcriptKey *string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "status", "stage", "progress", "error", "client_id", "source_url",
		"target_language", "source_language", "duration_ms", "separated",
		"output_video_key", "output_audio_key", "transcript_key",
		"created_at", "updated_at",
	}).AddRow(
		id, status, models.StagePending, 0, nil, "client-1", "https://cdn.example.com/in.mp4",
		"hi", nil, 0, false, videoKey, audioKey, transcriptKey, now, now,
	)
}

func emptyStepRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "job_id", "step", "status", "attempt", "started_at", "ended_at",
		"error", "metrics_json", "created_at", "updated_at",
	})
}

func TestGetJobNotFound(t *testing.T) {
	svc, mock, _, _, _ := newTestService(t)
	jobID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM jobs WHERE id`).
		WithArgs(jobID).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, _, err := svc.GetJobWithSteps(context.Background(), jobID)
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestGetArtifactsRequiresSuccess(t *testing.T) {
	svc, mock, _, _, _ := newTestService(t)
	jobID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM jobs WHERE id`).
		WithArgs(jobID).
		WillReturnRows(jobRows(jobID, models.JobStatusRunning, nil, nil, nil))
	mock.ExpectQuery(`SELECT (.+) FROM job_steps`).
		WithArgs(jobID).
		WillReturnRows(emptyStepRows())

	_, err := svc.GetArtifacts(context.Background(), jobID)
	if !errors.Is(err, ErrJobNotCompleted) {
		t.Fatalf("err = %v, want ErrJobNotCompleted", err)
	}
}

func TestGetArtifactsPresignsOutputs(t *testing.T) {
	svc, mock, _, _, store := newTestService(t)
	jobID := uuid.New()

	videoKey := fmt.Sprintf("artifacts/%s/dubbed.mp4", jobID)
	audioKey := fmt.Sprintf("artifacts/%s/dubbed.wav", jobID)
	transcriptKey := fmt.Sprintf("artifacts/%s/transcript.txt", jobID)
	store.presigned[videoKey] = "https://minio/video"
	store.presigned[audioKey] = "https://minio/audio"
	store.presigned[transcriptKey] = "https://minio/transcript"

	mock.ExpectQuery(`SELECT (.+) FROM jobs WHERE id`).
		WithArgs(jobID).
		WillReturnRows(jobRows(jobID, models.JobStatusSucceeded, &videoKey, &audioKey, &transcriptKey))
	mock.ExpectQuery(`SELECT (.+) FROM job_steps`).
		WithArgs(jobID).
		WillReturnRows(emptyStepRows())

	artifacts, err := svc.GetArtifacts(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetArtifacts: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("got %d artifacts, want 3", len(artifacts))
	}
	names := map[string]string{}
	for _, a := range artifacts {
		names[a.Name] = a.URL
		if a.ExpiresIn != 3600 {
			t.Errorf("%s expires_in = %d, want 3600", a.Name, a.ExpiresIn)
		}
	}
	if names["video"] != "https://minio/video" || names["transcript"] != "https://minio/transcript" {
		t.Errorf("unexpected artifact URLs: %v", names)
	}
}

func TestCancelJobAlreadyTerminal(t *testing.T) {
	svc, mock, orch, _, _ := newTestService(t)
	jobID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM jobs WHERE id`).
		WithArgs(jobID).
		WillReturnRows(jobRows(jobID, models.JobStatusFailed, nil, nil, nil))
	mock.ExpectQuery(`SELECT (.+) FROM job_steps`).
		WithArgs(jobID).
		WillReturnRows(emptyStepRows())

	err := svc.CancelJob(context.Background(), jobID)
	if !errors.Is(err, ErrJobAlreadyTerminal) {
		t.Fatalf("err = %v, want ErrJobAlreadyTerminal", err)
	}
	if len(orch.cancelled) != 0 {
		t.Error("orchestrator cancel called for terminal job")
	}
}

func TestCancelJobForwardsToOrchestrator(t *testing.T) {
	svc, mock, orch, _, _ := newTestService(t)
	jobID := uuid.New()

	mock.ExpectQuery(`SELECT (.+) FROM jobs WHERE id`).
		WithArgs(jobID).
		WillReturnRows(jobRows(jobID, models.JobStatusRunning, nil, nil, nil))
	mock.ExpectQuery(`SELECT (.+) FROM job_steps`).
		WithArgs(jobID).
		WillReturnRows(emptyStepRows())

	if err := svc.CancelJob(context.Background(), jobID); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if len(orch.cancelled) != 1 || orch.cancelled[0] != jobID {
		t.Errorf("cancelled %v, want [%s]", orch.cancelled, jobID)
	}
}
