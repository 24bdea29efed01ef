package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/database"
	"github.com/VishnuKaranth/Dubbing-Software/internal/ingest"
	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/orchestrator"
	"github.com/VishnuKaranth/Dubbing-Software/internal/quota"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Quota is the admission quota behaviour the service depends on.
type Quota interface {
	Reserve(ctx context.Context, clientID string) error
}

// JobService handles job business logic.
type JobService struct {
	db           *database.DB
	storage      storage.ObjectStorage
	orchestrator orchestrator.JobOrchestrator
	quota        Quota
	languages    map[string]bool
}

// NewJobService creates a new job service. supportedLanguages lists the
// target languages jobs may request.
func NewJobService(db *database.DB, store storage.ObjectStorage, orch orchestrator.JobOrchestrator, q Quota, supportedLanguages []string) *JobService {
	langs := make(map[string]bool, len(supportedLanguages))
	for _, l := range supportedLanguages {
		langs[l] = true
	}
	return &JobService{
		db:           db,
		storage:      store,
		orchestrator: orch,
		quota:        q,
		languages:    langs,
	}
}

// validateTargetLanguage checks the requested language is well formed and in
// the supported set.
func (s *JobService) validateTargetLanguage(lang string) error {
	if _, err := language.Parse(lang); err != nil {
		return ErrUnsupportedLanguage
	}
	if !s.languages[lang] {
		return ErrUnsupportedLanguage
	}
	return nil
}

// CreateJob validates the request, reserves quota, persists the job, and
// starts the pipeline. Validation happens before any work or quota is
// consumed so malformed requests fail fast.
func (s *JobService) CreateJob(ctx context.Context, clientID, sourceURL, targetLang string) (*models.Job, error) {
	if err := ingest.ValidateSourceURL(sourceURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSourceURL, err)
	}
	if err := s.validateTargetLanguage(targetLang); err != nil {
		return nil, err
	}

	if err := s.quota.Reserve(ctx, clientID); err != nil {
		if errors.Is(err, quota.ErrExceeded) {
			return nil, ErrQuotaExceeded
		}
		return nil, fmt.Errorf("failed to reserve quota: %w", err)
	}

	now := time.Now()
	job := &models.Job{
		ID:             uuid.New(),
		Status:         models.JobStatusPending,
		Stage:          models.StagePending,
		ClientID:       clientID,
		SourceURL:      sourceURL,
		TargetLanguage: targetLang,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	query := `
		INSERT INTO jobs (id, status, stage, progress, client_id, source_url, target_language, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := s.db.ExecContext(ctx, query,
		job.ID, job.Status, job.Stage, job.Progress,
		job.ClientID, job.SourceURL, job.TargetLanguage,
		job.CreatedAt, job.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.orchestrator.StartJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}

	return job, nil
}

// GetJobWithSteps retrieves a job with its per-step records.
func (s *JobService) GetJobWithSteps(ctx context.Context, jobID uuid.UUID) (*models.Job, []models.JobStep, error) {
	var job models.Job
	query := `
		SELECT id, status, stage, progress, error, client_id, source_url,
		       target_language, source_language, duration_ms, separated,
		       output_video_key, output_audio_key, transcript_key,
		       created_at, updated_at
		FROM jobs WHERE id = $1
	`
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&job.ID, &job.Status, &job.Stage, &job.Progress, &job.Error,
		&job.ClientID, &job.SourceURL, &job.TargetLanguage, &job.SourceLanguage,
		&job.DurationMs, &job.Separated,
		&job.OutputVideoKey, &job.OutputAudioKey, &job.TranscriptKey,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrJobNotFound
		}
		return nil, nil, fmt.Errorf("failed to get job: %w", err)
	}

	stepsQuery := `
		SELECT id, job_id, step, status, attempt, started_at, ended_at, error, metrics_json, created_at, updated_at
		FROM job_steps WHERE job_id = $1 ORDER BY created_at
	`
	rows, err := s.db.QueryContext(ctx, stepsQuery, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get job steps: %w", err)
	}
	defer rows.Close()

	var jobSteps []models.JobStep
	for rows.Next() {
		var step models.JobStep
		if err := rows.Scan(
			&step.ID, &step.JobID, &step.Step, &step.Status, &step.Attempt,
			&step.StartedAt, &step.EndedAt, &step.Error, &step.MetricsJSON,
			&step.CreatedAt, &step.UpdatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan step: %w", err)
		}
		jobSteps = append(jobSteps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate steps: %w", err)
	}

	return &job, jobSteps, nil
}

// Artifact is one named downloadable output of a succeeded job.
type Artifact struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

// GetArtifacts returns presigned URLs for the three named outputs of a
// succeeded job. Jobs in any other state expose nothing.
func (s *JobService) GetArtifacts(ctx context.Context, jobID uuid.UUID) ([]Artifact, error) {
	job, _, err := s.GetJobWithSteps(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusSucceeded {
		return nil, ErrJobNotCompleted
	}

	const expiry = time.Hour
	named := []struct {
		name string
		key  *string
	}{
		{"video", job.OutputVideoKey},
		{"audio", job.OutputAudioKey},
		{"transcript", job.TranscriptKey},
	}

	artifacts := make([]Artifact, 0, len(named))
	for _, n := range named {
		if n.key == nil {
			continue
		}
		url, err := s.storage.PresignedGetURL(ctx, *n.key, expiry)
		if err != nil {
			return nil, fmt.Errorf("failed to presign %s artifact: %w", n.name, err)
		}
		artifacts = append(artifacts, Artifact{
			Name:      n.name,
			URL:       url,
			ExpiresIn: int(expiry.Seconds()),
		})
	}
	return artifacts, nil
}

// ListJobs lists a client's jobs with pagination.
func (s *JobService) ListJobs(ctx context.Context, clientID, status string, page, pageSize int) ([]models.Job, int, error) {
	offset := (page - 1) * pageSize

	var query, countQuery string
	var args []interface{}
	if status != "" {
		query = `SELECT id, status, stage, progress, error, target_language, created_at, updated_at
		         FROM jobs WHERE client_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		countQuery = `SELECT COUNT(*) FROM jobs WHERE client_id = $1 AND status = $2`
		args = []interface{}{clientID, status, pageSize, offset}
	} else {
		query = `SELECT id, status, stage, progress, error, target_language, created_at, updated_at
		         FROM jobs WHERE client_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		countQuery = `SELECT COUNT(*) FROM jobs WHERE client_id = $1`
		args = []interface{}{clientID, pageSize, offset}
	}

	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		var job models.Job
		if err := rows.Scan(
			&job.ID, &job.Status, &job.Stage, &job.Progress, &job.Error,
			&job.TargetLanguage, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, total, nil
}

// CancelJob cancels a non-terminal job. The worker notices the status at the
// next stage boundary and the cleanup step wipes the scratch namespace.
func (s *JobService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	job, _, err := s.GetJobWithSteps(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobAlreadyTerminal
	}
	return s.orchestrator.CancelJob(ctx, jobID)
}

// DeleteJob removes a terminal job's record and its stored artifacts.
func (s *JobService) DeleteJob(ctx context.Context, jobID uuid.UUID) error {
	job, _, err := s.GetJobWithSteps(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return ErrJobNotCompleted
	}

	id := jobID.String()
	if err := s.storage.DeletePrefix(ctx, storage.ArtifactPrefix(id)); err != nil {
		return fmt.Errorf("failed to delete artifacts: %w", err)
	}
	if err := s.storage.DeletePrefix(ctx, storage.ScratchPrefix(id)); err != nil {
		return fmt.Errorf("failed to delete scratch objects: %w", err)
	}

	// Cascade removes steps and segments.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = $1", jobID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}
