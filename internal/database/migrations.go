package database

import (
	"database/sql"
	"fmt"
)

// Migrate runs database migrations.
func Migrate(db *sql.DB) error {
	migrations := []string{
		createExtensions,
		createJobsTable,
		createJobStepsTable,
		createSegmentsTable,
		createQuotaUsageTable,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

const createExtensions = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;
`

const createJobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    stage VARCHAR(20) NOT NULL DEFAULT 'pending',
    progress INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    client_id VARCHAR(64) NOT NULL,
    source_url TEXT NOT NULL,
    target_language VARCHAR(10) NOT NULL,
    source_language VARCHAR(10),
    duration_ms INTEGER NOT NULL DEFAULT 0,
    separated BOOLEAN NOT NULL DEFAULT FALSE,
    output_video_key VARCHAR(255),
    output_audio_key VARCHAR(255),
    transcript_key VARCHAR(255),
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_client_id ON jobs(client_id);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

const createJobStepsTable = `
CREATE TABLE IF NOT EXISTS job_steps (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    step VARCHAR(20) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    attempt INTEGER NOT NULL DEFAULT 1,
    started_at TIMESTAMP,
    ended_at TIMESTAMP,
    error TEXT,
    metrics_json TEXT,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (job_id, step, attempt)
);

CREATE INDEX IF NOT EXISTS idx_job_steps_job_id ON job_steps(job_id);
`

const createSegmentsTable = `
CREATE TABLE IF NOT EXISTS segments (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
    idx INTEGER NOT NULL,
    start_ms INTEGER NOT NULL,
    end_ms INTEGER NOT NULL,
    speaker_id VARCHAR(64),
    gender VARCHAR(10),
    src_text TEXT NOT NULL,
    mt_text TEXT,
    flags VARCHAR(64),
    tts_audio_key VARCHAR(255),
    tts_duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (job_id, idx)
);

CREATE INDEX IF NOT EXISTS idx_segments_job_id ON segments(job_id);
`

const createQuotaUsageTable = `
CREATE TABLE IF NOT EXISTS quota_usage (
    client_id VARCHAR(64) NOT NULL,
    day DATE NOT NULL,
    used INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (client_id, day)
);
`
