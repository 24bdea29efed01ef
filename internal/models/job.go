package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle status of a dubbing job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCancelled
}

// JobStage identifies the pipeline stage a job is currently in.
// Stages advance strictly forward; no stage is revisited within a job.
type JobStage string

const (
	StagePending      JobStage = "pending"
	StageDownloading  JobStage = "downloading"
	StageSeparating   JobStage = "separating"
	StageTranscribing JobStage = "transcribing"
	StageTranslating  JobStage = "translating"
	StageSynthesizing JobStage = "synthesizing"
	StageSyncing      JobStage = "syncing"
	StageRemixing     JobStage = "remixing"
	StageDone         JobStage = "done"
)

// PipelineStages lists the forward order of execution stages.
var PipelineStages = []JobStage{
	StageDownloading,
	StageSeparating,
	StageTranscribing,
	StageTranslating,
	StageSynthesizing,
	StageSyncing,
	StageRemixing,
}

// Progress returns a coarse completion percentage for the stage.
func (s JobStage) Progress() int {
	if s == StageDone {
		return 100
	}
	for i, stage := range PipelineStages {
		if stage == s {
			return i * 100 / len(PipelineStages)
		}
	}
	return 0
}

// Job represents a video dubbing job.
type Job struct {
	ID             uuid.UUID `json:"job_id" db:"id"`
	Status         JobStatus `json:"status" db:"status"`
	Stage          JobStage  `json:"stage" db:"stage"`
	Progress       int       `json:"progress" db:"progress"`
	Error          *string   `json:"error,omitempty" db:"error"`
	ClientID       string    `json:"-" db:"client_id"`
	SourceURL      string    `json:"source_url" db:"source_url"`
	TargetLanguage string    `json:"target_language" db:"target_language"`
	SourceLanguage *string   `json:"source_language,omitempty" db:"source_language"`
	// DurationMs is the probed source video duration, filled by the download stage.
	DurationMs int `json:"duration_ms" db:"duration_ms"`
	// Separated records whether vocal/instrumental separation ran for this job.
	Separated      bool      `json:"-" db:"separated"`
	OutputVideoKey *string   `json:"-" db:"output_video_key"`
	OutputAudioKey *string   `json:"-" db:"output_audio_key"`
	TranscriptKey  *string   `json:"-" db:"transcript_key"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// JobStepStatus represents the status of one pipeline step attempt.
type JobStepStatus string

const (
	JobStepStatusPending   JobStepStatus = "pending"
	JobStepStatusRunning   JobStepStatus = "running"
	JobStepStatusSucceeded JobStepStatus = "succeeded"
	JobStepStatusFailed    JobStepStatus = "failed"
)

// JobStep records one attempt of one pipeline step for a job.
type JobStep struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	JobID       uuid.UUID     `json:"job_id" db:"job_id"`
	Step        string        `json:"step" db:"step"`
	Status      JobStepStatus `json:"status" db:"status"`
	Attempt     int           `json:"attempt" db:"attempt"`
	StartedAt   *time.Time    `json:"started_at,omitempty" db:"started_at"`
	EndedAt     *time.Time    `json:"ended_at,omitempty" db:"ended_at"`
	Error       *string       `json:"error,omitempty" db:"error"`
	MetricsJSON *string       `json:"metrics_json,omitempty" db:"metrics_json"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// Segment represents one time-bounded unit of transcribed speech.
// Segments are ordered by Idx and never reorder between stages.
type Segment struct {
	ID        uuid.UUID `json:"id" db:"id"`
	JobID     uuid.UUID `json:"job_id" db:"job_id"`
	Idx       int       `json:"idx" db:"idx"`
	StartMs   int       `json:"start_ms" db:"start_ms"`
	EndMs     int       `json:"end_ms" db:"end_ms"`
	SpeakerID *string   `json:"speaker_id,omitempty" db:"speaker_id"`
	Gender    *string   `json:"gender,omitempty" db:"gender"`
	SrcText   string    `json:"src_text" db:"src_text"`
	MtText    *string   `json:"mt_text,omitempty" db:"mt_text"`
	// Flags marks degraded handling: "translation_fallback" when the segment kept
	// its source text, "synthesis_fallback" when silence was substituted.
	Flags         *string   `json:"flags,omitempty" db:"flags"`
	TTSAudioKey   *string   `json:"tts_audio_key,omitempty" db:"tts_audio_key"`
	TTSDurationMs int       `json:"tts_duration_ms" db:"tts_duration_ms"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// WindowMs returns the segment's original timeline window length.
func (s *Segment) WindowMs() int {
	return s.EndMs - s.StartMs
}
