package models

import (
	"time"

	"github.com/google/uuid"
)

// JobMessage is the envelope for every queued pipeline step.
type JobMessage struct {
	JobID     string                 `json:"job_id"`
	Step      string                 `json:"step"`
	Attempt   int                    `json:"attempt"`
	TraceID   string                 `json:"trace_id"`
	CreatedAt string                 `json:"created_at"`
	Payload   map[string]interface{} `json:"payload"`
}

// NewJobMessage builds a first-attempt message for a step.
func NewJobMessage(jobID uuid.UUID, step string, payload map[string]interface{}) JobMessage {
	return JobMessage{
		JobID:     jobID.String(),
		Step:      step,
		Attempt:   1,
		TraceID:   uuid.New().String(),
		CreatedAt: time.Now().Format(time.RFC3339),
		Payload:   payload,
	}
}

// DownloadPayload is the payload for the download step.
type DownloadPayload struct {
	SourceURL      string `json:"source_url"`
	SourceVideoKey string `json:"source_video_key"`
	SourceAudioKey string `json:"source_audio_key"`
}

// SeparatePayload is the payload for the separate step.
type SeparatePayload struct {
	SourceAudioKey  string `json:"source_audio_key"`
	VocalsKey       string `json:"vocals_key"`
	InstrumentalKey string `json:"instrumental_key"`
}

// TranscribePayload is the payload for the transcribe step.
type TranscribePayload struct {
	AudioKey  string `json:"audio_key"`
	OutputKey string `json:"output_key"`
}

// TranslatePayload is the payload for the translate step.
type TranslatePayload struct {
	TargetLanguage string `json:"target_language"`
}

// SynthesizePayload is the payload for the synthesize step.
type SynthesizePayload struct {
	TargetLanguage string `json:"target_language"`
	VocalsKey      string `json:"vocals_key"`
}

// SyncPayload is the payload for the sync step.
type SyncPayload struct {
	OutputAudioKey string `json:"output_audio_key"`
}

// RemixPayload is the payload for the remix step.
type RemixPayload struct {
	SourceVideoKey  string `json:"source_video_key"`
	DubbedAudioKey  string `json:"dubbed_audio_key"`
	InstrumentalKey string `json:"instrumental_key,omitempty"`
	OutputVideoKey  string `json:"output_video_key"`
}

// CleanupPayload is the payload for the cleanup step.
type CleanupPayload struct {
	// Promote lists scratch keys to copy into the permanent artifact prefix
	// before the scratch namespace is wiped. Empty on the failure path.
	Promote map[string]string `json:"promote,omitempty"`
}

// TranscriptResult is the transcriber output persisted to scratch storage.
type TranscriptResult struct {
	Language   string              `json:"language"`
	DurationMs int                 `json:"duration_ms"`
	Segments   []TranscriptSegment `json:"segments"`
}

// TranscriptSegment is one ordered unit of transcribed speech.
type TranscriptSegment struct {
	Idx       int    `json:"idx"`
	StartMs   int    `json:"start_ms"`
	EndMs     int    `json:"end_ms"`
	SpeakerID string `json:"speaker_id,omitempty"`
	Gender    string `json:"gender,omitempty"`
	Text      string `json:"text"`
}
