package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/VishnuKaranth/Dubbing-Software/internal/models"
	"github.com/VishnuKaranth/Dubbing-Software/internal/queue"
	"github.com/VishnuKaranth/Dubbing-Software/internal/storage"

	"github.com/google/uuid"
)

// decodePayload re-marshals the generic message payload into a typed one.
func decodePayload(msg models.JobMessage, out interface{}) error {
	payloadBytes, _ := json.Marshal(msg.Payload)
	if err := json.Unmarshal(payloadBytes, out); err != nil {
		return fmt.Errorf("failed to parse payload: %w", err)
	}
	return nil
}

// toPayload converts a typed payload into the generic message form.
func toPayload(v interface{}) map[string]interface{} {
	data, _ := json.Marshal(v)
	payload := make(map[string]interface{})
	_ = json.Unmarshal(data, &payload)
	return payload
}

// publishNext enqueues the next pipeline step for a job.
func publishNext(ctx context.Context, pub Publisher, jobID uuid.UUID, step string, payload interface{}) error {
	msg := models.NewJobMessage(jobID, step, toPayload(payload))
	if err := pub.Publish(ctx, queue.RoutingKey(step), msg); err != nil {
		return fmt.Errorf("failed to publish %s step: %w", step, err)
	}
	return nil
}

// fetchToFile downloads an object into a local file.
func fetchToFile(ctx context.Context, store storage.ObjectStorage, key, path string) error {
	reader, err := store.GetObject(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer reader.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// uploadFile streams a local file into object storage.
func uploadFile(ctx context.Context, store storage.ObjectStorage, key, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if stat.Size() == 0 {
		return fmt.Errorf("refusing to upload empty file %s", path)
	}

	if err := store.PutObject(ctx, key, f, stat.Size(), contentType); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// loadSegments reads a job's segments ordered by index.
func loadSegments(ctx context.Context, deps Deps, jobID uuid.UUID) ([]models.Segment, error) {
	rows, err := deps.DB.QueryContext(ctx, `
		SELECT idx, start_ms, end_ms, speaker_id, gender, src_text, mt_text, flags, tts_audio_key, tts_duration_ms
		FROM segments WHERE job_id = $1 ORDER BY idx`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}
	defer rows.Close()

	var segments []models.Segment
	for rows.Next() {
		seg := models.Segment{JobID: jobID}
		if err := rows.Scan(&seg.Idx, &seg.StartMs, &seg.EndMs, &seg.SpeakerID, &seg.Gender,
			&seg.SrcText, &seg.MtText, &seg.Flags, &seg.TTSAudioKey, &seg.TTSDurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate segments: %w", err)
	}
	return segments, nil
}
