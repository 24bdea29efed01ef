package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	miniosdk "github.com/minio/minio-go/v7"
)

// ObjectStorage is the storage behaviour the pipeline depends on.
type ObjectStorage interface {
	PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	CopyObject(ctx context.Context, srcKey, dstKey string) error
	PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, key string) (bool, error)
}

// Service handles object storage operations against a single bucket.
type Service struct {
	client       *Client
	bucket       string
	hostOverride string
}

var _ ObjectStorage = (*Service)(nil)

// Option customizes the storage service behaviour.
type Option func(*Service)

// WithHostOverride replaces the host in generated presigned URLs (e.g., for external access).
func WithHostOverride(host string) Option {
	return func(s *Service) {
		s.hostOverride = host
	}
}

// New creates a new storage service.
func New(client *Client, opts ...Option) *Service {
	s := &Service{
		client: client,
		bucket: client.Bucket(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PutObject uploads an object.
func (s *Service) PutObject(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, miniosdk.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// GetObject retrieves an object.
func (s *Service) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, miniosdk.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// DeleteObject deletes a single object.
func (s *Service) DeleteObject(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, miniosdk.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// DeletePrefix removes every object under the given prefix. Used to wipe a
// job's scratch namespace in full.
func (s *Service) DeletePrefix(ctx context.Context, prefix string) error {
	objects := s.client.ListObjects(ctx, s.bucket, miniosdk.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for obj := range objects {
		if obj.Err != nil {
			return fmt.Errorf("failed to list objects under %s: %w", prefix, obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, miniosdk.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("failed to delete %s: %w", obj.Key, err)
		}
	}
	return nil
}

// CopyObject server-side copies an object within the bucket.
func (s *Service) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.Client.CopyObject(ctx,
		miniosdk.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		miniosdk.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", srcKey, dstKey, err)
	}
	return nil
}

// PresignedGetURL generates a presigned URL for external access.
func (s *Service) PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	presignedURL, err := s.client.PublicClient().PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	if s.hostOverride != "" {
		parsedURL, err := url.Parse(presignedURL.String())
		if err != nil {
			return "", fmt.Errorf("failed to parse presigned URL: %w", err)
		}
		parsedURL.Host = s.hostOverride
		return parsedURL.String(), nil
	}

	return presignedURL.String(), nil
}

// ObjectExists checks whether an object exists without downloading it.
func (s *Service) ObjectExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key, miniosdk.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	responseErr := miniosdk.ToErrorResponse(err)
	if responseErr.StatusCode == 404 {
		return false, nil
	}

	return false, fmt.Errorf("failed to stat object: %w", err)
}

// Keys for the per-job storage layout. Everything under scratch/<job> is
// wiped when the job reaches a terminal state; artifacts/<job> is permanent.

func ScratchPrefix(jobID string) string {
	return fmt.Sprintf("scratch/%s/", jobID)
}

func SourceVideoKey(jobID string) string {
	return fmt.Sprintf("scratch/%s/source.mp4", jobID)
}

func SourceAudioKey(jobID string) string {
	return fmt.Sprintf("scratch/%s/audio.wav", jobID)
}

func VocalsKey(jobID string) string {
	return fmt.Sprintf("scratch/%s/vocals.wav", jobID)
}

func InstrumentalKey(jobID string) string {
	return fmt.Sprintf("scratch/%s/instrumental.wav", jobID)
}

func TranscriptScratchKey(jobID string) string {
	return fmt.Sprintf("scratch/%s/transcript.json", jobID)
}

func SegmentAudioKey(jobID string, idx int) string {
	return fmt.Sprintf("scratch/%s/tts/segment_%d.wav", jobID, idx)
}

func DubbedAudioScratchKey(jobID string) string {
	return fmt.Sprintf("scratch/%s/dub.wav", jobID)
}

func FinalVideoScratchKey(jobID string) string {
	return fmt.Sprintf("scratch/%s/final.mp4", jobID)
}

func TranscriptTextScratchKey(jobID string) string {
	return fmt.Sprintf("scratch/%s/transcript.txt", jobID)
}

func ArtifactPrefix(jobID string) string {
	return fmt.Sprintf("artifacts/%s/", jobID)
}

func ArtifactVideoKey(jobID string) string {
	return fmt.Sprintf("artifacts/%s/dubbed.mp4", jobID)
}

func ArtifactAudioKey(jobID string) string {
	return fmt.Sprintf("artifacts/%s/dubbed.wav", jobID)
}

func ArtifactTranscriptKey(jobID string) string {
	return fmt.Sprintf("artifacts/%s/transcript.txt", jobID)
}
