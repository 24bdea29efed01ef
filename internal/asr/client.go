package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"
	"github.com/VishnuKaranth/Dubbing-Software/internal/models"

	"go.uber.org/zap"
)

// Transcriber converts speech audio into an ordered, timestamped transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL, languageHint string) (*models.TranscriptResult, error)
}

// Client talks to the speech-to-text service. Submission returns a task id
// which is polled until the transcript is ready.
type Client struct {
	baseURL      string
	apiKey       string
	diarize      bool
	detectGender bool
	pollInterval time.Duration
	pollTimeout  time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient creates a transcriber client.
func NewClient(cfg config.TranscriberConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:      cfg.URL,
		apiKey:       cfg.APIKey,
		diarize:      cfg.Diarize,
		detectGender: cfg.DetectGender,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		logger:       logger,
	}
}

type submitRequest struct {
	AudioURL     string `json:"audio_url"`
	Language     string `json:"language,omitempty"`
	Diarize      bool   `json:"diarize"`
	DetectGender bool   `json:"detect_gender"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type taskResponse struct {
	Status string                   `json:"status"`
	Error  string                   `json:"error,omitempty"`
	Result *models.TranscriptResult `json:"result,omitempty"`
}

// Transcribe submits the audio for transcription and polls for the result.
// The audio URL must be reachable by the transcriber, typically a presigned
// object storage URL.
func (c *Client) Transcribe(ctx context.Context, audioURL, languageHint string) (*models.TranscriptResult, error) {
	taskID, err := c.submit(ctx, audioURL, languageHint)
	if err != nil {
		return nil, err
	}
	c.logger.Info("transcription submitted", zap.String("task_id", taskID))
	return c.poll(ctx, taskID)
}

func (c *Client) submit(ctx context.Context, audioURL, languageHint string) (string, error) {
	body, err := json.Marshal(submitRequest{
		AudioURL:     audioURL,
		Language:     languageHint,
		Diarize:      c.diarize,
		DetectGender: c.detectGender,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/transcriptions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription submit failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("transcription submit returned status %d: %s", resp.StatusCode, data)
	}

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("failed to decode transcription submit response: %w", err)
	}
	if sr.TaskID == "" {
		return "", fmt.Errorf("transcription submit response missing task id")
	}
	return sr.TaskID, nil
}

func (c *Client) poll(ctx context.Context, taskID string) (*models.TranscriptResult, error) {
	deadline := time.Now().Add(c.pollTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		task, err := c.fetchTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		switch task.Status {
		case "completed":
			if task.Result == nil {
				return nil, fmt.Errorf("transcription %s completed without a result", taskID)
			}
			return task.Result, nil
		case "failed":
			return nil, fmt.Errorf("transcription %s failed: %s", taskID, task.Error)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("transcription %s did not complete within %s", taskID, c.pollTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchTask(ctx context.Context, taskID string) (*taskResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/transcriptions/"+taskID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcription poll request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription poll failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("transcription poll returned status %d: %s", resp.StatusCode, data)
	}

	var task taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("failed to decode transcription poll response: %w", err)
	}
	return &task, nil
}
