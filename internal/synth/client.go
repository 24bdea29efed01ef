package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"

	"go.uber.org/zap"
)

// Synthesizer turns translated text into speech audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (io.ReadCloser, error)
}

// Client handles speech synthesis service API calls.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// SynthesisRequest represents a synthesis request. Engine selects between
// voice cloning and curated neural voices; exactly one of PromptAudioURL or
// Voice is set depending on the engine.
type SynthesisRequest struct {
	Text             string `json:"text"`
	Language         string `json:"language"`
	Engine           string `json:"engine"`
	Voice            string `json:"voice,omitempty"`
	PromptAudioURL   string `json:"prompt_audio_url,omitempty"`
	TargetDurationMs int    `json:"target_duration_ms,omitempty"`
	OutputFormat     string `json:"output_format"`
	SampleRate       int    `json:"sample_rate"`
}

// SynthesisResponse represents a synthesis response.
type SynthesisResponse struct {
	AudioURL   string `json:"audio_url"`
	DurationMs int    `json:"duration_ms"`
	SampleRate int    `json:"sample_rate"`
	Format     string `json:"format"`
}

// NewClient creates a new synthesis client.
func NewClient(cfg config.SynthesizerConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		client: &http.Client{
			Timeout: 600 * time.Second, // cloning engines can take minutes per segment
		},
		logger: logger,
	}
}

// Synthesize performs one synthesis call and returns the audio stream.
func (c *Client) Synthesize(ctx context.Context, req SynthesisRequest) (io.ReadCloser, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/synthesize", c.baseURL)
	httpReq, err := c.newRequest(ctx, url, bodyBytes)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call synthesis API: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("synthesis API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp SynthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	resp.Body.Close()

	if apiResp.AudioURL == "" {
		return nil, fmt.Errorf("synthesis response missing audio url")
	}

	audioURL := apiResp.AudioURL
	if strings.HasPrefix(audioURL, "/") {
		audioURL = strings.TrimRight(c.baseURL, "/") + audioURL
	}
	audioReq, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio request: %w", err)
	}
	audioReq.Header.Set("X-API-Key", c.apiKey)

	audioResp, err := c.client.Do(audioReq)
	if err != nil {
		return nil, fmt.Errorf("failed to download audio: %w", err)
	}
	if audioResp.StatusCode != http.StatusOK {
		audioResp.Body.Close()
		return nil, fmt.Errorf("failed to download audio: status %d", audioResp.StatusCode)
	}
	return audioResp.Body, nil
}

func (c *Client) newRequest(ctx context.Context, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)
	return req, nil
}
