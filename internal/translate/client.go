package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"

	"go.uber.org/zap"
)

// Client calls a batch translation REST endpoint.
type Client struct {
	apiKey     string
	apiURL     string
	client     *http.Client
	logger     *zap.Logger
	retryDelay time.Duration
}

var _ Translator = (*Client)(nil)

// NewClient creates a new REST translation client.
func NewClient(cfg config.TranslatorConfig, logger *zap.Logger) *Client {
	return &Client{
		apiKey: cfg.APIKey,
		apiURL: cfg.APIURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Translate translates texts from source language to target language.
func (c *Client) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	reqBody := map[string]interface{}{
		"source_language": sourceLang,
		"target_language": targetLang,
		"texts":           texts,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := c.newRequest(ctx, bodyBytes)
	if err != nil {
		return nil, err
	}

	// Make request with retry
	var resp *http.Response
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		resp, err = c.client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			break
		}
		if i < maxRetries-1 {
			if err == nil {
				// Drain the failed response so its connection can be reused.
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
			time.Sleep(time.Duration(i+1) * c.retryDelay)
			req, _ = c.newRequest(ctx, bodyBytes)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to call translation API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("translation API returned status %d: %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Data    []string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if apiResp.Code != 0 {
		return nil, fmt.Errorf("translation API error: %s", apiResp.Message)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("translation count mismatch: expected %d, got %d", len(texts), len(apiResp.Data))
	}

	return apiResp.Data, nil
}

func (c *Client) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	return req, nil
}
