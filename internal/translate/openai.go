package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient translates through any OpenAI-compatible chat completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

var _ Translator = (*OpenAIClient)(nil)

// NewOpenAIClient creates a translator backed by a chat completion endpoint.
func NewOpenAIClient(cfg config.TranslatorConfig, logger *zap.Logger) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIURL != "" {
		clientCfg.BaseURL = cfg.APIURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: logger,
	}
}

const systemPrompt = "You are a professional subtitle translator. Translate each " +
	"input line from %s to %s. Keep any __TERM_<n>__ tokens exactly as they " +
	"appear. Return only the translated lines, one per input line, no numbering."

// Translate translates texts via a single chat completion, one line per text.
func (c *OpenAIClient) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	source := sourceLang
	if source == "" {
		source = "the source language"
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(systemPrompt, source, targetLang),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: strings.Join(texts, "\n"),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	lines := strings.Split(strings.TrimSpace(resp.Choices[0].Message.Content), "\n")
	if len(lines) != len(texts) {
		return nil, fmt.Errorf("translation count mismatch: expected %d, got %d", len(texts), len(lines))
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines, nil
}
