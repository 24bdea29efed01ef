package translate

import (
	"fmt"

	"github.com/VishnuKaranth/Dubbing-Software/internal/config"

	"go.uber.org/zap"
)

// ProviderType represents the translation service provider.
type ProviderType string

const (
	ProviderREST   ProviderType = "rest"   // batch translation REST endpoint
	ProviderOpenAI ProviderType = "openai" // OpenAI-compatible chat completion API
)

// NewTranslator creates a translator for the configured provider.
// An empty provider defaults to REST.
func NewTranslator(cfg config.TranslatorConfig, logger *zap.Logger) (Translator, error) {
	switch ProviderType(cfg.Provider) {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("TRANSLATOR_API_KEY is required for the openai provider")
		}
		logger.Info("Creating OpenAI-compatible translator",
			zap.String("model", cfg.Model),
			zap.String("base_url", cfg.APIURL),
		)
		return NewOpenAIClient(cfg, logger), nil

	case ProviderREST, "":
		logger.Info("Creating REST translator", zap.String("api_url", cfg.APIURL))
		return NewClient(cfg, logger), nil

	default:
		return nil, fmt.Errorf("unsupported translation provider: %s", cfg.Provider)
	}
}
