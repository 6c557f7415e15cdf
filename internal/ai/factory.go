package ai

import (
	"fmt"

	"github.com/windoze95/groceryplan-api/internal/config"
)

// NewTextProvider builds the provider selected by AI_PROVIDER. It returns
// nil for "none", in which case callers use their non-AI paths.
func NewTextProvider(cfg *config.Config) (TextProvider, error) {
	switch cfg.EnvVars.AIProvider {
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg.EnvVars.AnthropicAPIKey, cfg.Prompts), nil
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.EnvVars.OpenAIAPIKey, cfg.Prompts), nil
	case config.ProviderOllama:
		return NewOllamaProvider(cfg.EnvVars.OllamaHost, cfg.EnvVars.OllamaModel, cfg.Prompts), nil
	case config.ProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.EnvVars.AIProvider)
	}
}
