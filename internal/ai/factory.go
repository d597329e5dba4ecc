package ai

import (
	"fmt"

	"github.com/intentflow/intentflow/internal/ai/anthropic"
	"github.com/intentflow/intentflow/internal/ai/mock"
	"github.com/intentflow/intentflow/internal/ai/ollama"
	"github.com/intentflow/intentflow/internal/ai/openai"
	"github.com/intentflow/intentflow/internal/config"
	"github.com/intentflow/intentflow/pkg/models"
)

// NewProvider constructs the appropriate language model provider based on config.
// Called once at server startup.
func NewProvider(cfg config.AIConfig) (models.LLMProvider, error) {
	switch cfg.Provider {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.InferenceTimeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic), nil
	case "mock":
		return mock.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, openai, anthropic, mock", cfg.Provider)
	}
}
