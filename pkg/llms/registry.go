package llms

import (
	"fmt"

	"github.com/docsage/docsage/pkg/config"
)

// New builds a provider from config, dispatching on the type field.
func New(cfg config.LLMProviderConfig) (Provider, error) {
	switch cfg.Type {
	case "openai", "":
		return NewOpenAIProvider(cfg)
	case "anthropic":
		return NewAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider type: %q", cfg.Type)
	}
}
