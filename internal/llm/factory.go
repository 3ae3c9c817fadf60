package llm

import (
	"context"
	"fmt"
	"time"
)

// ProviderConfig carries the union of fields any provider kind might need;
// NewProvider reads only the fields relevant to the requested kind.
type ProviderConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration

	// Bedrock-specific.
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewProvider constructs a Provider for kind, dispatching to the
// kind-specific constructor. The CLI passes the config's provider.kind, one
// value for every role; "ollama" is the default when unset.
func NewProvider(ctx context.Context, kind string, cfg ProviderConfig) (Provider, error) {
	switch kind {
	case "", "ollama":
		return NewOllamaProvider(OllamaConfig{
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
			Timeout:      cfg.Timeout,
		}), nil
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
		})
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.DefaultModel,
		})
	case "gemini":
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey:       cfg.APIKey,
			DefaultModel: cfg.DefaultModel,
		})
	case "bedrock":
		return NewBedrockProvider(ctx, BedrockConfig{
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
			DefaultModel:    cfg.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("llm: unknown provider kind %q", kind)
	}
}
