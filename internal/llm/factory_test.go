package llm

import (
	"context"
	"testing"
)

func TestNewProviderDefaultsToOllama(t *testing.T) {
	p, err := NewProvider(context.Background(), "", ProviderConfig{})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if p.Name() != "ollama" {
		t.Errorf("Name() = %q, want ollama", p.Name())
	}
}

func TestNewProviderUnknownKind(t *testing.T) {
	_, err := NewProvider(context.Background(), "carrier-pigeon", ProviderConfig{})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestNewProviderAnthropicRequiresAPIKey(t *testing.T) {
	_, err := NewProvider(context.Background(), "anthropic", ProviderConfig{})
	if err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestNewProviderOpenAIRequiresAPIKey(t *testing.T) {
	_, err := NewProvider(context.Background(), "openai", ProviderConfig{})
	if err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestNewProviderGeminiRequiresAPIKey(t *testing.T) {
	_, err := NewProvider(context.Background(), "gemini", ProviderConfig{})
	if err == nil {
		t.Fatal("expected error without API key")
	}
}
