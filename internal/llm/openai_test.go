package llm

import (
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestNewOpenAIProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewOpenAIProvider(OpenAIConfig{}); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestConvertOpenAIMessages(t *testing.T) {
	msgs := convertOpenAIMessages([]Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "tool", Content: "result", ToolCallID: "call-1"},
	})
	if len(msgs) != 4 {
		t.Fatalf("len = %d, want 4", len(msgs))
	}
	if msgs[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("role[0] = %s", msgs[0].Role)
	}
	if msgs[3].Role != openai.ChatMessageRoleTool || msgs[3].ToolCallID != "call-1" {
		t.Errorf("tool message mismatch: %+v", msgs[3])
	}
}

func TestConvertOpenAITools(t *testing.T) {
	tools := convertOpenAITools([]ToolDef{
		{Name: "lookup", Description: "looks things up", Parameters: json.RawMessage(`{"type":"object"}`)},
	})
	if len(tools) != 1 {
		t.Fatalf("len = %d, want 1", len(tools))
	}
	if tools[0].Function.Name != "lookup" {
		t.Errorf("Name = %s", tools[0].Function.Name)
	}
}

func TestConvertOpenAIToolsInvalidSchemaFallsBackToEmpty(t *testing.T) {
	tools := convertOpenAITools([]ToolDef{{Name: "x", Parameters: json.RawMessage(`not json`)}})
	schema, ok := tools[0].Function.Parameters.(map[string]any)
	if !ok || schema["type"] != "object" {
		t.Errorf("expected fallback object schema, got %+v", tools[0].Function.Parameters)
	}
}
