package llm

import (
	"context"
	"encoding/json"
	"testing"

	"google.golang.org/genai"
)

func TestNewGeminiProviderRequiresAPIKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), GeminiConfig{}); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestConvertGeminiMessages(t *testing.T) {
	contents := convertGeminiMessages([]Message{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	if len(contents) != 2 {
		t.Fatalf("len = %d, want 2 (system message dropped)", len(contents))
	}
	if contents[0].Role != genai.RoleUser {
		t.Errorf("contents[0].Role = %s, want user", contents[0].Role)
	}
	if contents[1].Role != genai.RoleModel {
		t.Errorf("contents[1].Role = %s, want model", contents[1].Role)
	}
}

func TestBuildGeminiConfigExtractsSystemInstruction(t *testing.T) {
	cfg := buildGeminiConfig(&CompletionRequest{
		Messages: []Message{{Role: "system", Content: "be nice"}},
	})
	if cfg.SystemInstruction == nil || len(cfg.SystemInstruction.Parts) != 1 {
		t.Fatalf("SystemInstruction = %+v", cfg.SystemInstruction)
	}
	if cfg.SystemInstruction.Parts[0].Text != "be nice" {
		t.Errorf("system text = %q", cfg.SystemInstruction.Parts[0].Text)
	}
}

func TestConvertGeminiTools(t *testing.T) {
	tools := convertGeminiTools([]ToolDef{
		{Name: "search", Description: "searches", Parameters: json.RawMessage(`{"type":"object"}`)},
	})
	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("tools = %+v", tools)
	}
	if tools[0].FunctionDeclarations[0].Name != "search" {
		t.Errorf("Name = %s", tools[0].FunctionDeclarations[0].Name)
	}
}
