// Package nodes implements the Node Kinds (C11, §4.11): Router, Context
// Builder, Memory Retriever, World Modifier, Answer, Reflect Topics, and
// Memory Writer. Every node shares a contract: read from State, obtain an
// Emitter, open a span, render a prompt, run the tool loop (or a structured
// LLM call), update State, close the span.
package nodes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/turnengine/engine/internal/jsonextract"
	"github.com/turnengine/engine/internal/llm"
	"github.com/turnengine/engine/internal/prompt"
	"github.com/turnengine/engine/internal/state"
	"github.com/turnengine/engine/internal/toolkit"
	"github.com/turnengine/engine/internal/toolloop"
	"github.com/turnengine/engine/internal/wiring"
)

// Node IDs, used both as event node_id and as firewall policy keys.
const (
	IDRouter          = "router"
	IDContextBuilder  = "context_builder"
	IDMemoryRetriever = "memory_retriever"
	IDWorldModifier   = "world_modifier"
	IDAnswer          = "answer"
	IDReflectTopics   = "reflect_topics"
	IDMemoryWriter    = "memory_writer"
)

// Node is the shared shape of every node kind.
type Node func(ctx context.Context, st *state.State, deps *wiring.Deps, svc *wiring.Services) error

// spanSink adapts an emitter.Span to toolloop.Sink, emitting tool_call and
// tool_result events under the span's node/span id while routing thinking
// deltas to the span and (for nodes that stream assistant text, namely
// Answer) forwarding text deltas to an AssistantStream.
type spanSink struct {
	nodeID   string
	spanID   string
	text     func(text string)
	toolCall func(callID, name, argsJSON string)
	toolRes  func(callID, name, resultJSON string, isError bool)
	thinking func(text string)
}

func (s *spanSink) DeltaText(text string)     { s.text(text) }
func (s *spanSink) DeltaThinking(text string) { s.thinking(text) }
func (s *spanSink) ToolCall(callID, name, argsJSON string) {
	s.toolCall(callID, name, argsJSON)
}
func (s *spanSink) ToolResult(callID, name, resultJSON string, isError bool) {
	s.toolRes(callID, name, resultJSON, isError)
}

func loadTemplate(promptDir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(promptDir, name+".txt"))
	if err != nil {
		return "", fmt.Errorf("load template %s: %w", name, err)
	}
	return string(data), nil
}

func render(promptDir, name string, values map[string]string) (string, error) {
	tmpl, err := loadTemplate(promptDir, name)
	if err != nil {
		return "", err
	}
	out, err := prompt.Render(tmpl, values)
	if err != nil {
		return "", fmt.Errorf("NODE_ERROR: %w", err)
	}
	return out, nil
}

func extractJSON(text string) (map[string]any, error) {
	obj, err := jsonextract.Extract(text)
	if err != nil {
		return nil, fmt.Errorf("NODE_ERROR: %w", err)
	}
	return obj, nil
}

func asString(m map[string]any, key, fallback string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// newSink builds a toolloop.Sink wired to a node's span: thinking deltas go
// to span.Thinking, tool events go to the parent Emitter (spans don't carry
// tool_call/tool_result helpers themselves), and text deltas go to onText if
// given, or are dropped for nodes that buffer the whole response.
func newSink(st *state.State, nodeID, spanID string, thinking func(string), onText func(string)) *spanSink {
	if onText == nil {
		onText = func(string) {}
	}
	return &spanSink{
		nodeID:   nodeID,
		spanID:   spanID,
		text:     onText,
		thinking: thinking,
		toolCall: func(callID, name, argsJSON string) {
			st.Emitter.ToolCall(nodeID, spanID, callID, name, argsJSON)
		},
		toolRes: func(callID, name, resultJSON string, isError bool) {
			st.Emitter.ToolResult(nodeID, spanID, callID, name, resultJSON, isError)
		},
	}
}

// structuredCompletion runs a single no-tools completion forced to JSON
// (router, reflect-topics buffer the whole response before parsing, per §9
// "Streaming from provider while graph runs"). response_format and tools
// are mutually exclusive (§4.3), so this path is only valid for nodes with
// no toolset.
func structuredCompletion(ctx context.Context, deps *wiring.Deps, role, promptText string, sink toolloop.Sink) (map[string]any, error) {
	cfg := deps.Role(role)
	result, err := toolloop.Run(ctx, &toolloop.Request{
		Provider:       deps.Provider,
		Model:          cfg.Model,
		Messages:       []llm.Message{{Role: "user", Content: promptText}},
		Params:         cfg.Params,
		ResponseFormat: llm.ResponseFormatJSON,
		MaxSteps:       1,
	}, sink)
	if err != nil {
		return nil, err
	}
	return extractJSON(result.Text)
}

// toolCompletion runs the full tool loop for a node whose toolset is
// non-empty. Because tools forbid a forced response_format (§4.3), nodes
// that still need structured output parse it out of the final text with
// the noise-tolerant JSON extractor.
func toolCompletion(ctx context.Context, deps *wiring.Deps, role, promptText string, toolset []toolkit.Def, reg *toolkit.Registry, maxSteps int, sink toolloop.Sink) (*toolloop.Result, error) {
	cfg := deps.Role(role)
	return toolloop.Run(ctx, &toolloop.Request{
		Provider: deps.Provider,
		Model:    cfg.Model,
		Messages: []llm.Message{{Role: "user", Content: promptText}},
		Params:   cfg.Params,
		Toolset:  toolset,
		Registry: reg,
		MaxSteps: maxSteps,
	}, sink)
}
