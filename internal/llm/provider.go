// Package llm defines the streaming LLM provider contract used by the turn
// engine's tool loop and structured nodes.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Message is one turn of a conversation handed to a provider.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolDef describes a tool the model may call.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a model-issued request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Params carries generation parameters (temperature, num_predict, ...). It is
// passed through to the provider unmodified.
type Params map[string]any

// ResponseFormat biases generation toward a single shape.
type ResponseFormat string

const (
	ResponseFormatNone ResponseFormat = ""
	ResponseFormatJSON ResponseFormat = "json"
)

// CompletionRequest is the input to Provider.Complete.
type CompletionRequest struct {
	Model          string
	Messages       []Message
	Params         Params
	ResponseFormat ResponseFormat
	Tools          []ToolDef
}

// ErrJSONWithTools is returned when a request asks for forced JSON output
// while also offering tools; §4.3 forbids the combination.
var ErrJSONWithTools = errors.New("llm: response_format=json cannot be combined with a non-empty tools list")

// Validate enforces the response_format/tools mutual exclusion from §4.3.
func (r *CompletionRequest) Validate() error {
	if r.ResponseFormat == ResponseFormatJSON && len(r.Tools) > 0 {
		return ErrJSONWithTools
	}
	return nil
}

// EventKind identifies the shape of a StreamEvent.
type EventKind string

const (
	EventDeltaText     EventKind = "delta_text"
	EventDeltaThinking EventKind = "delta_thinking"
	EventToolCall      EventKind = "tool_call"
	EventDone          EventKind = "done"
	EventError         EventKind = "error"
)

// StreamEvent is one item in a provider's output stream. Exactly the field(s)
// relevant to Kind are populated.
type StreamEvent struct {
	Kind     EventKind
	Text     string
	Thinking string
	ToolCall *ToolCall
	Err      error

	// InputTokens/OutputTokens are populated on the final EventDone, when
	// the provider reports usage.
	InputTokens  int
	OutputTokens int
}

// Provider streams a single completion. Implementations must treat transport
// failures as a single EventError followed by channel close — the engine
// never retries (§1 Non-goals).
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *StreamEvent, error)
}
