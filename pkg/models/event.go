package models

// EventKind identifies the shape of an Event (§3), mirrored here as the
// public, stable wire type external consumers of the Event Stream Gateway
// decode — internal/eventbus.Event is the engine-internal twin of this type
// and the two must stay field-for-field identical.
type EventKind string

const (
	EventTurnStart      EventKind = "turn_start"
	EventTurnEndOK      EventKind = "turn_end_ok"
	EventTurnEndError   EventKind = "turn_end_error"
	EventNodeStart      EventKind = "node_start"
	EventNodeEndOK      EventKind = "node_end_ok"
	EventNodeEndError   EventKind = "node_end_error"
	EventThinkingStart  EventKind = "thinking_start"
	EventThinkingDelta  EventKind = "thinking_delta"
	EventThinkingEnd    EventKind = "thinking_end"
	EventAssistantStart EventKind = "assistant_start"
	EventAssistantDelta EventKind = "assistant_delta"
	EventAssistantEnd   EventKind = "assistant_end"
	EventToolCall       EventKind = "tool_call"
	EventToolResult     EventKind = "tool_result"
	EventLogLine        EventKind = "log_line"
	EventWorldCommit    EventKind = "world_commit"
)

// Event is the JSON shape a gateway client (§4.19) receives over the
// WebSocket, one frame per engine event, in strictly increasing Seq order.
// Consumers must ignore any Kind they don't recognize (§6).
type Event struct {
	TurnID string    `json:"turn_id"`
	Seq    uint64    `json:"seq"`
	TSMs   int64     `json:"ts_ms"`
	Kind   EventKind `json:"kind"`

	NodeID string `json:"node_id,omitempty"`
	SpanID string `json:"span_id,omitempty"`

	Provider string            `json:"provider,omitempty"`
	Models   map[string]string `json:"models,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`

	Text string `json:"text,omitempty"`

	MessageID string `json:"message_id,omitempty"`

	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ArgsJSON   string `json:"args_json,omitempty"`
	ResultJSON string `json:"result_json,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	Level  string         `json:"level,omitempty"`
	Logger string         `json:"logger,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`

	DurationMs int64 `json:"duration_ms,omitempty"`

	WorldBefore map[string]any `json:"world_before,omitempty"`
	WorldAfter  map[string]any `json:"world_after,omitempty"`
	Delta       map[string]any `json:"delta,omitempty"`
}
