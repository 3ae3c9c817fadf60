// Package eventbus implements the per-turn event Factory and Bus (§4.8): a
// monotonically sequenced, thread-safe FIFO that the turn worker publishes to
// and the runner's consumer drains in strict seq order.
package eventbus

// Kind identifies the shape of an Event.
type Kind string

const (
	KindTurnStart      Kind = "turn_start"
	KindTurnEndOK      Kind = "turn_end_ok"
	KindTurnEndError   Kind = "turn_end_error"
	KindNodeStart      Kind = "node_start"
	KindNodeEndOK      Kind = "node_end_ok"
	KindNodeEndError   Kind = "node_end_error"
	KindThinkingStart  Kind = "thinking_start"
	KindThinkingDelta  Kind = "thinking_delta"
	KindThinkingEnd    Kind = "thinking_end"
	KindAssistantStart Kind = "assistant_start"
	KindAssistantDelta Kind = "assistant_delta"
	KindAssistantEnd   Kind = "assistant_end"
	KindToolCall       Kind = "tool_call"
	KindToolResult     Kind = "tool_result"
	KindLogLine        Kind = "log_line"
	KindWorldCommit    Kind = "world_commit"
)

// Event is an immutable record in a turn's stream (§3). Only the fields
// relevant to Kind are populated; unknown-to-a-consumer kinds must be
// ignored per §6.
type Event struct {
	TurnID string `json:"turn_id"`
	Seq    uint64 `json:"seq"`
	TSMs   int64  `json:"ts_ms"`
	Kind   Kind   `json:"kind"`

	// node_* fields
	NodeID string `json:"node_id,omitempty"`
	SpanID string `json:"span_id,omitempty"`

	// turn_start
	Provider string            `json:"provider,omitempty"`
	Models   map[string]string `json:"models,omitempty"`

	// *_error fields
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`

	// thinking_delta / assistant_delta
	Text string `json:"text,omitempty"`

	// assistant_* grouping
	MessageID string `json:"message_id,omitempty"`

	// tool_call / tool_result
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ArgsJSON   string `json:"args_json,omitempty"`
	ResultJSON string `json:"result_json,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`

	// log_line
	Level  string         `json:"level,omitempty"`
	Logger string         `json:"logger,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`

	// node span duration, stamped by the Emitter on end_*
	DurationMs int64 `json:"duration_ms,omitempty"`

	// world_commit
	WorldBefore map[string]any `json:"world_before,omitempty"`
	WorldAfter  map[string]any `json:"world_after,omitempty"`
	Delta       map[string]any `json:"delta,omitempty"`
}
