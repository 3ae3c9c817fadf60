// Package emitter implements the node-facing Emitter/Span façade (§4.9): it
// owns span lifetimes and timing and is the only way node code touches the
// event bus.
package emitter

import (
	"time"

	"github.com/google/uuid"
	"github.com/turnengine/engine/internal/eventbus"
)

// Emitter wraps a Factory+Bus pair with turn-level helpers. It is installed
// into State before the graph runs and handed to every node.
type Emitter struct {
	factory *eventbus.Factory
	bus     *eventbus.Bus
}

// New creates an Emitter over the given factory and bus.
func New(factory *eventbus.Factory, bus *eventbus.Bus) *Emitter {
	return &Emitter{factory: factory, bus: bus}
}

// emit asks the factory for the next seq-stamped envelope of kind, lets
// mutate fill in kind-specific fields, then hands it to the bus. The
// factory's seq counter and the bus's enqueue happen back-to-back on the
// single producer goroutine, so seq order is preserved as observed by the
// consumer (§5).
func (e *Emitter) emit(kind eventbus.Kind, mutate func(*eventbus.Event)) {
	ev := e.factory.Next(kind)
	if mutate != nil {
		mutate(&ev)
	}
	e.bus.Emit(ev)
}

// StartTurn emits turn_start.
func (e *Emitter) StartTurn(provider string, models map[string]string) {
	e.emit(eventbus.KindTurnStart, func(ev *eventbus.Event) {
		ev.Provider = provider
		ev.Models = models
	})
}

// EndTurnOK emits turn_end_ok.
func (e *Emitter) EndTurnOK(durationMs int64) {
	e.emit(eventbus.KindTurnEndOK, func(ev *eventbus.Event) {
		ev.DurationMs = durationMs
	})
}

// EndTurnError emits turn_end_error.
func (e *Emitter) EndTurnError(code, message string) {
	e.emit(eventbus.KindTurnEndError, func(ev *eventbus.Event) {
		ev.Code = code
		ev.Message = message
	})
}

// WorldCommit emits world_commit.
func (e *Emitter) WorldCommit(before, after, delta map[string]any) {
	e.emit(eventbus.KindWorldCommit, func(ev *eventbus.Event) {
		ev.WorldBefore = before
		ev.WorldAfter = after
		ev.Delta = delta
	})
}

// AssistantFull emits a start/delta/end assistant group for a single
// pre-rendered string, for nodes that do not need incremental streaming.
func (e *Emitter) AssistantFull(text string) {
	id := uuid.NewString()
	e.emit(eventbus.KindAssistantStart, func(ev *eventbus.Event) { ev.MessageID = id })
	if text != "" {
		e.emit(eventbus.KindAssistantDelta, func(ev *eventbus.Event) { ev.MessageID = id; ev.Text = text })
	}
	e.emit(eventbus.KindAssistantEnd, func(ev *eventbus.Event) { ev.MessageID = id })
}

// AssistantStream returns a handle for incrementally streamed assistant
// output with a stable message_id.
func (e *Emitter) AssistantStream() *AssistantStream {
	id := uuid.NewString()
	e.emit(eventbus.KindAssistantStart, func(ev *eventbus.Event) { ev.MessageID = id })
	return &AssistantStream{e: e, id: id}
}

// AssistantStream groups assistant_delta events under one message_id.
type AssistantStream struct {
	e  *Emitter
	id string
}

// Delta emits one assistant_delta.
func (s *AssistantStream) Delta(text string) {
	s.e.emit(eventbus.KindAssistantDelta, func(ev *eventbus.Event) { ev.MessageID = s.id; ev.Text = text })
}

// End emits assistant_end.
func (s *AssistantStream) End() {
	s.e.emit(eventbus.KindAssistantEnd, func(ev *eventbus.Event) { ev.MessageID = s.id })
}

// Span opens a node span: emits node_start followed by thinking_start, and
// returns a handle for thinking deltas, log lines, and a terminal end_ok or
// end_error (§4.9).
func (e *Emitter) Span(nodeID, label string) *Span {
	spanID := eventbus.NewSpanID(nodeID)
	e.emit(eventbus.KindNodeStart, func(ev *eventbus.Event) { ev.NodeID = nodeID; ev.SpanID = spanID })
	e.emit(eventbus.KindThinkingStart, func(ev *eventbus.Event) { ev.NodeID = nodeID; ev.SpanID = spanID })
	return &Span{e: e, nodeID: nodeID, spanID: spanID, label: label, started: time.Now()}
}

// Span is a node-scoped timed region (Glossary) grouping thinking deltas and
// log lines between node_start and node_end_*.
type Span struct {
	e       *Emitter
	nodeID  string
	spanID  string
	label   string
	started time.Time
	ended   bool
}

// SpanID returns the span's id, for callers that need to attribute
// tool_call/tool_result events emitted outside the Span helper itself.
func (s *Span) SpanID() string { return s.spanID }

// Thinking emits a thinking_delta within this span.
func (s *Span) Thinking(text string) {
	s.e.emit(eventbus.KindThinkingDelta, func(ev *eventbus.Event) {
		ev.NodeID = s.nodeID
		ev.SpanID = s.spanID
		ev.Text = text
	})
}

// Log emits a log_line within this span.
func (s *Span) Log(level, message, logger string, fields map[string]any) {
	s.e.emit(eventbus.KindLogLine, func(ev *eventbus.Event) {
		ev.NodeID = s.nodeID
		ev.SpanID = s.spanID
		ev.Level = level
		ev.Message = message
		ev.Logger = logger
		ev.Fields = fields
	})
}

// EndOK closes the span successfully: thinking_end always precedes
// node_end_ok, and the span's duration is stamped in milliseconds.
func (s *Span) EndOK() {
	if s.ended {
		return
	}
	s.ended = true
	duration := time.Since(s.started).Milliseconds()
	s.e.emit(eventbus.KindThinkingEnd, func(ev *eventbus.Event) { ev.NodeID = s.nodeID; ev.SpanID = s.spanID })
	s.e.emit(eventbus.KindNodeEndOK, func(ev *eventbus.Event) {
		ev.NodeID = s.nodeID
		ev.SpanID = s.spanID
		ev.DurationMs = duration
	})
}

// EndError closes the span with a failure: thinking_end always precedes
// node_end_error.
func (s *Span) EndError(code, message string, details any) {
	if s.ended {
		return
	}
	s.ended = true
	duration := time.Since(s.started).Milliseconds()
	s.e.emit(eventbus.KindThinkingEnd, func(ev *eventbus.Event) { ev.NodeID = s.nodeID; ev.SpanID = s.spanID })
	s.e.emit(eventbus.KindNodeEndError, func(ev *eventbus.Event) {
		ev.NodeID = s.nodeID
		ev.SpanID = s.spanID
		ev.Code = code
		ev.Message = message
		ev.Details = details
		ev.DurationMs = duration
	})
}

// ToolCall emits a tool_call event.
func (e *Emitter) ToolCall(nodeID, spanID, callID, name, argsJSON string) {
	e.emit(eventbus.KindToolCall, func(ev *eventbus.Event) {
		ev.NodeID = nodeID
		ev.SpanID = spanID
		ev.ToolCallID = callID
		ev.ToolName = name
		ev.ArgsJSON = argsJSON
	})
}

// ToolResult emits a tool_result event.
func (e *Emitter) ToolResult(nodeID, spanID, callID, name, resultJSON string, isError bool) {
	e.emit(eventbus.KindToolResult, func(ev *eventbus.Event) {
		ev.NodeID = nodeID
		ev.SpanID = spanID
		ev.ToolCallID = callID
		ev.ToolName = name
		ev.ResultJSON = resultJSON
		ev.IsError = isError
	})
}
