package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnengine/engine/internal/state"
	"github.com/turnengine/engine/internal/wiring"
)

// ContextBuilder assembles context.sources for the turn: it may consult
// chat-history directly (core_context) and decide whether the Memory
// Retriever should be asked to query external memory (mcp_memory_read).
// Toolset is non-empty, so response_format cannot be forced (§4.3); the
// final decision is recovered from free text with the noise-tolerant
// extractor.
func ContextBuilder(ctx context.Context, st *state.State, deps *wiring.Deps, svc *wiring.Services) error {
	span := st.Emitter.Span(IDContextBuilder, "assemble context")

	worldJSON, err := json.Marshal(st.World)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: context_builder: %w", err)
	}

	promptText, err := render(deps.PromptDir, "runtime_context_builder", map[string]string{
		"USER_MESSAGE": st.Task.UserText,
		"WORLD_JSON":   string(worldJSON),
		"NOW":          st.Runtime.NowISO,
		"TZ":           st.Runtime.Timezone,
	})
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return err
	}

	toolset := svc.Firewall.Toolset(IDContextBuilder)
	sink := newSink(st, IDContextBuilder, span.SpanID(), span.Thinking, nil)
	result, err := toolCompletion(ctx, deps, "planner", promptText, toolset, svc.Registry, deps.ToolStepCap, sink)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: context_builder: %w", err)
	}

	obj, err := extractJSON(result.Text)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: context_builder: %w", err)
	}

	if summary := asString(obj, "summary", ""); summary != "" {
		st.Context.Sources = append(st.Context.Sources, state.Source{
			Kind:  "chat_history",
			Title: "recent conversation",
			Items: []any{summary},
		})
	}

	if req, ok := obj["memory_request"].(map[string]any); ok && len(req) > 0 {
		st.Context.MemoryRequest = req
	}

	st.Runtime.NodeTrace = append(st.Runtime.NodeTrace, IDContextBuilder)
	span.EndOK()
	return nil
}
