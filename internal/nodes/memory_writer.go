package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnengine/engine/internal/state"
	"github.com/turnengine/engine/internal/wiring"
)

// MemoryWriter decides whether anything from this turn is worth persisting
// to external memory and, if so, calls memory_store (its only tool).
func MemoryWriter(ctx context.Context, st *state.State, deps *wiring.Deps, svc *wiring.Services) error {
	span := st.Emitter.Span(IDMemoryWriter, "write memories")

	contextJSON, err := json.Marshal(st.Context)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: memory_writer: %w", err)
	}

	promptText, err := render(deps.PromptDir, "runtime_memory_writer", map[string]string{
		"USER_MESSAGE": st.Task.UserText,
		"ANSWER":       st.Final.Answer,
		"CONTEXT_JSON": string(contextJSON),
	})
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return err
	}

	toolset := svc.Firewall.Toolset(IDMemoryWriter)
	sink := newSink(st, IDMemoryWriter, span.SpanID(), span.Thinking, nil)
	result, err := toolCompletion(ctx, deps, "reflect", promptText, toolset, svc.Registry, deps.ToolStepCap, sink)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: memory_writer: %w", err)
	}

	stored := 0
	for _, msg := range result.Messages {
		if msg.Role != "tool" {
			continue
		}
		var toolResult struct {
			OK     bool `json:"ok"`
			Stored int  `json:"stored"`
		}
		if err := json.Unmarshal([]byte(msg.Content), &toolResult); err != nil {
			continue
		}
		if toolResult.OK {
			stored += toolResult.Stored
		}
	}

	if stored > 0 {
		st.Context.Sources = append(st.Context.Sources, state.Source{
			Kind:  "notes",
			Title: "stored this turn",
			Items: []any{map[string]any{"stored_count": stored}},
		})
	}

	st.Runtime.AppendIssue(fmt.Sprintf("memory_writer: stored_count=%d", stored))
	st.Runtime.NodeTrace = append(st.Runtime.NodeTrace, IDMemoryWriter)
	span.EndOK()
	return nil
}
