package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnengine/engine/internal/state"
	"github.com/turnengine/engine/internal/wiring"
)

// MemoryRetriever turns context.memory_request (set by Context Builder)
// into memory_query tool calls through the tool loop (up to deps.ToolStepCap
// steps; the prompt asks for a single call, but the loop does not enforce
// it), recording {did_query, query_text, desired_n, returned} and, for each
// successful call with items, a "memories" context source. When no request
// was made it short-circuits without invoking the provider.
func MemoryRetriever(ctx context.Context, st *state.State, deps *wiring.Deps, svc *wiring.Services) error {
	span := st.Emitter.Span(IDMemoryRetriever, "retrieve memories")

	if len(st.Context.MemoryRequest) == 0 {
		st.Runtime.NodeTrace = append(st.Runtime.NodeTrace, IDMemoryRetriever)
		span.EndOK()
		return nil
	}

	requestJSON, err := json.Marshal(st.Context.MemoryRequest)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: memory_retriever: %w", err)
	}

	promptText, err := render(deps.PromptDir, "runtime_memory_retriever", map[string]string{
		"USER_MESSAGE":   st.Task.UserText,
		"MEMORY_REQUEST": string(requestJSON),
	})
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return err
	}

	toolset := svc.Firewall.Toolset(IDMemoryRetriever)
	sink := newSink(st, IDMemoryRetriever, span.SpanID(), span.Thinking, nil)
	result, err := toolCompletion(ctx, deps, "reflect", promptText, toolset, svc.Registry, deps.ToolStepCap, sink)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: memory_retriever: %w", err)
	}

	summary := map[string]any{
		"did_query":  false,
		"query_text": asString(st.Context.MemoryRequest, "query", ""),
		"desired_n":  st.Context.MemoryRequest["k"],
	}

	for _, msg := range result.Messages {
		if msg.Role != "tool" {
			continue
		}
		var toolResult struct {
			OK       bool  `json:"ok"`
			Items    []any `json:"items"`
			Returned int   `json:"returned"`
		}
		if err := json.Unmarshal([]byte(msg.Content), &toolResult); err != nil {
			continue
		}
		summary["did_query"] = true
		summary["returned"] = toolResult.Returned
		if toolResult.OK && len(toolResult.Items) > 0 {
			st.Context.Sources = append(st.Context.Sources, state.Source{
				Kind:  "memories",
				Title: "retrieved memories",
				Items: toolResult.Items,
				Meta: map[string]any{
					"query_text":      summary["query_text"],
					"requested_limit": summary["desired_n"],
					"returned":        toolResult.Returned,
				},
			})
		}
	}

	summaryJSON, _ := json.Marshal(summary)
	st.Runtime.AppendIssue(fmt.Sprintf("memory_retriever: %s", summaryJSON))
	st.Runtime.NodeTrace = append(st.Runtime.NodeTrace, IDMemoryRetriever)
	span.EndOK()
	return nil
}
