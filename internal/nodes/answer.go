package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnengine/engine/internal/llm"
	"github.com/turnengine/engine/internal/state"
	"github.com/turnengine/engine/internal/toolloop"
	"github.com/turnengine/engine/internal/wiring"
)

// Answer renders the final reply and streams it to the consumer as it
// arrives, rather than buffering the whole response before emitting it
// (§9 "Streaming from provider while graph runs"). It carries no toolset.
func Answer(ctx context.Context, st *state.State, deps *wiring.Deps, svc *wiring.Services) error {
	span := st.Emitter.Span(IDAnswer, "compose the reply")

	worldJSON, err := json.Marshal(st.World)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: answer: %w", err)
	}
	contextJSON, err := json.Marshal(st.Context)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: answer: %w", err)
	}
	issuesJSON, err := json.Marshal(st.Runtime.Issues)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: answer: %w", err)
	}

	promptText, err := render(deps.PromptDir, "runtime_answer", map[string]string{
		"USER_MESSAGE": st.Task.UserText,
		"STATUS":       st.Runtime.Status,
		"WORLD_JSON":   string(worldJSON),
		"CONTEXT_JSON": string(contextJSON),
		"ISSUES_JSON":  string(issuesJSON),
		"NOW_ISO":      st.Runtime.NowISO,
		"TIMEZONE":     st.Runtime.Timezone,
	})
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return err
	}

	stream := st.Emitter.AssistantStream()
	sink := newSink(st, IDAnswer, span.SpanID(), span.Thinking, stream.Delta)

	cfg := deps.Role("answer")
	result, err := toolloop.Run(ctx, &toolloop.Request{
		Provider: deps.Provider,
		Model:    cfg.Model,
		Messages: []llm.Message{{Role: "user", Content: promptText}},
		Params:   cfg.Params,
		MaxSteps: 1,
	}, sink)
	stream.End()
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: answer: %w", err)
	}

	st.Final.Answer = result.Text
	st.Runtime.Status = "answered"
	st.Runtime.NodeTrace = append(st.Runtime.NodeTrace, IDAnswer)
	span.EndOK()
	return nil
}
