package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnengine/engine/internal/state"
	"github.com/turnengine/engine/internal/wiring"
)

// Router classifies the incoming turn into task.route and task.language. It
// carries no toolset and forces a JSON response (§4.11).
func Router(ctx context.Context, st *state.State, deps *wiring.Deps, svc *wiring.Services) error {
	span := st.Emitter.Span(IDRouter, "classify the turn")

	worldJSON, err := json.Marshal(st.World)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: router: %w", err)
	}

	promptText, err := render(deps.PromptDir, "runtime_router", map[string]string{
		"USER_MESSAGE": st.Task.UserText,
		"NOW":          st.Runtime.NowISO,
		"TZ":           st.Runtime.Timezone,
		"WORLD_JSON":   string(worldJSON),
	})
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return err
	}

	sink := newSink(st, IDRouter, span.SpanID(), span.Thinking, nil)
	obj, err := structuredCompletion(ctx, deps, "router", promptText, sink)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: router: %w", err)
	}

	st.Task.Route = asString(obj, "route", "answer")
	st.Task.Language = asString(obj, "language", st.Task.Language)
	st.Runtime.Status = asString(obj, "status", "")
	st.Runtime.NodeTrace = append(st.Runtime.NodeTrace, IDRouter)

	span.EndOK()
	return nil
}
