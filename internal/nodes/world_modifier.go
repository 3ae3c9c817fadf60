package nodes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnengine/engine/internal/state"
	"github.com/turnengine/engine/internal/wiring"
)

// WorldModifier lets the provider apply allowlisted world-state mutations
// through world_apply_ops, the only tool this node's firewall entry exposes.
// The tool binding itself persists the new document (§4.5); this node's job
// is to install the returned world into State and summarize the outcome.
func WorldModifier(ctx context.Context, st *state.State, deps *wiring.Deps, svc *wiring.Services) error {
	span := st.Emitter.Span(IDWorldModifier, "apply world mutations")

	worldJSON, err := json.Marshal(st.World)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: world_modifier: %w", err)
	}

	promptText, err := render(deps.PromptDir, "runtime_world_modifier", map[string]string{
		"USER_MESSAGE": st.Task.UserText,
		"WORLD_JSON":   string(worldJSON),
		"NOW":          st.Runtime.NowISO,
		"TZ":           st.Runtime.Timezone,
	})
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return err
	}

	toolset := svc.Firewall.Toolset(IDWorldModifier)
	sink := newSink(st, IDWorldModifier, span.SpanID(), span.Thinking, nil)
	result, err := toolCompletion(ctx, deps, "planner", promptText, toolset, svc.Registry, deps.ToolStepCap, sink)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: world_modifier: %w", err)
	}

	applied := 0
	for _, msg := range result.Messages {
		if msg.Role != "tool" {
			continue
		}
		var toolResult struct {
			OK    bool       `json:"ok"`
			World state.World `json:"world"`
		}
		if err := json.Unmarshal([]byte(msg.Content), &toolResult); err != nil {
			continue
		}
		if toolResult.OK {
			st.World = toolResult.World
			applied++
		}
	}

	st.Runtime.Status = fmt.Sprintf("world_modifier: %d op set(s) applied", applied)
	st.Runtime.NodeTrace = append(st.Runtime.NodeTrace, IDWorldModifier)
	span.EndOK()
	return nil
}
