package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/turnengine/engine/internal/state"
	"github.com/turnengine/engine/internal/wiring"
)

// maxTopics caps world.topics, deduplicated case-insensitively, per §4.11.
const maxTopics = 5

// ReflectTopics derives topics from the turn and writes them to
// world.topics, replacing the previous list. No toolset, forced JSON
// response.
func ReflectTopics(ctx context.Context, st *state.State, deps *wiring.Deps, svc *wiring.Services) error {
	span := st.Emitter.Span(IDReflectTopics, "extract topics")

	prevTopicsJSON, err := json.Marshal(st.World.Topics)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: reflect_topics: %w", err)
	}

	promptText, err := render(deps.PromptDir, "runtime_reflect_topics", map[string]string{
		"PREV_TOPICS_JSON":  string(prevTopicsJSON),
		"USER_MESSAGE":      st.Task.UserText,
		"ASSISTANT_MESSAGE": st.Final.Answer,
	})
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return err
	}

	sink := newSink(st, IDReflectTopics, span.SpanID(), span.Thinking, nil)
	obj, err := structuredCompletion(ctx, deps, "reflect", promptText, sink)
	if err != nil {
		span.EndError("NODE_ERROR", err.Error(), nil)
		return fmt.Errorf("NODE_ERROR: reflect_topics: %w", err)
	}

	raw, _ := obj["topics"].([]any)
	st.World.Topics = coerceTopics(raw)
	st.Runtime.NodeTrace = append(st.Runtime.NodeTrace, IDReflectTopics)

	span.EndOK()
	return nil
}

// coerceTopics deduplicates the model's own topics list case-insensitively,
// preserving order, and caps it at maxTopics. The model already saw
// PREV_TOPICS_JSON and is expected to account for prior topics itself; this
// replaces world.topics wholesale rather than folding old topics back in.
func coerceTopics(fresh []any) []string {
	seen := make(map[string]bool, len(fresh))
	var topics []string
	for _, v := range fresh {
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		topics = append(topics, s)
	}
	if len(topics) > maxTopics {
		topics = topics[:maxTopics]
	}
	return topics
}
