// Package graph implements the Graph Builder (C12, §4.12): a static,
// compile-time sequence of Node Kinds with one conditional fork on
// task.route, entered at Router and always finishing with Reflect Topics
// then Memory Writer.
package graph

import (
	"context"
	"fmt"

	"github.com/turnengine/engine/internal/nodes"
	"github.com/turnengine/engine/internal/state"
	"github.com/turnengine/engine/internal/wiring"
)

// RouteContext and RouteWorld are the task.route values Router may produce;
// any other value (including "answer" or empty) falls through to Answer
// directly.
const (
	RouteContext = "context"
	RouteWorld   = "world"
)

// Graph is the compiled node sequence the runner drives.
type Graph struct {
	deps *wiring.Deps
	svc  *wiring.Services
}

// New compiles a Graph over the given dependencies and services.
func New(deps *wiring.Deps, svc *wiring.Services) *Graph {
	return &Graph{deps: deps, svc: svc}
}

// Run executes the graph over st: Router always runs first; task.route then
// picks the middle leg (context-building with memory retrieval, or a world
// mutation); Answer always runs next; Reflect Topics and Memory Writer
// always close out the turn, in that order (§4.12).
func (g *Graph) Run(ctx context.Context, st *state.State) error {
	if err := nodes.Router(ctx, st, g.deps, g.svc); err != nil {
		return fmt.Errorf("graph: %w", err)
	}

	switch st.Task.Route {
	case RouteContext:
		if err := nodes.ContextBuilder(ctx, st, g.deps, g.svc); err != nil {
			return fmt.Errorf("graph: %w", err)
		}
		if err := nodes.MemoryRetriever(ctx, st, g.deps, g.svc); err != nil {
			return fmt.Errorf("graph: %w", err)
		}
	case RouteWorld:
		if err := nodes.WorldModifier(ctx, st, g.deps, g.svc); err != nil {
			return fmt.Errorf("graph: %w", err)
		}
	}

	if err := nodes.Answer(ctx, st, g.deps, g.svc); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	if err := nodes.ReflectTopics(ctx, st, g.deps, g.svc); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	if err := nodes.MemoryWriter(ctx, st, g.deps, g.svc); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	return nil
}
