// Package runner implements the Turn Runner (C13, §4.13): given a turn id
// and user text, load world-state, install an Emitter over a fresh
// Factory+Bus pair, drive the compiled graph on a worker goroutine, and
// stream events to the caller live as they're produced.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/turnengine/engine/internal/emitter"
	"github.com/turnengine/engine/internal/eventbus"
	"github.com/turnengine/engine/internal/graph"
	"github.com/turnengine/engine/internal/state"
	"github.com/turnengine/engine/internal/wiring"
	"github.com/turnengine/engine/internal/worldstate"
)

// Outcome is delivered once, after the event channel returned by Run closes.
type Outcome struct {
	State *state.State
	Err   error
}

// Run executes one turn end-to-end. The returned event channel is the only
// way to observe the turn's events; it closes once turn_end_ok/turn_end_error
// (and, on success, world_commit) have been sent and the queue fully
// drained. The returned Outcome channel delivers exactly one value,
// afterward.
func Run(ctx context.Context, turnID, userText, nowISO, timezone string, deps *wiring.Deps, svc *wiring.Services, g *graph.Graph) (<-chan eventbus.Event, <-chan Outcome) {
	events := make(chan eventbus.Event, 64)
	outcome := make(chan Outcome, 1)

	go func() {
		defer close(events)
		defer close(outcome)

		factory := eventbus.NewFactory(turnID)
		bus := eventbus.NewBus()
		em := emitter.New(factory, bus)

		world, err := worldstate.Load(svc.WorldPath, nowISO, timezone)
		if err != nil {
			outcome <- Outcome{Err: fmt.Errorf("RUNNER_ERROR: load world: %w", err)}
			return
		}
		before := world

		st := state.New(turnID, userText, nowISO, timezone, world)
		st.Emitter = em

		em.StartTurn(deps.Provider.Name(), roleModels(deps))
		started := time.Now()

		var workerDone atomic.Bool
		var workerErr error
		go func() {
			workerErr = g.Run(ctx, st)
			workerDone.Store(true)
		}()

		for ev := range bus.Live(workerDone.Load) {
			events <- ev
		}

		durationMs := time.Since(started).Milliseconds()
		if workerErr == nil {
			delta := worldstate.Diff(before, st.World)
			if len(delta) > 0 {
				if err := worldstate.Commit(svc.WorldPath, st.World); err != nil {
					workerErr = fmt.Errorf("RUNNER_ERROR: commit world: %w", err)
				}
			}
			if workerErr == nil {
				em.WorldCommit(worldstate.ToMap(before), worldstate.ToMap(st.World), delta)
				em.EndTurnOK(durationMs)
			}
		}
		if workerErr != nil {
			em.EndTurnError("NODE_ERROR", workerErr.Error())
		}

		bus.Close()
		for _, ev := range bus.Events() {
			events <- ev
		}

		outcome <- Outcome{State: st, Err: workerErr}
	}()

	return events, outcome
}

func roleModels(deps *wiring.Deps) map[string]string {
	models := make(map[string]string, len(deps.Roles))
	for role, cfg := range deps.Roles {
		models[role] = cfg.Model
	}
	return models
}
