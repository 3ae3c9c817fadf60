// Package state defines the typed per-turn state the graph reads and writes,
// replacing the dynamic dict-of-anything model with tagged structs per node
// sub-tree (§9 of the design notes this package implements).
package state

import (
	"encoding/json"

	"github.com/turnengine/engine/internal/emitter"
)

// Task carries the router's classification of the incoming turn.
type Task struct {
	UserText string `json:"user_text"`
	Language string `json:"language"`
	Route    string `json:"route"`
}

// Runtime carries turn bookkeeping that every node may append to.
type Runtime struct {
	TurnID    string   `json:"turn_id"`
	NodeTrace []string `json:"node_trace"`
	Status    string   `json:"status"`
	Issues    []string `json:"issues"`
	NowISO    string   `json:"now_iso"`
	Timezone  string   `json:"timezone"`
}

// AppendIssue records a diagnostic line. The cap guards against unbounded
// growth across a long tool loop (§9, Open Question a).
const maxIssues = 200

// AppendIssue appends a line to runtime.issues, trimming the oldest entries
// once the cap is exceeded.
func (r *Runtime) AppendIssue(line string) {
	r.Issues = append(r.Issues, line)
	if len(r.Issues) > maxIssues {
		r.Issues = r.Issues[len(r.Issues)-maxIssues:]
	}
}

// Source is one item contributed to context.sources: a tagged variant keyed
// by Kind ("memories", "notes", ...).
type Source struct {
	Kind  string         `json:"kind"`
	Title string         `json:"title"`
	Items []any          `json:"items"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// Context is the builder-shaped aggregate nodes assemble before Answer runs.
type Context struct {
	Sources       []Source       `json:"sources"`
	Issues        []string       `json:"issues"`
	MemoryRequest map[string]any `json:"memory_request,omitempty"`
}

// Final holds the assistant-facing output of the turn.
type Final struct {
	Answer string `json:"answer"`
}

// Identity is the world's nested identity sub-object.
type Identity struct {
	UserName        string `json:"user_name,omitempty"`
	SessionUserName string `json:"session_user_name,omitempty"`
	AgentName       string `json:"agent_name,omitempty"`
	UserLocation    string `json:"user_location,omitempty"`
}

// World is the persistent per-user document the assistant consults and
// modifies. Unknown keys round-trip via Extra: MarshalJSON/UnmarshalJSON
// merge them back in so a document written by a newer or differently
// configured build never loses fields it doesn't know about (§3/§4.6
// "unknown keys are preserved").
type World struct {
	UpdatedAt string         `json:"updated_at,omitempty"`
	TZ        string         `json:"tz,omitempty"`
	Project   string         `json:"project"`
	Topics    []string       `json:"topics"`
	Goals     []string       `json:"goals"`
	Rules     []string       `json:"rules"`
	Identity  Identity       `json:"identity"`
	Extra     map[string]any `json:"-"`
}

// worldKnownKeys names every field World.MarshalJSON writes under its own
// tag, so merging Extra back in never lets a stale unknown key shadow one of
// them.
var worldKnownKeys = map[string]bool{
	"updated_at": true,
	"tz":         true,
	"project":    true,
	"topics":     true,
	"goals":      true,
	"rules":      true,
	"identity":   true,
}

// worldAlias has World's shape without its Marshal/UnmarshalJSON methods, so
// the methods below can delegate to encoding/json's struct handling instead
// of recursing into themselves.
type worldAlias World

// MarshalJSON writes the known fields via the struct tags above, then merges
// Extra's entries into the same object.
func (w World) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(worldAlias(w))
	if err != nil {
		return nil, err
	}
	if len(w.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(w.Extra)+8)
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range w.Extra {
		if worldKnownKeys[k] {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields as usual, then stashes every other
// top-level key into Extra so a round trip through Load/Commit keeps them.
func (w *World) UnmarshalJSON(data []byte) error {
	var alias worldAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*w = World(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]any)
	for k, v := range raw {
		if worldKnownKeys[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		extra[k] = val
	}
	if len(extra) > 0 {
		w.Extra = extra
	}
	return nil
}

// State is the per-turn mapping threaded through every node. A turn owns its
// State exclusively; no other code mutates it concurrently (§3 Lifecycle).
type State struct {
	Task    Task
	Runtime Runtime
	Context Context
	Final   Final
	World   World

	// Emitter is the node-facing event handle installed by the runner before
	// the graph executes. It is never serialized.
	Emitter *emitter.Emitter
}

// New creates a State for a fresh turn with the given user text and clock
// inputs. World must already be loaded by the caller (the runner).
func New(turnID, userText, nowISO, timezone string, world World) *State {
	return &State{
		Task: Task{
			UserText: userText,
			Language: "en",
		},
		Runtime: Runtime{
			TurnID:   turnID,
			NowISO:   nowISO,
			Timezone: timezone,
		},
		World: world,
	}
}
