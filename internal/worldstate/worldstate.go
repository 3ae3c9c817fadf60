// Package worldstate implements the World-State Store (§4.6): a small JSON
// document loaded once per turn and atomically replaced on commit, plus
// allowlisted op application for the world_apply_ops tool.
package worldstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/turnengine/engine/internal/state"
)

// ErrOpInvalid is the sentinel behind WORLD_OP_INVALID.
var ErrOpInvalid = errors.New("WORLD_OP_INVALID")

// Op is one mutation in a world_apply_ops call (§4.6).
type Op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// allowedPaths are the only mutable locations in the world document.
var allowedPaths = map[string]bool{
	"/project":              true,
	"/identity/user_location": true,
	"/identity/user_name":     true,
	"/identity/agent_name":    true,
	"/rules":                  true,
	"/goals":                  true,
}

// Default returns a freshly initialized world document.
func Default(nowISO, tz string) state.World {
	return state.World{
		UpdatedAt: nowISO,
		TZ:        tz,
		Topics:    []string{},
		Goals:     []string{},
		Rules:     []string{},
	}
}

// Load reads the world document at path. If the file is missing, it is
// created with defaults. If it exists but fails to parse, it is overwritten
// with defaults and those defaults are returned. On success, updated_at is
// set when nowISO is non-empty and tz is filled in if absent (§4.6).
func Load(path, nowISO, tz string) (state.World, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		w := Default(nowISO, tz)
		if werr := Commit(path, w); werr != nil {
			return w, werr
		}
		return w, nil
	}
	if err != nil {
		return state.World{}, fmt.Errorf("read world state: %w", err)
	}

	var w state.World
	if err := json.Unmarshal(data, &w); err != nil {
		w = Default(nowISO, tz)
		if werr := Commit(path, w); werr != nil {
			return w, werr
		}
		return w, nil
	}

	if nowISO != "" {
		w.UpdatedAt = nowISO
	}
	if w.TZ == "" {
		w.TZ = tz
	}
	return w, nil
}

// Commit serializes world with 2-space indent and a trailing newline to a
// sibling temp file, then atomically replaces path.
func Commit(path string, world state.World) error {
	data, err := json.MarshalIndent(world, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal world state: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure world state dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp world state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace world state: %w", err)
	}
	return nil
}

// ApplyOps applies ops to a copy of world, returning the mutated copy. Only
// allowedPaths may be touched; any other path, or a type mismatch against
// the target container, fails with ErrOpInvalid and leaves world untouched.
func ApplyOps(world state.World, ops []Op) (state.World, error) {
	next := world
	next.Rules = append([]string(nil), world.Rules...)
	next.Goals = append([]string(nil), world.Goals...)

	for _, op := range ops {
		if !allowedPaths[op.Path] {
			return world, fmt.Errorf("%w: path %q is not allowlisted", ErrOpInvalid, op.Path)
		}

		switch op.Path {
		case "/project":
			if err := applyScalar(op, &next.Project); err != nil {
				return world, err
			}
		case "/identity/user_location":
			if err := applyScalar(op, &next.Identity.UserLocation); err != nil {
				return world, err
			}
		case "/identity/user_name":
			if err := applyScalar(op, &next.Identity.UserName); err != nil {
				return world, err
			}
		case "/identity/agent_name":
			if err := applyScalar(op, &next.Identity.AgentName); err != nil {
				return world, err
			}
		case "/rules":
			list, err := applyList(op, next.Rules)
			if err != nil {
				return world, err
			}
			next.Rules = list
		case "/goals":
			list, err := applyList(op, next.Goals)
			if err != nil {
				return world, err
			}
			next.Goals = list
		}
	}
	return next, nil
}

func applyScalar(op Op, target *string) error {
	switch op.Op {
	case "set":
		s, ok := op.Value.(string)
		if !ok {
			return fmt.Errorf("%w: value for %q must be a string", ErrOpInvalid, op.Path)
		}
		*target = s
		return nil
	default:
		return fmt.Errorf("%w: op %q not supported on scalar path %q", ErrOpInvalid, op.Op, op.Path)
	}
}

// applyList implements add/remove list semantics. add is idempotent (no
// duplicate occurrences); remove drops the first matching value. set
// replaces the whole list from a []any value.
func applyList(op Op, list []string) ([]string, error) {
	switch op.Op {
	case "set":
		arr, ok := op.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: value for %q must be a list", ErrOpInvalid, op.Path)
		}
		out := make([]string, 0, len(arr))
		for _, v := range arr {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: list value for %q must be strings", ErrOpInvalid, op.Path)
			}
			out = append(out, s)
		}
		return out, nil
	case "add":
		s, ok := op.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: value for %q must be a string", ErrOpInvalid, op.Path)
		}
		for _, existing := range list {
			if existing == s {
				return list, nil
			}
		}
		return append(append([]string(nil), list...), s), nil
	case "remove":
		s, ok := op.Value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: value for %q must be a string", ErrOpInvalid, op.Path)
		}
		out := make([]string, 0, len(list))
		removed := false
		for _, existing := range list {
			if !removed && existing == s {
				removed = true
				continue
			}
			out = append(out, existing)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrOpInvalid, op.Op)
	}
}

// Diff computes {k: after[k] | before[k] != after[k]} between two world
// snapshots, encoded as generic maps for the world_commit event.
func Diff(before, after state.World) map[string]any {
	delta := map[string]any{}
	bm := ToMap(before)
	am := ToMap(after)
	for k, av := range am {
		bv, ok := bm[k]
		if !ok || fmt.Sprint(bv) != fmt.Sprint(av) {
			delta[k] = av
		}
	}
	return delta
}

// ToMap renders a world snapshot as a generic map, for event payloads that
// carry world_before/world_after verbatim (§3).
func ToMap(w state.World) map[string]any {
	data, _ := json.Marshal(w)
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return m
}
