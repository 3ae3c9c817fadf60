// Package wiring composes providers, tools, and resources for node
// factories (C15, §4.15).
package wiring

import (
	"github.com/turnengine/engine/internal/llm"
	"github.com/turnengine/engine/internal/mcp"
	"github.com/turnengine/engine/internal/toolkit"
)

// RoleConfig binds a logical role (router, planner, reflect, answer) to a
// concrete model, generation params, and an optional forced response format.
type RoleConfig struct {
	Model          string
	Params         llm.Params
	ResponseFormat llm.ResponseFormat
}

// Deps holds everything nodes need to call the provider correctly.
type Deps struct {
	Provider     llm.Provider
	PromptDir    string
	Roles        map[string]RoleConfig
	ToolStepCap  int
}

// Services holds the toolkit and resource bundle nodes use for tool
// invocations and durable side-channels. Chat-history access goes through
// the chat_history_tail tool binding (toolkit.Resources.History), not a
// direct field here, so this struct only names what node code itself reads.
type Services struct {
	Registry  *toolkit.Registry
	Firewall  *toolkit.Firewall
	WorldPath string
	MemoryMCP *mcp.Client
}

// Role looks up a role's configuration, falling back to the zero value when
// unconfigured (callers must supply a Model in that case).
func (d *Deps) Role(name string) RoleConfig {
	return d.Roles[name]
}
