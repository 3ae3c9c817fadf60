package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turnengine/engine/internal/history"
	"github.com/turnengine/engine/internal/mcp"
	"github.com/turnengine/engine/internal/worldstate"
)

// HardMaxChatHistoryLimit clamps chat_history_tail's limit argument.
const HardMaxChatHistoryLimit = 200

// Skill names used by the node→skill policy (§4.11).
const (
	SkillCoreContext  = "core_context"
	SkillCoreWorld    = "core_world"
	SkillMCPMemoryR   = "mcp_memory_read"
	SkillMCPMemoryW   = "mcp_memory_write"
)

// Tool names from §4.5.
const (
	ToolChatHistoryTail = "chat_history_tail"
	ToolWorldApplyOps   = "world_apply_ops"
	ToolMemoryQuery     = "memory_query"
	ToolMemoryStore     = "memory_store"
)

// Resources bundles the durable side-channels the fixed tool bindings close
// over: chat-history, world-state path, and the memory MCP client.
type Resources struct {
	History       *history.Log
	WorldPath     string
	MemoryClient  *mcp.Client
	MemoryServer  string
	NowISO        string
	TZ            string
}

// RegisterCoreTools registers the four fixed tool bindings from §4.5 on reg,
// closing over res. Each Def's ParametersSchema is reflected from its
// argument struct at construction time (§4.18), so the schema exposed to the
// model and the Go-typed binding can never drift apart.
func RegisterCoreTools(reg *Registry, res *Resources) {
	reg.Register(Def{
		Name:             ToolChatHistoryTail,
		Description:      "Return the most recent chat-history turns.",
		ParametersSchema: GenerateSchema(chatHistoryTailArgs{}),
	}, res.chatHistoryTail)

	reg.Register(Def{
		Name:             ToolWorldApplyOps,
		Description:      "Apply a set of allowlisted mutations to the world-state document.",
		ParametersSchema: GenerateSchema(worldApplyOpsArgs{}),
	}, res.worldApplyOps)

	reg.Register(Def{
		Name:             ToolMemoryQuery,
		Description:      "Query the external memory service.",
		ParametersSchema: GenerateSchema(memoryQueryArgs{}),
	}, res.memoryQuery)

	reg.Register(Def{
		Name:             ToolMemoryStore,
		Description:      "Store content and facts into the external memory service.",
		ParametersSchema: GenerateSchema(memoryStoreArgs{}),
	}, res.memoryStore)
}

// DefaultSkills groups the fixed tools into the skills named in §4.11.
func DefaultSkills() []Skill {
	return []Skill{
		NewSkill(SkillCoreContext, ToolChatHistoryTail),
		NewSkill(SkillCoreWorld, ToolWorldApplyOps),
		NewSkill(SkillMCPMemoryR, ToolMemoryQuery),
		NewSkill(SkillMCPMemoryW, ToolMemoryStore),
	}
}

// DefaultPolicy maps each node that uses tools to its allowed skills (§4.11).
func DefaultPolicy() Policy {
	return NewPolicy(map[string][]string{
		"context_builder": {SkillCoreContext, SkillMCPMemoryR},
		"memory_retriever": {SkillMCPMemoryR},
		"world_modifier":   {SkillCoreWorld},
		"memory_writer":    {SkillMCPMemoryW},
	})
}

type chatHistoryTailArgs struct {
	Limit int `json:"limit"`
}

func (res *Resources) chatHistoryTail(ctx context.Context, args json.RawMessage) (string, error) {
	var a chatHistoryTailArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return "", fmt.Errorf("chat_history_tail: invalid arguments: %w", err)
		}
	}
	limit := a.Limit
	if limit < 0 {
		limit = 0
	}
	if limit > HardMaxChatHistoryLimit {
		limit = HardMaxChatHistoryLimit
	}

	records, err := res.History.Tail(limit)
	if err != nil {
		return "", fmt.Errorf("chat_history_tail: %w", err)
	}

	turns := make([]map[string]string, 0, len(records))
	for _, r := range records {
		turns = append(turns, map[string]string{"role": r.Role, "content": r.Content, "ts": r.TS})
	}
	out, err := json.Marshal(map[string]any{
		"turns":    turns,
		"limit":    limit,
		"returned": len(turns),
	})
	return string(out), err
}

type worldApplyOpsArgs struct {
	Ops []worldstate.Op `json:"ops"`
}

func (res *Resources) worldApplyOps(ctx context.Context, args json.RawMessage) (string, error) {
	var a worldApplyOpsArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return jsonErrorResult(false, nil), nil
	}

	world, err := worldstate.Load(res.WorldPath, res.NowISO, res.TZ)
	if err != nil {
		return jsonErrorResult(false, nil), nil
	}

	next, err := worldstate.ApplyOps(world, a.Ops)
	if err != nil {
		return jsonErrorResult(false, nil), nil
	}

	if err := worldstate.Commit(res.WorldPath, next); err != nil {
		return jsonErrorResult(false, nil), nil
	}

	out, err := json.Marshal(map[string]any{"ok": true, "world": next})
	return string(out), err
}

func jsonErrorResult(ok bool, extra map[string]any) string {
	m := map[string]any{"ok": ok}
	for k, v := range extra {
		m[k] = v
	}
	out, _ := json.Marshal(m)
	return string(out)
}

type memoryQueryArgs struct {
	Query       string   `json:"query"`
	Type        string   `json:"type"`
	K           int      `json:"k"`
	Sector      string   `json:"sector,omitempty"`
	MinSalience *float64 `json:"min_salience,omitempty"`
	At          string   `json:"at,omitempty"`
	FactPattern string   `json:"fact_pattern,omitempty"`
	UserID      string   `json:"user_id,omitempty"`
}

func (res *Resources) memoryQuery(ctx context.Context, args json.RawMessage) (string, error) {
	var a memoryQueryArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("memory_query: invalid arguments: %w", err)
	}
	if a.K < 1 {
		a.K = 1
	}
	if a.K > 16 {
		a.K = 16
	}

	if res.MemoryClient == nil {
		out, _ := json.Marshal(map[string]any{
			"ok": false, "items": []any{}, "returned": 0, "k": a.K,
			"user_id": a.UserID, "note": "memory service not configured",
		})
		return string(out), nil
	}

	result, err := res.MemoryClient.CallTool(ctx, ToolMemoryQuery, map[string]any{
		"query": a.Query, "type": a.Type, "k": a.K,
		"sector": a.Sector, "min_salience": a.MinSalience, "at": a.At,
		"fact_pattern": a.FactPattern, "user_id": a.UserID,
	})
	if err != nil {
		return "", fmt.Errorf("memory_query: %w", err)
	}

	items := extractItems(result)
	out, err := json.Marshal(map[string]any{
		"ok": true, "items": items, "returned": len(items), "k": a.K, "user_id": a.UserID,
	})
	return string(out), err
}

type memoryStoreArgs struct {
	Content  string         `json:"content"`
	Type     string         `json:"type"`
	Facts    []string       `json:"facts,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
}

func (res *Resources) memoryStore(ctx context.Context, args json.RawMessage) (string, error) {
	var a memoryStoreArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("memory_store: invalid arguments: %w", err)
	}

	if res.MemoryClient == nil {
		out, _ := json.Marshal(map[string]any{
			"ok": false, "stored": 0, "user_id": a.UserID, "summary": "memory service not configured",
		})
		return string(out), nil
	}

	_, err := res.MemoryClient.CallTool(ctx, ToolMemoryStore, map[string]any{
		"content": a.Content, "type": a.Type, "facts": a.Facts,
		"tags": a.Tags, "metadata": a.Metadata, "user_id": a.UserID,
	})
	if err != nil {
		return "", fmt.Errorf("memory_store: %w", err)
	}

	out, err := json.Marshal(map[string]any{
		"ok": true, "stored": 1, "user_id": a.UserID, "summary": "stored",
	})
	return string(out), err
}

// extractItems surfaces the structured content of an MCP tool result.
// Responses with a text content entry that parses as {"items":[...]} expose
// those items; otherwise the raw text is returned as a single item (§4.4,
// §9 "MCP tool-result shape").
func extractItems(result *mcp.ToolCallResult) []any {
	if result == nil {
		return nil
	}
	for _, c := range result.Content {
		if c.Type != "text" || c.Text == "" {
			continue
		}
		var parsed struct {
			Items []any `json:"items"`
		}
		if err := json.Unmarshal([]byte(c.Text), &parsed); err == nil && parsed.Items != nil {
			return parsed.Items
		}
	}
	var items []any
	for _, c := range result.Content {
		if c.Type == "text" && c.Text != "" {
			items = append(items, c.Text)
		}
	}
	return items
}
