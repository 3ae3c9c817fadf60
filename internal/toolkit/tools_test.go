package toolkit

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/turnengine/engine/internal/history"
)

func newTestResources(t *testing.T) *Resources {
	t.Helper()
	dir := t.TempDir()
	return &Resources{
		History:   history.New(filepath.Join(dir, "history.jsonl")),
		WorldPath: filepath.Join(dir, "world.json"),
		NowISO:    "2026-07-31T00:00:00Z",
		TZ:        "UTC",
	}
}

func TestChatHistoryTailClampsLimit(t *testing.T) {
	res := newTestResources(t)
	for i := 0; i < 3; i++ {
		if err := res.History.Append("human", "hi", 0); err != nil {
			t.Fatal(err)
		}
	}

	out, err := res.chatHistoryTail(context.Background(), json.RawMessage(`{"limit":999999}`))
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatal(err)
	}
	if int(parsed["limit"].(float64)) != HardMaxChatHistoryLimit {
		t.Errorf("limit = %v, want %d", parsed["limit"], HardMaxChatHistoryLimit)
	}
	if int(parsed["returned"].(float64)) != 3 {
		t.Errorf("returned = %v, want 3", parsed["returned"])
	}
}

func TestWorldApplyOpsSetsAndPersists(t *testing.T) {
	res := newTestResources(t)
	out, err := res.worldApplyOps(context.Background(), json.RawMessage(`{"ops":[{"op":"set","path":"/project","value":"atlas"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["ok"] != true {
		t.Fatalf("expected ok:true, got %v", parsed)
	}
	world := parsed["world"].(map[string]any)
	if world["project"] != "atlas" {
		t.Errorf("project = %v, want atlas", world["project"])
	}
}

func TestWorldApplyOpsRejectsDisallowedPath(t *testing.T) {
	res := newTestResources(t)
	out, err := res.worldApplyOps(context.Background(), json.RawMessage(`{"ops":[{"op":"set","path":"/tz","value":"PST"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["ok"] != false {
		t.Fatalf("expected ok:false for disallowed path, got %v", parsed)
	}
}

func TestMemoryQueryWithoutClientReturnsNote(t *testing.T) {
	res := newTestResources(t)
	out, err := res.memoryQuery(context.Background(), json.RawMessage(`{"query":"x","k":5}`))
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["ok"] != false {
		t.Fatalf("expected ok:false without a client, got %v", parsed)
	}
}

func TestFirewallRestrictsToolsByNode(t *testing.T) {
	reg := NewRegistry()
	RegisterCoreTools(reg, newTestResources(t))
	fw := NewFirewall(reg, DefaultSkills(), DefaultPolicy(), []string{SkillCoreWorld, SkillMCPMemoryR})

	worldTools := fw.Toolset("world_modifier")
	if len(worldTools) != 1 || worldTools[0].Name != ToolWorldApplyOps {
		t.Fatalf("world_modifier toolset = %+v", worldTools)
	}

	// memory_writer requires SkillMCPMemoryW, which is not enabled.
	writerTools := fw.Toolset("memory_writer")
	if len(writerTools) != 0 {
		t.Fatalf("memory_writer toolset = %+v, want empty (skill not enabled)", writerTools)
	}

	if !fw.IsAllowed("memory_retriever", ToolMemoryQuery) {
		t.Error("expected memory_retriever to be allowed memory_query")
	}
	if fw.IsAllowed("memory_retriever", ToolWorldApplyOps) {
		t.Error("expected memory_retriever to be denied world_apply_ops")
	}
}
