package history

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndTail(t *testing.T) {
	dir := t.TempDir()
	log := New(filepath.Join(dir, "history.jsonl"))

	for i := 0; i < 3; i++ {
		if err := log.Append("human", "msg", 0); err != nil {
			t.Fatal(err)
		}
	}

	records, err := log.Tail(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestAppendTrimsToMaxTurns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	log := New(path)

	for i := 0; i < 10; i++ {
		if err := log.Append("human", "msg", 5); err != nil {
			t.Fatal(err)
		}
	}

	records, err := log.Tail(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 5 {
		t.Fatalf("got %d records after trim, want 5", len(records))
	}
}

func TestTailSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.jsonl")
	content := `{"ts":"2026-07-31T00:00:00Z","role":"human","content":"hi"}
not json at all
{"ts":"2026-07-31T00:00:01Z","role":"you","content":"hello"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	log := New(path)
	records, err := log.Tail(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestTailOnMissingFile(t *testing.T) {
	dir := t.TempDir()
	log := New(filepath.Join(dir, "missing.jsonl"))
	records, err := log.Tail(5)
	if err != nil {
		t.Fatal(err)
	}
	if records != nil {
		t.Errorf("expected nil, got %v", records)
	}
}
