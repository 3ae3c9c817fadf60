package nodes

import (
	"strings"
	"testing"
)

func TestCoerceTopicsDedupesCaseInsensitivelyAndCaps(t *testing.T) {
	fresh := []any{"go", "Go", "concurrency", "channels", "errors", "generics", "modules"}

	got := coerceTopics(fresh)
	if len(got) != maxTopics {
		t.Fatalf("len = %d, want %d: %v", len(got), maxTopics, got)
	}
	if got[0] != "go" {
		t.Errorf("expected first occurrence \"go\" to win and stay first, got %v", got)
	}
	seen := map[string]int{}
	for _, topic := range got {
		seen[strings.ToLower(topic)]++
	}
	if seen["go"] != 1 {
		t.Errorf("expected case-insensitive dedup, got %v", got)
	}
}

func TestCoerceTopicsIgnoresBlankEntries(t *testing.T) {
	got := coerceTopics([]any{"", "  ", "real topic", 42})
	if len(got) != 1 || got[0] != "real topic" {
		t.Fatalf("got %v", got)
	}
}

func TestCoerceTopicsReplacesWholesaleWithoutPriorTopics(t *testing.T) {
	// coerceTopics never sees or merges world.Topics directly: the model is
	// expected to have already folded PREV_TOPICS_JSON into its own answer.
	got := coerceTopics([]any{"fresh only"})
	if len(got) != 1 || got[0] != "fresh only" {
		t.Fatalf("got %v, want exactly the model's own list", got)
	}
}

func TestAsStringFallsBackOnMissingOrWrongType(t *testing.T) {
	m := map[string]any{"route": "context", "k": 5.0}
	if got := asString(m, "route", "answer"); got != "context" {
		t.Errorf("route = %q", got)
	}
	if got := asString(m, "missing", "answer"); got != "answer" {
		t.Errorf("missing = %q, want fallback", got)
	}
	if got := asString(m, "k", "fallback"); got != "fallback" {
		t.Errorf("k = %q, want fallback since it is not a string", got)
	}
}
