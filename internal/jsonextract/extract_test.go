package jsonextract

import (
	"encoding/json"
	"testing"
)

func TestExtractWholeStringRoundTrip(t *testing.T) {
	obj := map[string]any{"route": "answer", "language": "en"}
	b, err := json.Marshal(obj)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Extract(string(b))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["route"] != "answer" || got["language"] != "en" {
		t.Errorf("got %+v", got)
	}
}

func TestExtractRecoversFromNoise(t *testing.T) {
	s := `blah blah {"route":"world","language":"en"} trailing text`
	got, err := Extract(s)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["route"] != "world" {
		t.Errorf("route = %v, want world", got["route"])
	}
}

func TestExtractHandlesNestedBracesAndStrings(t *testing.T) {
	s := `noise {"a":{"b":1},"s":"contains } and { chars"} more`
	got, err := Extract(s)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got["s"] != "contains } and { chars" {
		t.Errorf("s = %v", got["s"])
	}
}

func TestExtractNotFound(t *testing.T) {
	_, err := Extract("no object here")
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExtractParseError(t *testing.T) {
	_, err := Extract(`prefix {"a": } suffix`)
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("err = %v (%T), want *ParseError", err, err)
	}
}

func TestExtractRejectsArrayRoot(t *testing.T) {
	_, err := Extract(`[1,2,3]`)
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound for array root", err)
	}
}
