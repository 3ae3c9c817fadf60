package models

import (
	"encoding/json"
	"testing"
)

func TestMemoryQueryType_Constants(t *testing.T) {
	tests := []struct {
		constant MemoryQueryType
		expected string
	}{
		{MemoryQueryContextual, "contextual"},
		{MemoryQueryFactual, "factual"},
		{MemoryQueryUnified, "unified"},
	}
	for _, tt := range tests {
		if string(tt.constant) != tt.expected {
			t.Errorf("got %q, want %q", tt.constant, tt.expected)
		}
	}
}

func TestMemoryStoreType_Constants(t *testing.T) {
	tests := []struct {
		constant MemoryStoreType
		expected string
	}{
		{MemoryStoreContextual, "contextual"},
		{MemoryStoreFactual, "factual"},
		{MemoryStoreBoth, "both"},
	}
	for _, tt := range tests {
		if string(tt.constant) != tt.expected {
			t.Errorf("got %q, want %q", tt.constant, tt.expected)
		}
	}
}

func TestMemoryQueryResult_JSONRoundTrip(t *testing.T) {
	result := MemoryQueryResult{
		OK: true,
		Items: []MemoryItem{
			{ID: "m-1", Content: "Gobabis trip notes", Salience: 0.8},
		},
		Returned: 1,
		K:        5,
		UserID:   "u-1",
	}

	b, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got MemoryQueryResult
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Returned != 1 || len(got.Items) != 1 || got.Items[0].ID != "m-1" {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestMemoryStoreResult_JSONRoundTrip(t *testing.T) {
	result := MemoryStoreResult{OK: true, Stored: 2, Summary: "stored 2 facts"}
	b, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got MemoryStoreResult
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Stored != 2 {
		t.Errorf("got Stored=%d, want 2", got.Stored)
	}
}

func TestMemoryQueryRequest_JSONRoundTrip(t *testing.T) {
	minSalience := 0.3
	req := MemoryQueryRequest{
		Query:       "what did we say about Gobabis",
		Type:        MemoryQueryUnified,
		K:           5,
		MinSalience: &minSalience,
		UserID:      "u-1",
	}
	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got MemoryQueryRequest
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.K != 5 || got.Type != MemoryQueryUnified || got.MinSalience == nil || *got.MinSalience != 0.3 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}
