package types

import (
	"errors"
	"testing"
)

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   MemoryQuery
		wantErr bool
	}{
		{"empty query is valid", MemoryQuery{}, false},
		{"free text only", MemoryQuery{Query: "deploy checklist"}, false},
		{"valid type filter", MemoryQuery{MemoryType: TypeWorking}, false},
		{"unknown type", MemoryQuery{MemoryType: "procedural"}, true},
		{"negative limit", MemoryQuery{Limit: -1}, true},
		{"limit at cap", MemoryQuery{Limit: MaxQueryLimit}, false},
		{"limit above cap", MemoryQuery{Limit: MaxQueryLimit + 1}, true},
		{"session filter on working", MemoryQuery{MemoryType: TypeWorking, SessionID: "s1"}, false},
		{"session filter on factual", MemoryQuery{MemoryType: TypeFactual, SessionID: "s1"}, true},
		{"session filter on semantic", MemoryQuery{MemoryType: TypeSemantic, SessionID: "s1"}, true},
		{"empty tag", MemoryQuery{Tags: []string{"infra", ""}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected a validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected no error, got %v", err)
			}
			if err != nil && !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("Validation errors must wrap ErrInvalidQuery, got %v", err)
			}
		})
	}
}

func TestQueryEffectiveLimit(t *testing.T) {
	q := MemoryQuery{}
	if got := q.EffectiveLimit(); got != DefaultQueryLimit {
		t.Errorf("Zero limit should default to %d, got %d", DefaultQueryLimit, got)
	}
	q.Limit = 5
	if got := q.EffectiveLimit(); got != 5 {
		t.Errorf("Explicit limit should be honored, got %d", got)
	}
}

func TestQueryMatches(t *testing.T) {
	item := &MemoryItem{
		ID:         "mem:1",
		MemoryType: TypeWorking,
		SessionID:  "s1",
		Tags:       []string{"infra", "deploy"},
	}

	tests := []struct {
		name  string
		query MemoryQuery
		want  bool
	}{
		{"no filters", MemoryQuery{Query: "anything"}, true},
		{"matching type", MemoryQuery{MemoryType: TypeWorking}, true},
		{"wrong type", MemoryQuery{MemoryType: TypeFactual}, false},
		{"matching session", MemoryQuery{SessionID: "s1"}, true},
		{"wrong session", MemoryQuery{SessionID: "s2"}, false},
		{"all tags present", MemoryQuery{Tags: []string{"infra", "deploy"}}, true},
		{"missing tag", MemoryQuery{Tags: []string{"infra", "billing"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.query.Matches(item); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}
