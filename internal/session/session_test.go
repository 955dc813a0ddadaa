package session

import (
	"testing"
)

func TestContextLine(t *testing.T) {
	s := New(nil)
	s.SetContext("Date: 2026-08-31\nLocation: Seattle, WA\nEmpty:\nNoColon line here")

	tests := []struct {
		label   string
		want    string
		present bool
	}{
		{"Date", "2026-08-31", true},
		{"date", "2026-08-31", true},
		{"Location", "Seattle, WA", true},
		{"Empty", "", false},
		{"Timezone", "", false},
	}
	for _, tt := range tests {
		got, ok := s.ContextLine(tt.label)
		if ok != tt.present {
			t.Errorf("ContextLine(%q) present = %v, want %v", tt.label, ok, tt.present)
			continue
		}
		if got != tt.want {
			t.Errorf("ContextLine(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestNewSessionDefaults(t *testing.T) {
	s := New(nil)
	if s.ID == "" {
		t.Error("session has empty ID")
	}
	if s.Focus == nil {
		t.Error("session has no focus workflow")
	}
	if _, ok := s.ContextLine("anything"); ok {
		t.Error("empty context blob should match nothing")
	}
}
