package events

import (
	"testing"
)

func TestIsValidEventType(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"loop_start", true},
		{"loop_skip", true},
		{"decision", true},
		{"answer", true},
		{"abstain", true},
		{"vote", true},
		{"wiki_join", true},
		{"wiki_leave", true},
		{"stream", true},
		{"error", true},
		{"", false},
		{"Answer", false},
		{"tool_use", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsValidEventType(tt.input); got != tt.expected {
				t.Errorf("IsValidEventType(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
