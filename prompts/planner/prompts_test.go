package planner

import (
	"strings"
	"testing"
)

func TestGet_AllPromptsEmbedded(t *testing.T) {
	for _, name := range Names() {
		if strings.TrimSpace(Get(name)) == "" {
			t.Errorf("prompt %s is empty", name)
		}
	}
	if Get("unknown") != "" {
		t.Error("unknown prompt should be empty")
	}
}

func TestDecideUser_HasPlaceholders(t *testing.T) {
	p := Get(DecideUser)
	for _, v := range []string{"{{question}}", "{{context}}", "researchNeeded"} {
		if !strings.Contains(p, v) {
			t.Errorf("decide prompt missing %s", v)
		}
	}
}
