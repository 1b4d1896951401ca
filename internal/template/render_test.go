package template

import (
	"reflect"
	"testing"
)

func TestRenderPrompt(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		vars   map[string]string
		want   string
	}{
		{"empty prompt", "", map[string]string{"foo": "bar"}, ""},
		{"no vars", "Hello {{name}}", nil, "Hello {{name}}"},
		{"single", "Question: {{header}}", map[string]string{"header": "Why?"}, "Question: Why?"},
		{"repeated", "{{a}}-{{a}}", map[string]string{"a": "x"}, "x-x"},
		{"unknown left as-is", "{{a}} {{b}}", map[string]string{"a": "1"}, "1 {{b}}"},
		{"value with braces not re-expanded", "{{q}}", map[string]string{"q": `{"x":"{{a}}"}`, "a": "no"}, `{"x":"{{a}}"}`},
		{"invalid name ignored", "{{ spaced }} {{1x}}", map[string]string{"spaced": "v"}, "{{ spaced }} {{1x}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderPrompt(tt.prompt, tt.vars); got != tt.want {
				t.Errorf("RenderPrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVariables(t *testing.T) {
	got := Variables("Q: {{header}}\nB: {{content}}\n{{header}} {{research}}")
	want := []string{"header", "content", "research"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Variables() = %v, want %v", got, want)
	}
	if Variables("plain") != nil {
		t.Error("expected nil for prompt without placeholders")
	}
}
