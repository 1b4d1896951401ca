package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferTopics(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		content string
		want    []string
	}{
		{"none", "Best pasta recipe?", "with garlic", []string{"general"}},
		{"single", "Which Bitcoin wallet?", "", []string{"crypto"}},
		{"case insensitive", "NBA PLAYOFFS", "", []string{"sports"}},
		{"multiple in fixed order", "Python script for my Steam library", "", []string{"gaming", "programming"}},
		{"content counts", "Help", "a novel about physics", []string{"books", "science"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferTopics(tt.header, tt.content))
		})
	}
}
