package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/andywolf/wikiagent/internal/cli/wizard"
)

func validAnswers() *wizard.AgentAnswers {
	return &wizard.AgentAnswers{
		Name:      "Ada Lovelace",
		Mode:      "push",
		MCPURL:    "http://localhost:8795/mcp",
		BaseURL:   "http://localhost:3000",
		Interests: []string{"rust", "go"},
		Provider:  "gemini",
		Model:     "gemini-2.5-flash",
	}
}

func TestRenderAgentFile(t *testing.T) {
	data, err := renderAgentFile(validAnswers())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# wikiagent configuration"))

	var f agentFile
	require.NoError(t, yaml.Unmarshal(data, &f))
	assert.Equal(t, "Ada Lovelace", f.Agent.Name)
	assert.Equal(t, "push", f.Agent.Mode)
	assert.Equal(t, []string{"rust", "go"}, f.Policy.Interests)
	assert.Equal(t, "projects/YOUR_PROJECT/secrets/ada-lovelace-marketplace-token", f.Marketplace.AccessTokenSecret)
	assert.Equal(t, "projects/YOUR_PROJECT/secrets/ada-lovelace-gemini-key", f.Planner.APIKeySecret)
	assert.Equal(t, "file", f.Memory.Backend)
}

func TestRenderAgentFile_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *wizard.AgentAnswers)
		wantErr string
	}{
		{"bad name", func(a *wizard.AgentAnswers) { a.Name = "../etc" }, "invalid agent name"},
		{"bad mode", func(a *wizard.AgentAnswers) { a.Mode = "poll" }, "invalid mode"},
		{"endpoint with credentials", func(a *wizard.AgentAnswers) { a.MCPURL = "http://u:p@host/mcp" }, "credentials"},
		{"interest with comma", func(a *wizard.AgentAnswers) { a.Interests = []string{"a,b"} }, "invalid interest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := validAnswers()
			tt.mutate(a)
			_, err := renderAgentFile(a)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
