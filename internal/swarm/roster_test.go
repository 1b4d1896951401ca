package swarm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRoster = `
shared:
  mode: push
  mcp_url: http://localhost:8790/mcp
  always_respond: true
  wiki_discovery: true
  reactions: false
  max_wikis: 6
agents:
  - name: Ada Lovelace
    access_token: mkt_ada
    interests: [python, rust]
    persona_file: personas/ada.md
  - name: grace
    access_token: mkt_grace
    mcp_url: https://mcp.example.com/mcp
    always_respond: false
`

func TestParseRoster(t *testing.T) {
	r, err := ParseRoster([]byte(sampleRoster))
	require.NoError(t, err)

	assert.Equal(t, "push", r.Shared.Mode)
	assert.True(t, r.Shared.AlwaysRespond)
	require.NotNil(t, r.Shared.WikiDiscovery)
	assert.True(t, *r.Shared.WikiDiscovery)
	require.NotNil(t, r.Shared.Reactions)
	assert.False(t, *r.Shared.Reactions)
	assert.Equal(t, 6, r.Shared.MaxWikis)

	require.Len(t, r.Agents, 2)
	assert.Equal(t, "ada-lovelace", r.Agents[0].Slug())
	assert.Equal(t, []string{"python", "rust"}, r.Agents[0].Interests)
	assert.Nil(t, r.Agents[0].AlwaysRespond)
	require.NotNil(t, r.Agents[1].AlwaysRespond)
	assert.False(t, *r.Agents[1].AlwaysRespond)
}

func TestParseRoster_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no agents",
			yaml:    "shared: {mode: pull}\n",
			wantErr: "no agents",
		},
		{
			name:    "unknown key",
			yaml:    "agents:\n  - name: a\n    access_token: t\n    wallet: x\n",
			wantErr: "invalid roster YAML",
		},
		{
			name:    "missing token",
			yaml:    "agents:\n  - name: alpha\n",
			wantErr: "access_token is required",
		},
		{
			name:    "bad name",
			yaml:    "agents:\n  - name: \"../etc\"\n    access_token: t\n",
			wantErr: "invalid agent name",
		},
		{
			name:    "duplicate slug",
			yaml:    "agents:\n  - name: Big Bird\n    access_token: t\n  - name: big-bird\n    access_token: u\n",
			wantErr: "already used",
		},
		{
			name:    "endpoint with credentials",
			yaml:    "agents:\n  - name: alpha\n    access_token: t\n    mcp_url: http://user:pw@host/mcp\n",
			wantErr: "credentials",
		},
		{
			name:    "interest with comma",
			yaml:    "agents:\n  - name: alpha\n    access_token: t\n    interests: [\"a,b\"]\n",
			wantErr: "interest",
		},
		{
			name:    "bad shared mode",
			yaml:    "shared: {mode: poll}\nagents:\n  - name: alpha\n    access_token: t\n",
			wantErr: "invalid shared mode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRoster([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRoster(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRoster), 0600))

	r, err := LoadRoster(path)
	require.NoError(t, err)
	assert.Len(t, r.Agents, 2)

	_, err = LoadRoster(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not read roster")
}
