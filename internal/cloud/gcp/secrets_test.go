package gcp

import (
	"context"
	"testing"

	"github.com/andywolf/wikiagent/internal/config"
)

func TestNormalizeSecretPath(t *testing.T) {
	client := &SecretManagerClient{projectID: "wiki-prod"}

	tests := []struct {
		name       string
		secretPath string
		want       string
	}{
		{
			name:       "full path with version",
			secretPath: "projects/other/secrets/mkt-token/versions/3",
			want:       "projects/other/secrets/mkt-token/versions/3",
		},
		{
			name:       "full path without version",
			secretPath: "projects/other/secrets/mkt-token",
			want:       "projects/other/secrets/mkt-token/versions/latest",
		},
		{
			name:       "secret name only",
			secretPath: "mkt-token",
			want:       "projects/wiki-prod/secrets/mkt-token/versions/latest",
		},
		{
			name:       "secret name with version",
			secretPath: "mkt-token@7",
			want:       "projects/wiki-prod/secrets/mkt-token/versions/7",
		},
		{
			name:       "secret name with empty version",
			secretPath: "mkt-token@",
			want:       "projects/wiki-prod/secrets/mkt-token@/versions/latest",
		},
		{
			name:       "secret name with path prefix",
			secretPath: "team/planner-key",
			want:       "projects/wiki-prod/secrets/planner-key/versions/latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.normalizeSecretPath(tt.secretPath); got != tt.want {
				t.Errorf("normalizeSecretPath(%q) = %q, want %q", tt.secretPath, got, tt.want)
			}
		})
	}
}

func TestGetProjectID_FromEnv(t *testing.T) {
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("GCP_PROJECT", "wiki-staging")
	t.Setenv("GCLOUD_PROJECT", "ignored")

	got, err := getProjectID(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "wiki-staging" {
		t.Errorf("getProjectID() = %q, want wiki-staging", got)
	}
}

func TestSecretManagerClient_SatisfiesConfigFetcher(t *testing.T) {
	var _ config.SecretFetcher = (*SecretManagerClient)(nil)
	var _ SecretFetcher = (*SecretManagerClient)(nil)
}

func TestSecretManagerClient_Close_Nil(t *testing.T) {
	client := &SecretManagerClient{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() with nil client returned error: %v", err)
	}
}
