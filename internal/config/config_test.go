package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	v := viper.New()
	v.Set("agent.name", "Ada Lovelace")
	v.Set("marketplace.access_token", "tok")
	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	return *cfg
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg := validConfig(t)

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Loop.Interval != 30*time.Second {
		t.Errorf("interval = %v", cfg.Loop.Interval)
	}
	if cfg.Loop.MaxNewPerLoop != 3 || cfg.Loop.MaxQuestions != 8 {
		t.Errorf("loop caps = %d/%d", cfg.Loop.MaxNewPerLoop, cfg.Loop.MaxQuestions)
	}
	if cfg.Loop.ScanProbability != 0.75 {
		t.Errorf("scan probability = %v", cfg.Loop.ScanProbability)
	}
	if cfg.Policy.MinConfidence != 0.62 || cfg.Policy.MinROI != 0.08 {
		t.Errorf("gates = %v/%v", cfg.Policy.MinConfidence, cfg.Policy.MinROI)
	}
	if !cfg.Policy.AbstainCountsAsLoss {
		t.Error("abstain should count as loss by default")
	}
	if cfg.Policy.Salt != "ada-lovelace" {
		t.Errorf("salt = %q", cfg.Policy.Salt)
	}
	if cfg.Memory.Path != ".wikiagent/ada-lovelace.memory.json" {
		t.Errorf("memory path = %q", cfg.Memory.Path)
	}
}

func TestLoadFrom_InterestsCommaSeparated(t *testing.T) {
	v := viper.New()
	v.Set("policy.interests", []string{"rust, go", "chess"})
	cfg, err := LoadFrom(v)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(cfg.Policy.Interests, "|"); got != "rust|go|chess" {
		t.Errorf("interests = %q", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"bad mode", func(c *Config) { c.Agent.Mode = "poll" }, "invalid agent mode"},
		{"missing token", func(c *Config) { c.Marketplace.AccessToken = "" }, "access token is required"},
		{"scan probability", func(c *Config) { c.Loop.ScanProbability = 1.5 }, "scan_probability"},
		{"on error", func(c *Config) { c.Loop.OnError = "explode" }, "invalid loop on_error"},
		{"min confidence", func(c *Config) { c.Policy.MinConfidence = -0.1 }, "min_confidence"},
		{"gemini key", func(c *Config) { c.Planner.Provider = ProviderGemini }, "api_key is required"},
		{"fixed response", func(c *Config) { c.Planner.Provider = ProviderFixed }, "fixed_response is required"},
		{"reaction mode", func(c *Config) { c.Policy.Reactions.Mode = "sometimes" }, "invalid reactions mode"},
		{"redis url", func(c *Config) { c.Memory.Backend = "redis" }, "redis_url is required"},
		{"otlp endpoint", func(c *Config) { c.Tracing.OTel.Exporter = "otlp" }, "endpoint is required"},
		{"backend", func(c *Config) { c.Memory.Backend = "s3" }, "invalid memory backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Ada Lovelace": "ada-lovelace",
		"  --X__y!! ":  "x-y",
		"":             "agent",
		"agent-07":     "agent-07",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeFetcher struct {
	values map[string]string
	err    error
}

func (f fakeFetcher) FetchSecret(_ context.Context, path string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.values[path], nil
}

func TestResolveSecrets(t *testing.T) {
	cfg := validConfig(t)
	cfg.Marketplace.AccessToken = ""
	cfg.Marketplace.AccessTokenSecret = "agent-token"
	cfg.Planner.APIKeySecret = "planner-key"

	if !cfg.NeedsSecrets() {
		t.Fatal("expected NeedsSecrets")
	}

	resolved, err := cfg.ResolveSecrets(context.Background(), fakeFetcher{values: map[string]string{
		"agent-token": "secret-token\n",
		"planner-key": "pk",
	}})
	if err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	if resolved.Marketplace.AccessToken != "secret-token" || resolved.Planner.APIKey != "pk" {
		t.Errorf("resolved = %+v / %+v", resolved.Marketplace, resolved.Planner)
	}
	if cfg.Marketplace.AccessToken != "" {
		t.Error("original config must not be mutated")
	}

	_, err = cfg.ResolveSecrets(context.Background(), fakeFetcher{err: errors.New("denied")})
	if err == nil || !strings.Contains(err.Error(), "marketplace access token") {
		t.Errorf("expected wrapped fetch error, got %v", err)
	}
}
