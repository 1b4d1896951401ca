// Package config loads the agent's configuration. A Config is built once at
// startup, validated, and then passed by value; nothing reads settings ad hoc
// after that.
package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full agent configuration.
type Config struct {
	Agent       AgentConfig       `mapstructure:"agent"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Planner     PlannerConfig     `mapstructure:"planner"`
	Policy      PolicyConfig      `mapstructure:"policy"`
	Loop        LoopConfig        `mapstructure:"loop"`
	Memory      MemoryConfig      `mapstructure:"memory"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Cloud       CloudConfig       `mapstructure:"cloud"`
}

// AgentConfig identifies the agent and selects its ingestion mode.
type AgentConfig struct {
	Name            string `mapstructure:"name"`
	Mode            string `mapstructure:"mode"` // pull or push
	PersonaFile     string `mapstructure:"persona_file"`
	StartupBackfill bool   `mapstructure:"startup_backfill"`
	StatusAddr      string `mapstructure:"status_addr"`
}

// MarketplaceConfig points at the marketplace's tool and HTTP surfaces.
type MarketplaceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	MCPURL            string        `mapstructure:"mcp_url"`
	AccessToken       string        `mapstructure:"access_token"`
	AccessTokenSecret string        `mapstructure:"access_token_secret"`
	Funded            bool          `mapstructure:"funded"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
}

// PlannerConfig selects the inference backend.
type PlannerConfig struct {
	Provider      string        `mapstructure:"provider"` // openai, gemini, fixed
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	APIKey        string        `mapstructure:"api_key"`
	APIKeySecret  string        `mapstructure:"api_key_secret"`
	FixedResponse string        `mapstructure:"fixed_response"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// PolicyConfig holds every decision threshold.
type PolicyConfig struct {
	Salt                string         `mapstructure:"salt"`
	Interests           []string       `mapstructure:"interests"`
	AlwaysRespond       bool           `mapstructure:"always_respond"`
	InterestThreshold   int            `mapstructure:"interest_threshold"`
	DefaultThreshold    int            `mapstructure:"default_threshold"`
	MinConfidence       float64        `mapstructure:"min_confidence"`
	MinROI              float64        `mapstructure:"min_roi"`
	DefaultBidCents     int            `mapstructure:"default_bid_cents"`
	AbstainCountsAsLoss bool           `mapstructure:"abstain_counts_as_loss"`
	Research            bool           `mapstructure:"research"`
	Reactions           ReactionConfig `mapstructure:"reactions"`
	Wiki                WikiConfig     `mapstructure:"wiki"`
}

// ReactionConfig controls voting on other participants' content.
type ReactionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Mode    string `mapstructure:"mode"`
	Posts   bool   `mapstructure:"posts"`
	Answers bool   `mapstructure:"answers"`
}

// WikiConfig controls wiki discovery and membership.
type WikiConfig struct {
	Discovery        bool   `mapstructure:"discovery"`
	MaxSubscriptions int    `mapstructure:"max_subscriptions"`
	MinRelevance     int    `mapstructure:"min_relevance"`
	JoinThreshold    int    `mapstructure:"join_threshold"`
	LeaveThreshold   int    `mapstructure:"leave_threshold"`
	Home             string `mapstructure:"home"`
	AllowLeaveHome   bool   `mapstructure:"allow_leave_home"`
}

// LoopConfig controls the pull scheduler.
type LoopConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	MaxQuestions    int           `mapstructure:"max_questions"`
	MaxNewPerLoop   int           `mapstructure:"max_new_per_loop"`
	ScanProbability float64       `mapstructure:"scan_probability"`
	OnError         string        `mapstructure:"on_error"` // isolate or abort
}

// MemoryConfig selects where memory snapshots live.
type MemoryConfig struct {
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	RedisURL string `mapstructure:"redis_url"`
	Key      string `mapstructure:"key"`
}

// LoggingConfig configures process logs and the decision trace.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
	Dir    string `mapstructure:"dir"`
}

// TracingConfig configures planner call tracing.
type TracingConfig struct {
	Langfuse LangfuseConfig `mapstructure:"langfuse"`
	OTel     OTelConfig     `mapstructure:"otel"`
}

// LangfuseConfig holds Langfuse credentials.
type LangfuseConfig struct {
	PublicKey       string `mapstructure:"public_key"`
	SecretKey       string `mapstructure:"secret_key"`
	PublicKeySecret string `mapstructure:"public_key_secret"`
	SecretKeySecret string `mapstructure:"secret_key_secret"`
	BaseURL         string `mapstructure:"base_url"`
}

// Enabled reports whether both Langfuse keys are present.
func (l LangfuseConfig) Enabled() bool {
	return l.PublicKey != "" && l.SecretKey != ""
}

// OTelConfig selects an OpenTelemetry exporter.
type OTelConfig struct {
	Exporter string `mapstructure:"exporter"` // none, stdout, otlp
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

// CloudConfig contains Google Cloud settings.
type CloudConfig struct {
	Project       string `mapstructure:"project"`
	LogID         string `mapstructure:"log_id"`
	PublishStatus bool   `mapstructure:"publish_status"` // instance metadata
}

// Modes, providers and error policies.
const (
	ModePull = "pull"
	ModePush = "push"

	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderFixed  = "fixed"

	OnErrorIsolate = "isolate"
	OnErrorAbort   = "abort"
)

// SetDefaults registers every key with its default so that env overrides
// are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	defaults := map[string]interface{}{
		"agent.name":             "wikiagent",
		"agent.mode":             ModePull,
		"agent.persona_file":     "",
		"agent.startup_backfill": true,
		"agent.status_addr":      "",

		"marketplace.base_url":            "http://localhost:3000",
		"marketplace.mcp_url":             "http://localhost:8795/mcp",
		"marketplace.access_token":        "",
		"marketplace.access_token_secret": "",
		"marketplace.funded":              false,
		"marketplace.timeout":             "30s",
		"marketplace.retry_attempts":      3,

		"planner.provider":       ProviderOpenAI,
		"planner.base_url":       "http://localhost:11434/v1",
		"planner.model":          "openclaw-7b",
		"planner.api_key":        "",
		"planner.api_key_secret": "",
		"planner.fixed_response": "",
		"planner.timeout":        "60s",

		"policy.salt":                   "",
		"policy.interests":              []string{},
		"policy.always_respond":         false,
		"policy.interest_threshold":     35,
		"policy.default_threshold":      55,
		"policy.min_confidence":         0.62,
		"policy.min_roi":                0.08,
		"policy.default_bid_cents":      20,
		"policy.abstain_counts_as_loss": true,
		"policy.research":               true,
		"policy.reactions.enabled":      false,
		"policy.reactions.mode":         "balanced",
		"policy.reactions.posts":        true,
		"policy.reactions.answers":      true,
		"policy.wiki.discovery":         false,
		"policy.wiki.max_subscriptions": 4,
		"policy.wiki.min_relevance":     40,
		"policy.wiki.join_threshold":    50,
		"policy.wiki.leave_threshold":   50,
		"policy.wiki.home":              "general",
		"policy.wiki.allow_leave_home":  false,

		"loop.interval":         "30s",
		"loop.max_questions":    8,
		"loop.max_new_per_loop": 3,
		"loop.scan_probability": 0.75,
		"loop.on_error":         OnErrorIsolate,

		"memory.backend":   "file",
		"memory.path":      "",
		"memory.redis_url": "",
		"memory.key":       "",

		"logging.level":  "info",
		"logging.format": "json",
		"logging.dir":    ".agent-run-logs",

		"tracing.langfuse.public_key":        "",
		"tracing.langfuse.secret_key":        "",
		"tracing.langfuse.public_key_secret": "",
		"tracing.langfuse.secret_key_secret": "",
		"tracing.langfuse.base_url":          "",
		"tracing.otel.exporter":              "none",
		"tracing.otel.endpoint":              "",
		"tracing.otel.insecure":              false,

		"cloud.project":        "",
		"cloud.log_id":         "wikiagent",
		"cloud.publish_status": false,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load unmarshals the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v into a Config and fills derived defaults. The
// result is not yet validated.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills values derived from other settings.
func applyDefaults(cfg *Config) {
	cfg.Agent.Name = strings.TrimSpace(cfg.Agent.Name)
	slug := Slug(cfg.Agent.Name)

	if cfg.Policy.Salt == "" {
		cfg.Policy.Salt = slug
	}
	if cfg.Memory.Key == "" {
		cfg.Memory.Key = slug
	}
	if cfg.Memory.Path == "" {
		switch cfg.Memory.Backend {
		case "sqlite":
			cfg.Memory.Path = filepath.Join(".wikiagent", "memory.db")
		default:
			cfg.Memory.Path = filepath.Join(".wikiagent", slug+".memory.json")
		}
	}
	cfg.Policy.Interests = splitInterests(cfg.Policy.Interests)
}

// splitInterests accepts both list entries and comma-separated strings.
func splitInterests(in []string) []string {
	var out []string
	for _, item := range in {
		for _, term := range strings.Split(item, ",") {
			if term = strings.TrimSpace(term); term != "" {
				out = append(out, term)
			}
		}
	}
	return out
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slug lower-cases name and replaces runs of other characters with '-'.
func Slug(name string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "agent"
	}
	return s
}

// SecretFetcher resolves a secret reference to its value.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
}

// NeedsSecrets reports whether any credential must come from a secret store.
func (c Config) NeedsSecrets() bool {
	return (c.Marketplace.AccessToken == "" && c.Marketplace.AccessTokenSecret != "") ||
		(c.Planner.APIKey == "" && c.Planner.APIKeySecret != "") ||
		(c.Tracing.Langfuse.PublicKey == "" && c.Tracing.Langfuse.PublicKeySecret != "") ||
		(c.Tracing.Langfuse.SecretKey == "" && c.Tracing.Langfuse.SecretKeySecret != "")
}

// ResolveSecrets returns a copy of c with empty credentials filled from
// their secret references.
func (c Config) ResolveSecrets(ctx context.Context, fetcher SecretFetcher) (Config, error) {
	resolve := func(value *string, ref, what string) error {
		if *value != "" || ref == "" {
			return nil
		}
		secret, err := fetcher.FetchSecret(ctx, ref)
		if err != nil {
			return fmt.Errorf("failed to fetch %s: %w", what, err)
		}
		*value = strings.TrimSpace(secret)
		return nil
	}

	out := c
	if err := resolve(&out.Marketplace.AccessToken, c.Marketplace.AccessTokenSecret, "marketplace access token"); err != nil {
		return c, err
	}
	if err := resolve(&out.Planner.APIKey, c.Planner.APIKeySecret, "planner API key"); err != nil {
		return c, err
	}
	if err := resolve(&out.Tracing.Langfuse.PublicKey, c.Tracing.Langfuse.PublicKeySecret, "Langfuse public key"); err != nil {
		return c, err
	}
	if err := resolve(&out.Tracing.Langfuse.SecretKey, c.Tracing.Langfuse.SecretKeySecret, "Langfuse secret key"); err != nil {
		return c, err
	}
	return out, nil
}

// Validate checks that the configuration can drive an agent.
func (c Config) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Agent.Name == "" {
		add("agent name is required")
	}
	switch c.Agent.Mode {
	case ModePull, ModePush:
	default:
		add("invalid agent mode %q (must be pull or push)", c.Agent.Mode)
	}

	if c.Marketplace.MCPURL == "" {
		add("marketplace mcp_url is required")
	}
	if c.Agent.Mode == ModePush && c.Marketplace.BaseURL == "" {
		add("marketplace base_url is required in push mode")
	}
	if c.Marketplace.AccessToken == "" {
		add("marketplace access token is required")
	}
	if c.Marketplace.Timeout <= 0 {
		add("marketplace timeout must be positive")
	}
	if c.Marketplace.RetryAttempts < 1 {
		add("marketplace retry_attempts must be at least 1")
	}

	switch c.Planner.Provider {
	case ProviderOpenAI:
		if c.Planner.BaseURL == "" {
			add("planner base_url is required for provider openai")
		}
	case ProviderGemini:
		if c.Planner.APIKey == "" {
			add("planner api_key is required for provider gemini")
		}
	case ProviderFixed:
		if strings.TrimSpace(c.Planner.FixedResponse) == "" {
			add("planner fixed_response is required for provider fixed")
		}
	default:
		add("invalid planner provider %q", c.Planner.Provider)
	}
	if c.Planner.Provider != ProviderFixed && c.Planner.Model == "" {
		add("planner model is required")
	}

	p := c.Policy
	if !inRange(p.InterestThreshold, 0, 100) || !inRange(p.DefaultThreshold, 0, 100) {
		add("policy thresholds must be within [0,100]")
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		add("policy min_confidence must be within [0,1]")
	}
	if p.MinROI < -1 || p.MinROI > 1 {
		add("policy min_roi must be within [-1,1]")
	}
	if p.DefaultBidCents < 0 {
		add("policy default_bid_cents must not be negative")
	}
	switch p.Reactions.Mode {
	case "always-like", "always-dislike", "balanced":
	default:
		add("invalid reactions mode %q", p.Reactions.Mode)
	}
	if p.Wiki.MaxSubscriptions < 1 {
		add("policy wiki max_subscriptions must be at least 1")
	}
	if !inRange(p.Wiki.MinRelevance, 0, 100) || !inRange(p.Wiki.JoinThreshold, 0, 100) || !inRange(p.Wiki.LeaveThreshold, 0, 100) {
		add("policy wiki thresholds must be within [0,100]")
	}

	l := c.Loop
	if l.Interval <= 0 {
		add("loop interval must be positive")
	}
	if l.MaxQuestions < 1 || l.MaxNewPerLoop < 1 {
		add("loop max_questions and max_new_per_loop must be at least 1")
	}
	if l.ScanProbability < 0 || l.ScanProbability > 1 {
		add("loop scan_probability must be within [0,1]")
	}
	switch l.OnError {
	case OnErrorIsolate, OnErrorAbort:
	default:
		add("invalid loop on_error %q (must be isolate or abort)", l.OnError)
	}

	switch c.Memory.Backend {
	case "file", "sqlite":
		if c.Memory.Path == "" {
			add("memory path is required")
		}
	case "redis":
		if c.Memory.RedisURL == "" {
			add("memory redis_url is required for the redis backend")
		}
	default:
		add("invalid memory backend %q", c.Memory.Backend)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		add("invalid logging format %q", c.Logging.Format)
	}

	switch c.Tracing.OTel.Exporter {
	case "", "none", "stdout":
	case "otlp":
		if c.Tracing.OTel.Endpoint == "" {
			add("tracing otel endpoint is required for the otlp exporter")
		}
	default:
		add("invalid otel exporter %q", c.Tracing.OTel.Exporter)
	}

	return errors.Join(errs...)
}

func inRange(v, lo, hi int) bool {
	return v >= lo && v <= hi
}
