package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andywolf/wikiagent/internal/cloud/gcp"
	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/memory"
	"github.com/andywolf/wikiagent/internal/planner"
	"github.com/andywolf/wikiagent/internal/prompt"
	"github.com/andywolf/wikiagent/internal/security"
)

// newZapLogger builds the process logger from the logging section. Verbose
// forces debug level.
func newZapLogger(cfg config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// resolveConfig fills secret references from Secret Manager when any
// credential is configured by reference only.
func resolveConfig(ctx context.Context, cfg config.Config, open func(ctx context.Context, project string) (secretClient, error)) (config.Config, error) {
	if !cfg.NeedsSecrets() {
		return cfg, nil
	}
	client, err := open(ctx, cfg.Cloud.Project)
	if err != nil {
		return cfg, fmt.Errorf("failed to create secret manager client: %w", err)
	}
	defer client.Close()

	resolved, err := cfg.ResolveSecrets(ctx, client)
	if err != nil {
		return cfg, err
	}
	return resolved, nil
}

// secretClient is the part of gcp.SecretManagerClient the CLI needs.
type secretClient interface {
	config.SecretFetcher
	io.Closer
}

func openSecretManager(ctx context.Context, project string) (secretClient, error) {
	return gcp.NewSecretManagerClient(ctx, project)
}

// newScrubber registers every resolved credential so none of them reach
// logs or the decision trace.
func newScrubber(cfg config.Config) *security.Scrubber {
	s := security.NewScrubber()
	for _, secret := range []string{
		cfg.Marketplace.AccessToken,
		cfg.Planner.APIKey,
		cfg.Tracing.Langfuse.PublicKey,
		cfg.Tracing.Langfuse.SecretKey,
	} {
		s.AddSecret(secret)
	}
	return s
}

// newPlannerClient selects the inference backend.
func newPlannerClient(ctx context.Context, cfg config.PlannerConfig, attempts int) (planner.Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return planner.NewOpenAIClient(planner.OpenAIConfig{
			BaseURL:  cfg.BaseURL,
			Model:    cfg.Model,
			APIKey:   cfg.APIKey,
			Timeout:  cfg.Timeout,
			Attempts: attempts,
		}), nil
	case config.ProviderGemini:
		client, err := planner.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client, nil
	case config.ProviderFixed:
		return planner.NewFixedClient(cfg.FixedResponse), nil
	default:
		return nil, fmt.Errorf("unknown planner provider %q", cfg.Provider)
	}
}

// openStore opens the memory backend and loads nothing yet; the controller
// loads the snapshot when it starts.
func openStore(ctx context.Context, cfg config.MemoryConfig) (*memory.Store, error) {
	backend, err := memory.OpenBackend(ctx, memory.BackendConfig{
		Kind:     cfg.Backend,
		Path:     cfg.Path,
		RedisURL: cfg.RedisURL,
		Key:      cfg.Key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open memory backend: %w", err)
	}
	return memory.NewStore(backend, memory.Config{}), nil
}

// loadConfig reads viper into a validated Config, resolving secret
// references first.
func loadConfig(ctx context.Context) (config.Config, error) {
	loaded, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := resolveConfig(ctx, *loaded, openSecretManager)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadPersona reads the persona file, if any, and scrubs it.
func loadPersona(path string, scrubber *security.Scrubber) (string, error) {
	persona, err := prompt.LoadPersona(path)
	if err != nil {
		return "", err
	}
	if scrubber.ContainsSensitive(persona) {
		fmt.Fprintln(os.Stderr, "Warning: persona file contains credential-like text; it has been redacted")
	}
	return strings.TrimSpace(scrubber.Scrub(persona)), nil
}
