package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/andywolf/wikiagent/internal/cloud/gcp"
	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/controller"
	"github.com/andywolf/wikiagent/internal/events"
	"github.com/andywolf/wikiagent/internal/marketplace"
	"github.com/andywolf/wikiagent/internal/observability"
	"github.com/andywolf/wikiagent/internal/planner"
	"github.com/andywolf/wikiagent/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single agent",
	Long: `Run one agent against the marketplace until interrupted.

In pull mode the agent polls for open questions on an interval. In push mode
it backfills recent posts once and then follows the marketplace's
notification stream. On SIGINT or SIGTERM the agent finishes the question in
hand, saves its memory and exits.

Example:
  wikiagent run --config agent.yaml
  wikiagent run --name "Ada" --mode push --status-addr 127.0.0.1:8080`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("name", "", "Agent display name")
	runCmd.Flags().String("mode", "", "Ingestion mode (pull or push)")
	runCmd.Flags().String("memory", "", "Memory snapshot path")
	runCmd.Flags().String("status-addr", "", "Serve /health on this address (e.g., 127.0.0.1:8080)")

	_ = viper.BindPFlag("agent.name", runCmd.Flags().Lookup("name"))
	_ = viper.BindPFlag("agent.mode", runCmd.Flags().Lookup("mode"))
	_ = viper.BindPFlag("memory.path", runCmd.Flags().Lookup("memory"))
	_ = viper.BindPFlag("agent.status_addr", runCmd.Flags().Lookup("status-addr"))
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	logger, err := newZapLogger(cfg.Logging, viper.GetBool("verbose"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.With(zap.String("agent", cfg.Agent.Name))

	ctrl, err := buildController(ctx, cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := ctrl.SignalContext(ctx)
	defer cancel()

	if cfg.Agent.StatusAddr != "" {
		go func() {
			if err := ctrl.ServeStatus(ctx, cfg.Agent.StatusAddr); err != nil {
				logger.Warn("status server stopped", zap.Error(err))
			}
		}()
	}

	if err := ctrl.Run(ctx); err != nil {
		return fmt.Errorf("agent stopped with error: %w", err)
	}
	return nil
}

// buildController wires every collaborator for cfg. Closers are registered
// as shutdown hooks and run after memory has been saved.
func buildController(ctx context.Context, cfg config.Config, logger *zap.Logger) (*controller.Controller, error) {
	slug := config.Slug(cfg.Agent.Name)
	scrubber := newScrubber(cfg)

	persona, err := loadPersona(cfg.Agent.PersonaFile, scrubber)
	if err != nil {
		return nil, err
	}

	plannerClient, err := newPlannerClient(ctx, cfg.Planner, cfg.Marketplace.RetryAttempts)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Memory)
	if err != nil {
		return nil, err
	}

	tracer, err := observability.NewTracer(ctx, observability.Options{
		Langfuse: observability.LangfuseConfig{
			PublicKey: cfg.Tracing.Langfuse.PublicKey,
			SecretKey: cfg.Tracing.Langfuse.SecretKey,
			BaseURL:   cfg.Tracing.Langfuse.BaseURL,
		},
		OTel: observability.OTelConfig{
			ServiceName:    "wikiagent",
			ServiceVersion: version.Short(),
			Exporter:       cfg.Tracing.OTel.Exporter,
			Endpoint:       cfg.Tracing.OTel.Endpoint,
			Insecure:       cfg.Tracing.OTel.Insecure,
		},
	}, logger)
	if err != nil {
		_ = store.Backend().Close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	sink, err := events.NewFileSink(cfg.Logging.Dir, slug, scrubber)
	if err != nil {
		_ = store.Backend().Close()
		return nil, err
	}

	cloudLogger, err := gcp.NewLogger(ctx, gcp.CloudLoggerConfig{
		ProjectID: cfg.Cloud.Project,
		LogID:     cfg.Cloud.LogID,
		Agent:     cfg.Agent.Name,
		Labels:    map[string]string{"mode": cfg.Agent.Mode},
	}, os.Stderr)
	if err != nil {
		logger.Warn("cloud logging unavailable, using stderr", zap.Error(err))
	}
	secureLogger := gcp.NewSecureLogger(cloudLogger, scrubber)

	market := marketplace.NewClient(cfg.Marketplace.MCPURL, cfg.Marketplace.AccessToken,
		marketplace.WithBaseURL(cfg.Marketplace.BaseURL),
		marketplace.WithRetry(cfg.Marketplace.RetryAttempts, marketplace.DefaultRetryDelay),
		marketplace.WithHTTPClient(&http.Client{Timeout: cfg.Marketplace.Timeout}),
	)

	var publisher gcp.StatusPublisher
	var computePublisher *gcp.ComputeStatusPublisher
	if cfg.Cloud.PublishStatus {
		computePublisher, err = gcp.NewComputeStatusPublisher(ctx, slug)
		if err != nil {
			logger.Warn("instance status publishing disabled", zap.Error(err))
		} else {
			publisher = computePublisher
		}
	}

	ctrl, err := controller.New(cfg, controller.Deps{
		Marketplace: market,
		Planner:     planner.New(plannerClient, persona),
		Memory:      store,
		Tracer:      tracer,
		Events:      sink,
		Logger:      logger,
		CloudLogger: secureLogger,
		Status:      publisher,
	})
	if err != nil {
		_ = sink.Close()
		_ = store.Backend().Close()
		return nil, err
	}

	ctrl.AddShutdownHook(tracer.Stop)
	ctrl.AddShutdownHook(func(context.Context) error { return sink.Close() })
	ctrl.AddShutdownHook(func(context.Context) error { return cloudLogger.Close() })
	if computePublisher != nil {
		ctrl.AddShutdownHook(func(context.Context) error { return computePublisher.Close() })
	}
	ctrl.AddShutdownHook(func(context.Context) error { return store.Backend().Close() })

	logger.Info("agent configured",
		zap.String("mode", cfg.Agent.Mode),
		zap.String("planner", plannerClient.Model()),
		zap.String("memory", fmt.Sprint(store.Backend())),
		zap.String("trace", sink.Path()),
	)
	return ctrl, nil
}
