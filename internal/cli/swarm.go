package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/swarm"
)

var swarmCmd = &cobra.Command{
	Use:   "swarm",
	Short: "Run several agents from a roster",
	Long: `Start one 'wikiagent run' process per agent listed in a roster file.

Each agent gets its own memory file under the checkpoint directory, its own
log file, and its name as decision salt, so agents sharing a marketplace make
independent choices. Ctrl-C stops every agent: SIGTERM first, SIGKILL after
a short grace period.

Example:
  wikiagent swarm --roster swarm.yaml
  wikiagent swarm --roster swarm.yaml --dry-run`,
	Args: cobra.NoArgs,
	RunE: runSwarm,
}

func init() {
	rootCmd.AddCommand(swarmCmd)

	swarmCmd.Flags().String("roster", "swarm.yaml", "Roster file listing the agents")
	swarmCmd.Flags().String("checkpoint-dir", swarm.DefaultCheckpointDir, "Directory for per-agent memory files")
	swarmCmd.Flags().String("log-dir", swarm.DefaultLogDir, "Directory for per-agent logs and traces")
	swarmCmd.Flags().Duration("kill-grace", swarm.DefaultKillGrace, "Wait this long after SIGTERM before killing an agent")
	swarmCmd.Flags().Bool("dry-run", false, "Print the launch plan without starting anything")
}

func runSwarm(cmd *cobra.Command, args []string) error {
	rosterPath, _ := cmd.Flags().GetString("roster")
	roster, err := swarm.LoadRoster(rosterPath)
	if err != nil {
		return err
	}

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate wikiagent binary: %w", err)
	}
	childArgs := []string{"run"}
	if cfgFile != "" {
		childArgs = append(childArgs, "--config", cfgFile)
	}

	checkpointDir, _ := cmd.Flags().GetString("checkpoint-dir")
	logDir, _ := cmd.Flags().GetString("log-dir")
	grace, _ := cmd.Flags().GetDuration("kill-grace")

	sup := &swarm.Supervisor{
		Binary:        binary,
		Args:          childArgs,
		CheckpointDir: checkpointDir,
		LogDir:        logDir,
		KillGrace:     grace,
		Output:        cmd.OutOrStdout(),
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		printPlan(cmd.OutOrStdout(), sup.Plan(roster))
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newZapLogger(cfg.Logging, viper.GetBool("verbose"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	sup.Logger = logger.Named("swarm")

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting swarm", zap.String("roster", rosterPath), zap.Int("agents", len(roster.Agents)))
	return sup.Run(ctx, roster)
}

func printPlan(w io.Writer, procs []swarm.Process) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tSLUG\tMEMORY\tLOG")
	for _, p := range procs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Slug, p.MemoryPath, p.LogPath)
	}
	_ = tw.Flush()
}
