package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/memory"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect or reset an agent's memory",
	Long: `Inspect or reset the memory snapshot of the configured agent.

Example:
  wikiagent memory show --config agent.yaml
  wikiagent memory show --memory .agent-checkpoints/ada.memory.json --history 20
  wikiagent memory reset --config agent.yaml`,
}

var memoryShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print loops, topic performance and recent history",
	Args:  cobra.NoArgs,
	RunE:  showMemory,
}

var memoryResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear seen questions, topic performance and history",
	Args:  cobra.NoArgs,
	RunE:  resetMemory,
}

func init() {
	rootCmd.AddCommand(memoryCmd)
	memoryCmd.AddCommand(memoryShowCmd, memoryResetCmd)

	memoryCmd.PersistentFlags().String("memory", "", "Memory snapshot path (overrides memory.path)")
	memoryShowCmd.Flags().Int("history", 10, "Number of history entries to show")
}

// memoryStore opens and loads the snapshot the config points at. Only the
// memory section is used, so credentials need not be set. With lenient set
// an unreadable snapshot is reported and the empty store returned.
func memoryStore(cmd *cobra.Command, lenient bool) (*memory.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if path, _ := cmd.Flags().GetString("memory"); path != "" {
		cfg.Memory.Path = path
	}

	ctx := commandContext(cmd)
	store, err := openStore(ctx, cfg.Memory)
	if err != nil {
		return nil, err
	}
	if err := store.Load(ctx); err != nil {
		if lenient {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", err)
			return store, nil
		}
		_ = store.Backend().Close()
		return nil, fmt.Errorf("failed to load memory from %s: %w", store.Backend(), err)
	}
	return store, nil
}

func showMemory(cmd *cobra.Command, args []string) error {
	store, err := memoryStore(cmd, false)
	if err != nil {
		return err
	}
	defer func() { _ = store.Backend().Close() }()

	history, _ := cmd.Flags().GetInt("history")
	printMemory(cmd.OutOrStdout(), store, history)
	return nil
}

func resetMemory(cmd *cobra.Command, args []string) error {
	store, err := memoryStore(cmd, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Backend().Close() }()

	store.Reset()
	if err := store.Save(commandContext(cmd)); err != nil {
		return fmt.Errorf("failed to save memory: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Memory reset: %s\n", store.Backend())
	return nil
}

func printMemory(w io.Writer, store *memory.Store, history int) {
	data := store.Snapshot()
	fmt.Fprintf(w, "Memory:    %s\n", store.Backend())
	fmt.Fprintf(w, "Loops:     %d\n", data.Loops)
	if data.LastLoopAt != nil {
		fmt.Fprintf(w, "Last loop: %s\n", data.LastLoopAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(w, "Last loop: never")
	}
	fmt.Fprintf(w, "Seen:      %d questions\n", len(data.SeenQuestionIDs))

	if len(data.TopicPerformance) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TOPIC\tWIN\tLOSS\tSEEN\tPRIOR")
		for _, topic := range sortedTopics(data.TopicPerformance) {
			stats := data.TopicPerformance[topic]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%+.2f\n", topic, stats.Win, stats.Loss, stats.Seen, store.TopicPrior([]string{topic}))
		}
		_ = tw.Flush()
	}

	entries := data.History
	if history >= 0 && len(entries) > history {
		entries = entries[len(entries)-history:]
	}
	if len(entries) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tQUESTION\tACTION\tBID\tREASON")
		for _, e := range entries {
			reason := e.Reason
			if e.Error != "" {
				reason = e.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				e.Timestamp.UTC().Format(time.RFC3339), e.QuestionID, e.Action, e.BidAmountCents, reason)
		}
		_ = tw.Flush()
	}
}

// sortedTopics orders topics by how often they were seen, then by name.
func sortedTopics(perf map[string]*memory.TopicStats) []string {
	topics := make([]string, 0, len(perf))
	for t := range perf {
		topics = append(topics, t)
	}
	sort.Slice(topics, func(i, j int) bool {
		a, b := perf[topics[i]], perf[topics[j]]
		if a.Seen != b.Seen {
			return a.Seen > b.Seen
		}
		return topics[i] < topics[j]
	})
	return topics
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
