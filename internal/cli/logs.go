package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/events"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show the agent's decision trace",
	Long: `Show records from the configured agent's decision trace.

Every loop, decision, answer, abstention, vote and wiki change is appended to
<logging.dir>/<agent-slug>.events.jsonl. This command filters and prints it.

Example:
  wikiagent logs --config agent.yaml
  wikiagent logs --type answer --type abstain --tail 20
  wikiagent logs --question q-123
  wikiagent logs --file .agent-run-logs/ada.events.jsonl`,
	Args: cobra.NoArgs,
	RunE: showLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringSlice("type", nil, "Only show these record types (repeatable)")
	logsCmd.Flags().String("question", "", "Only show records for this question ID")
	logsCmd.Flags().Int("tail", 50, "Number of records to show from the end (0 for all)")
	logsCmd.Flags().String("file", "", "Trace file to read (defaults to the configured agent's)")
}

func showLogs(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Agent.Name == "" {
			return fmt.Errorf("agent name not configured; pass --file or set agent.name")
		}
		path = events.TracePath(cfg.Logging.Dir, config.Slug(cfg.Agent.Name))
	}

	typeNames, _ := cmd.Flags().GetStringSlice("type")
	types, err := parseEventTypes(typeNames)
	if err != nil {
		return err
	}
	questionID, _ := cmd.Flags().GetString("question")
	tail, _ := cmd.Flags().GetInt("tail")

	records, err := events.ReadRecords(path)
	if err != nil {
		return err
	}
	records = events.FilterByType(records, types...)
	records = events.FilterByQuestion(records, questionID)
	records = events.Tail(records, tail)

	out := cmd.OutOrStdout()
	for _, rec := range records {
		formatRecord(out, rec)
	}
	return nil
}

func parseEventTypes(names []string) ([]events.EventType, error) {
	types := make([]events.EventType, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if !events.IsValidEventType(name) {
			valid := make([]string, 0, len(events.ValidEventTypes()))
			for _, t := range events.ValidEventTypes() {
				valid = append(valid, string(t))
			}
			return nil, fmt.Errorf("invalid --type %q (valid: %s)", name, strings.Join(valid, ", "))
		}
		types = append(types, events.EventType(name))
	}
	return types, nil
}

// formatRecord prints one record as
// "[15:04:05] #loop TYPE question reason key=value ...".
func formatRecord(w io.Writer, rec events.Record) {
	var b strings.Builder
	if !rec.Timestamp.IsZero() {
		fmt.Fprintf(&b, "[%s] ", rec.Timestamp.UTC().Format("15:04:05"))
	}
	fmt.Fprintf(&b, "#%d %s", rec.Loop, strings.ToUpper(string(rec.Type)))
	if rec.QuestionID != "" {
		b.WriteString(" " + rec.QuestionID)
	}
	if rec.Reason != "" {
		b.WriteString(" " + rec.Reason)
	}

	keys := make([]string, 0, len(rec.Data))
	for k := range rec.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, formatValue(rec.Data[k]))
	}
	fmt.Fprintln(w, b.String())
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(raw)
	}
}
