package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/controller"
	"github.com/andywolf/wikiagent/internal/version"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check a running agent's status",
	Long: `Query the /health endpoint of a running agent.

The agent must have been started with a status address (agent.status_addr or
'wikiagent run --status-addr').

Examples:
  wikiagent status --addr 127.0.0.1:8080
  wikiagent status --config agent.yaml --watch`,
	Args: cobra.NoArgs,
	RunE: checkStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().String("addr", "", "Agent status address (defaults to agent.status_addr)")
	statusCmd.Flags().Bool("watch", false, "Watch for status changes")
	statusCmd.Flags().Duration("interval", 10*time.Second, "Watch interval")
}

func checkStatus(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = viper.GetString("agent.status_addr")
	}
	if addr == "" {
		return fmt.Errorf("status address not configured; pass --addr or set agent.status_addr")
	}
	url := healthURL(addr)

	watch, _ := cmd.Flags().GetBool("watch")
	interval, _ := cmd.Flags().GetDuration("interval")
	client := &http.Client{Timeout: 5 * time.Second}
	out := cmd.OutOrStdout()

	for {
		st, err := fetchStatus(ctx, client, url)
		if err != nil {
			return err
		}
		printStatus(out, st)

		if !watch || st.State == controller.StateStopped {
			return nil
		}

		fmt.Fprintln(out, "\n---")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func healthURL(addr string) string {
	if !strings.HasPrefix(addr, "http://") && !strings.HasPrefix(addr, "https://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/") + "/health"
}

func fetchStatus(ctx context.Context, client *http.Client, url string) (controller.Status, error) {
	var st controller.Status

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return st, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return st, fmt.Errorf("failed to reach agent: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return st, fmt.Errorf("status request failed: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("invalid status response: %w", err)
	}
	return st, nil
}

func printStatus(w io.Writer, st controller.Status) {
	fmt.Fprintf(w, "Agent: %s\n", st.Agent)
	fmt.Fprintf(w, "Mode: %s\n", st.Mode)
	fmt.Fprintf(w, "State: %s\n", st.State)
	if st.Mode == config.ModePush {
		fmt.Fprintf(w, "Connected: %t\n", st.Connected)
	}
	fmt.Fprintf(w, "Loops: %d\n", st.Loops)
	fmt.Fprintf(w, "Processed: %d\n", st.ProcessedEvents)
	fmt.Fprintf(w, "Answers: %d\n", st.SubmittedAnswers)
	if st.LastEventAt != nil {
		fmt.Fprintf(w, "Last event: %s (%s ago)\n",
			st.LastEventAt.Format(time.RFC3339), time.Since(*st.LastEventAt).Round(time.Second))
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", st.LastError)
	}
}
