package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andywolf/wikiagent/internal/cli/wizard"
	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/security"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an agent configuration file",
	Long: `Create a .wikiagent.yaml file with sensible defaults that you can customize.

Example:
  wikiagent init --name "Ada" --interests rust,go
  wikiagent init --interactive`,
	Args: cobra.NoArgs,
	RunE: initAgent,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("name", "", "Agent name (defaults to the directory name)")
	initCmd.Flags().String("mode", config.ModePull, "Ingestion mode (pull or push)")
	initCmd.Flags().String("mcp-url", "http://localhost:8795/mcp", "Marketplace MCP endpoint")
	initCmd.Flags().String("base-url", "http://localhost:3000", "Marketplace web origin")
	initCmd.Flags().StringSlice("interests", nil, "Topics the agent prefers")
	initCmd.Flags().String("provider", config.ProviderOpenAI, "Planner provider (openai or gemini)")
	initCmd.Flags().String("model", "openclaw-7b", "Planner model")
	initCmd.Flags().Bool("always-respond", false, "Answer every question regardless of interests")
	initCmd.Flags().BoolP("interactive", "i", false, "Prompt for each setting")
	initCmd.Flags().Bool("force", false, "Overwrite existing config")
}

// agentFile is the subset of the configuration written by init.
type agentFile struct {
	Agent struct {
		Name string `yaml:"name"`
		Mode string `yaml:"mode"`
	} `yaml:"agent"`
	Marketplace struct {
		BaseURL           string `yaml:"base_url"`
		MCPURL            string `yaml:"mcp_url"`
		AccessTokenSecret string `yaml:"access_token_secret"`
	} `yaml:"marketplace"`
	Planner struct {
		Provider     string `yaml:"provider"`
		Model        string `yaml:"model"`
		APIKeySecret string `yaml:"api_key_secret,omitempty"`
	} `yaml:"planner"`
	Policy struct {
		Interests     []string `yaml:"interests,omitempty"`
		AlwaysRespond bool     `yaml:"always_respond"`
	} `yaml:"policy"`
	Memory struct {
		Backend string `yaml:"backend"`
	} `yaml:"memory"`
}

func initAgent(cmd *cobra.Command, args []string) error {
	configPath := filepath.Join(".", ".wikiagent.yaml")

	answers := &wizard.AgentAnswers{}
	answers.Name, _ = cmd.Flags().GetString("name")
	answers.Mode, _ = cmd.Flags().GetString("mode")
	answers.MCPURL, _ = cmd.Flags().GetString("mcp-url")
	answers.BaseURL, _ = cmd.Flags().GetString("base-url")
	answers.Interests, _ = cmd.Flags().GetStringSlice("interests")
	answers.Provider, _ = cmd.Flags().GetString("provider")
	answers.Model, _ = cmd.Flags().GetString("model")
	answers.AlwaysRespond, _ = cmd.Flags().GetBool("always-respond")
	if answers.Name == "" {
		cwd, _ := os.Getwd()
		answers.Name = filepath.Base(cwd)
	}

	interactive, _ := cmd.Flags().GetBool("interactive")
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		if !interactive {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
		}
		ok, err := wizard.ConfirmOverwrite(configPath)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	if interactive {
		var err error
		if answers, err = wizard.PromptAgent(answers); err != nil {
			return err
		}
	}

	data, err := renderAgentFile(answers)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	printNextSteps(cmd.OutOrStdout(), configPath)
	return nil
}

// renderAgentFile validates the answers and produces the YAML document.
func renderAgentFile(a *wizard.AgentAnswers) ([]byte, error) {
	if err := security.ValidateAgentName(a.Name); err != nil {
		return nil, err
	}
	switch a.Mode {
	case config.ModePull, config.ModePush:
	default:
		return nil, fmt.Errorf("invalid mode %q (must be pull or push)", a.Mode)
	}
	for _, endpoint := range []string{a.MCPURL, a.BaseURL} {
		if err := security.ValidateEndpoint(endpoint); err != nil {
			return nil, err
		}
	}
	for _, interest := range a.Interests {
		if err := security.ValidateArgument(interest, ","); err != nil {
			return nil, fmt.Errorf("invalid interest: %w", err)
		}
	}

	slug := config.Slug(a.Name)
	f := agentFile{}
	f.Agent.Name = a.Name
	f.Agent.Mode = a.Mode
	f.Marketplace.BaseURL = a.BaseURL
	f.Marketplace.MCPURL = a.MCPURL
	f.Marketplace.AccessTokenSecret = fmt.Sprintf("projects/YOUR_PROJECT/secrets/%s-marketplace-token", slug)
	f.Planner.Provider = a.Provider
	f.Planner.Model = a.Model
	if a.Provider == config.ProviderGemini {
		f.Planner.APIKeySecret = fmt.Sprintf("projects/YOUR_PROJECT/secrets/%s-gemini-key", slug)
	}
	f.Policy.Interests = a.Interests
	f.Policy.AlwaysRespond = a.AlwaysRespond
	f.Memory.Backend = "file"

	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# wikiagent configuration
# Every key can be overridden with a WIKIAGENT_ environment variable,
# e.g. WIKIAGENT_MARKETPLACE_ACCESS_TOKEN.

`
	return append([]byte(header), data...), nil
}

func printNextSteps(w io.Writer, configPath string) {
	fmt.Fprintf(w, "Created %s\n\n", configPath)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Point the secret references at your Secret Manager project,")
	fmt.Fprintln(w, "     or export WIKIAGENT_MARKETPLACE_ACCESS_TOKEN")
	fmt.Fprintln(w, "  2. Adjust interests and thresholds under policy")
	fmt.Fprintln(w, "  3. Run 'wikiagent run' to start the agent")
}
