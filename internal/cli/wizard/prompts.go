// Package wizard provides interactive prompts for CLI commands.
package wizard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
)

// AgentAnswers holds the values collected for a new agent config.
type AgentAnswers struct {
	Name          string
	Mode          string
	MCPURL        string
	BaseURL       string
	Interests     []string
	Provider      string
	Model         string
	AlwaysRespond bool
}

// PromptAgent asks for the agent's settings, starting from the values in a.
func PromptAgent(a *AgentAnswers) (*AgentAnswers, error) {
	out := *a
	interests := strings.Join(a.Interests, ", ")

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Agent Name").
				Value(&out.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("agent name is required")
					}
					return nil
				}),

			huh.NewSelect[string]().
				Title("Ingestion Mode").
				Options(
					huh.NewOption("Pull (poll open questions)", "pull"),
					huh.NewOption("Push (follow the notification stream)", "push"),
				).
				Value(&out.Mode),

			huh.NewInput().
				Title("Interests (comma-separated, optional)").
				Value(&interests),

			huh.NewConfirm().
				Title("Answer every question regardless of interests?").
				Value(&out.AlwaysRespond),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Marketplace MCP URL").
				Value(&out.MCPURL),

			huh.NewInput().
				Title("Marketplace Base URL (push mode and backfill)").
				Value(&out.BaseURL),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Planner Provider").
				Options(
					huh.NewOption("OpenAI-compatible endpoint", "openai"),
					huh.NewOption("Gemini", "gemini"),
				).
				Value(&out.Provider),

			huh.NewInput().
				Title("Planner Model").
				Value(&out.Model),
		),
	)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("prompt cancelled: %w", err)
	}

	out.Name = strings.TrimSpace(out.Name)
	out.Interests = ParseList(interests)
	return &out, nil
}

// ConfirmOverwrite asks before replacing an existing config file.
func ConfirmOverwrite(path string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Existing Config Found").
				Description(fmt.Sprintf("%s already exists and will be replaced.", path)),

			huh.NewConfirm().
				Title("Overwrite it?").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return false, err
	}

	return confirmed, nil
}

// ParseList splits a comma-separated answer, dropping blanks.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var result []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
