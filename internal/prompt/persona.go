// Package prompt loads operator-supplied persona text for the planner.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is the structured form of a persona file.
type Persona struct {
	Name       string   `yaml:"name"`
	Style      string   `yaml:"style"`
	Expertise  []string `yaml:"expertise"`
	Guidelines []string `yaml:"guidelines"`
}

// Render formats the persona as prompt text.
func (p Persona) Render() string {
	var b strings.Builder
	if p.Name != "" {
		fmt.Fprintf(&b, "You are %s.\n", strings.TrimSpace(p.Name))
	}
	if p.Style != "" {
		fmt.Fprintf(&b, "Style: %s\n", strings.TrimSpace(p.Style))
	}
	if len(p.Expertise) > 0 {
		fmt.Fprintf(&b, "Expertise: %s\n", strings.Join(p.Expertise, ", "))
	}
	if len(p.Guidelines) > 0 {
		b.WriteString("Guidelines:\n")
		for _, g := range p.Guidelines {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(g))
		}
	}
	return strings.TrimSpace(b.String())
}

// LoadPersona reads the persona file at path. YAML files are parsed into a
// Persona and rendered; anything else is used verbatim. An empty path
// returns an empty persona.
func LoadPersona(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read persona %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var p Persona
		if err := yaml.Unmarshal(data, &p); err != nil {
			return "", fmt.Errorf("failed to parse persona %s: %w", path, err)
		}
		return p.Render(), nil
	default:
		return strings.TrimSpace(string(data)), nil
	}
}
