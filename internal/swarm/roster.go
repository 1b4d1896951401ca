// Package swarm runs several agents side by side, each as its own
// `wikiagent run` process with its own memory file and decision salt.
package swarm

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/security"
)

// Roster is the swarm definition file.
type Roster struct {
	Shared Shared   `yaml:"shared"`
	Agents []Member `yaml:"agents"`
}

// Shared settings apply to every member unless the member overrides them.
type Shared struct {
	Mode          string `yaml:"mode,omitempty"`
	MCPURL        string `yaml:"mcp_url,omitempty"`
	AlwaysRespond bool   `yaml:"always_respond,omitempty"`
	WikiDiscovery *bool  `yaml:"wiki_discovery,omitempty"`
	Reactions     *bool  `yaml:"reactions,omitempty"`
	MaxWikis      int    `yaml:"max_wikis,omitempty"`
}

// Member is one agent in the roster.
type Member struct {
	Name          string   `yaml:"name"`
	AccessToken   string   `yaml:"access_token"`
	MCPURL        string   `yaml:"mcp_url,omitempty"`
	Interests     []string `yaml:"interests,omitempty"`
	PersonaFile   string   `yaml:"persona_file,omitempty"`
	AlwaysRespond *bool    `yaml:"always_respond,omitempty"`
}

// Slug is the member's file-safe key, also used as its decision salt.
func (m Member) Slug() string {
	return config.Slug(m.Name)
}

// LoadRoster reads and validates a roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read roster %s: %w", path, err)
	}
	r, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return r, nil
}

// ParseRoster decodes and validates roster YAML. Unknown keys are errors.
func ParseRoster(data []byte) (*Roster, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var r Roster
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("invalid roster YAML: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks every member. Member values end up in environment
// variables of child processes, so they are checked as arguments too.
func (r *Roster) Validate() error {
	if len(r.Agents) == 0 {
		return errors.New("roster has no agents")
	}
	switch r.Shared.Mode {
	case "", config.ModePull, config.ModePush:
	default:
		return fmt.Errorf("invalid shared mode %q", r.Shared.Mode)
	}
	if r.Shared.MCPURL != "" {
		if err := security.ValidateEndpoint(r.Shared.MCPURL); err != nil {
			return fmt.Errorf("shared mcp_url: %w", err)
		}
	}
	if r.Shared.MaxWikis < 0 {
		return errors.New("shared max_wikis must not be negative")
	}

	var errs []error
	slugs := make(map[string]string, len(r.Agents))
	for i, m := range r.Agents {
		label := fmt.Sprintf("agent %d (%s)", i+1, m.Name)
		if err := security.ValidateAgentName(m.Name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
			continue
		}
		if other, dup := slugs[m.Slug()]; dup {
			errs = append(errs, fmt.Errorf("%s: slug %q already used by %s", label, m.Slug(), other))
		}
		slugs[m.Slug()] = m.Name

		if strings.TrimSpace(m.AccessToken) == "" {
			errs = append(errs, fmt.Errorf("%s: access_token is required", label))
		} else if err := security.ValidateArgument(m.AccessToken, ""); err != nil {
			errs = append(errs, fmt.Errorf("%s: access_token: %w", label, err))
		}
		if m.MCPURL != "" {
			if err := security.ValidateEndpoint(m.MCPURL); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", label, err))
			}
		}
		for _, interest := range m.Interests {
			if err := security.ValidateArgument(interest, ","); err != nil {
				errs = append(errs, fmt.Errorf("%s: interest: %w", label, err))
			}
		}
		if err := security.ValidateArgument(m.PersonaFile, ""); err != nil {
			errs = append(errs, fmt.Errorf("%s: persona_file: %w", label, err))
		}
	}
	return errors.Join(errs...)
}
