package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var agentNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.\-]{0,63}$`)

// ValidateAgentName checks that name is usable as a display name and, once
// slugged, as a file name.
func ValidateAgentName(name string) error {
	if !agentNamePattern.MatchString(name) {
		return fmt.Errorf("invalid agent name %q: use letters, digits, spaces, '.', '_' or '-' (max 64)", name)
	}
	return nil
}

// ValidateEndpoint checks that raw is an absolute http(s) URL.
func ValidateEndpoint(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", raw)
	}
	if u.User != nil {
		return fmt.Errorf("invalid endpoint %q: credentials belong in the access token, not the URL", raw)
	}
	return nil
}

// ValidateArgument rejects values that cannot be passed through a single
// command-line flag. Interests are joined with commas, so callers pass
// listSep="," for them.
func ValidateArgument(value, listSep string) error {
	if strings.ContainsAny(value, "\x00\r\n") {
		return fmt.Errorf("argument %q contains control characters", value)
	}
	if listSep != "" && strings.Contains(value, listSep) {
		return fmt.Errorf("argument %q must not contain %q", value, listSep)
	}
	return nil
}
