// Package security keeps credentials out of logs, trace records and prompts,
// and validates operator input that ends up in file names or child process
// arguments.
package security

import (
	"regexp"
	"strings"
	"sync"
)

const redacted = "[REDACTED]"

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

// Rules are applied in order; earlier rules see the raw text.
var defaultRules = []rule{
	{regexp.MustCompile(`(?s)-----BEGIN[ A-Z]*PRIVATE KEY-----.*?-----END[ A-Z]*PRIVATE KEY-----`), "[REDACTED-PRIVATE-KEY]"},
	{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-./+=]{8,}`), "Bearer " + redacted},
	{regexp.MustCompile(`(?i)(access[_-]?token|api[_-]?key|secret[_-]?key|public[_-]?key|password|passwd|secret|token)(["']?\s*[:=]\s*["']?)[^\s"',}]{8,}`), "${1}${2}" + redacted},
	{regexp.MustCompile(`(?i)\b(https?|rediss?)://([^:/@\s]+):([^@\s]+)@`), "${1}://${2}:" + redacted + "@"},
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), "[REDACTED-JWT]"},
	{regexp.MustCompile(`\bsk-(?:lf-)?[A-Za-z0-9_\-]{16,}`), "sk-" + redacted},
	{regexp.MustCompile(`\bpk-lf-[A-Za-z0-9_\-]{8,}`), "pk-lf-" + redacted},
	{regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{35}\b`), "AIza" + redacted},
}

// minSecretLength keeps short literals from redacting ordinary words.
const minSecretLength = 6

// Scrubber removes credentials from text. It is safe for concurrent use.
type Scrubber struct {
	mu      sync.RWMutex
	rules   []rule
	secrets []string
}

// NewScrubber returns a Scrubber with the default credential patterns.
func NewScrubber() *Scrubber {
	return &Scrubber{rules: append([]rule(nil), defaultRules...)}
}

// AddSecret registers a literal value, such as a configured access token,
// to be redacted wherever it appears.
func (s *Scrubber) AddSecret(secret string) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretLength {
		return
	}
	s.mu.Lock()
	s.secrets = append(s.secrets, secret)
	s.mu.Unlock()
}

// AddPattern registers an extra pattern whose matches are fully redacted.
func (s *Scrubber) AddPattern(pattern *regexp.Regexp) {
	s.mu.Lock()
	s.rules = append(s.rules, rule{pattern: pattern, replacement: redacted})
	s.mu.Unlock()
}

// Scrub returns input with every known credential replaced.
func (s *Scrubber) Scrub(input string) string {
	if input == "" {
		return input
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := input
	for _, secret := range s.secrets {
		out = strings.ReplaceAll(out, secret, redacted)
	}
	for _, r := range s.rules {
		out = r.pattern.ReplaceAllString(out, r.replacement)
	}
	return out
}

// ScrubMap scrubs every value of m. Values under keys that name a
// credential are redacted outright.
func (s *Scrubber) ScrubMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if isSensitiveKey(k) {
			out[k] = redacted
			continue
		}
		out[k] = s.Scrub(v)
	}
	return out
}

// ContainsSensitive reports whether Scrub would change input.
func (s *Scrubber) ContainsSensitive(input string) bool {
	return s.Scrub(input) != input
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, keyword := range []string{"password", "secret", "token", "apikey", "api_key", "credential", "authorization"} {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
