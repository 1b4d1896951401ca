package gcp

import (
	"fmt"

	"github.com/andywolf/wikiagent/internal/security"
)

// SecureLogger scrubs credentials from messages and string fields before
// handing them to the wrapped logger.
type SecureLogger struct {
	LoggerInterface
	scrubber *security.Scrubber
}

// NewSecureLogger wraps inner. A nil scrubber gets the default patterns.
func NewSecureLogger(inner LoggerInterface, scrubber *security.Scrubber) *SecureLogger {
	if scrubber == nil {
		scrubber = security.NewScrubber()
	}
	return &SecureLogger{LoggerInterface: inner, scrubber: scrubber}
}

// Log scrubs message and every string field value.
func (sl *SecureLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	var clean map[string]interface{}
	if fields != nil {
		clean = make(map[string]interface{}, len(fields))
		for k, v := range fields {
			switch val := v.(type) {
			case string:
				clean[k] = sl.scrubber.Scrub(val)
			case error:
				clean[k] = sl.scrubber.Scrub(val.Error())
			case fmt.Stringer:
				clean[k] = sl.scrubber.Scrub(val.String())
			default:
				clean[k] = v
			}
		}
	}
	sl.LoggerInterface.Log(severity, sl.scrubber.Scrub(message), clean)
}

// LogInfo writes a scrubbed INFO entry.
func (sl *SecureLogger) LogInfo(message string) {
	sl.Log(SeverityInfo, message, nil)
}

// LogWarning writes a scrubbed WARNING entry.
func (sl *SecureLogger) LogWarning(message string) {
	sl.Log(SeverityWarning, message, nil)
}

// LogError writes a scrubbed ERROR entry.
func (sl *SecureLogger) LogError(message string) {
	sl.Log(SeverityError, message, nil)
}

var _ LoggerInterface = (*SecureLogger)(nil)
