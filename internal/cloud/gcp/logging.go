// Package gcp holds the Google Cloud integrations: Cloud Logging, Secret
// Manager, and instance metadata status publishing.
package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"
)

// Severity levels for structured logs
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) cloud() logging.Severity {
	switch s {
	case SeverityDebug:
		return logging.Debug
	case SeverityInfo:
		return logging.Info
	case SeverityWarning:
		return logging.Warning
	case SeverityError:
		return logging.Error
	case SeverityCritical:
		return logging.Critical
	default:
		return logging.Default
	}
}

// LogEntry is the JSON shape written by FallbackLogger.
type LogEntry struct {
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Agent     string                 `json:"agent"`
	Loop      int                    `json:"loop"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LoggerInterface defines the interface for cloud logging operations
type LoggerInterface interface {
	Log(severity Severity, message string, fields map[string]interface{})
	LogInfo(message string)
	LogWarning(message string)
	LogError(message string)
	SetLoop(loop int)
	Flush() error
	Close() error
}

// EntryWriter is the part of *logging.Logger the CloudLogger uses.
type EntryWriter interface {
	Log(e logging.Entry)
	Flush() error
}

// CloudLoggerConfig configures a Cloud Logging writer.
type CloudLoggerConfig struct {
	ProjectID string
	LogID     string
	Agent     string
	Labels    map[string]string
}

// CloudLogger writes entries to Cloud Logging through the logging client.
type CloudLogger struct {
	writer EntryWriter
	client *logging.Client
	agent  string
	loop   int
	labels map[string]string
	mu     sync.Mutex
	closed bool
}

// NewCloudLogger connects to Cloud Logging for cfg.ProjectID. Labels
// (plus the agent name) are attached to every entry.
func NewCloudLogger(ctx context.Context, cfg CloudLoggerConfig, opts ...option.ClientOption) (*CloudLogger, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("cloud logging requires a project ID")
	}
	if cfg.LogID == "" {
		cfg.LogID = "wikiagent"
	}

	client, err := logging.NewClient(ctx, "projects/"+cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}
	client.OnError = func(err error) {
		fmt.Fprintf(os.Stderr, `{"severity":"ERROR","message":"cloud logging: %v"}`+"\n", err)
	}

	labels := mergeLabels(cfg.Agent, cfg.Labels)
	cl := NewCloudLoggerWithWriter(client.Logger(cfg.LogID, logging.CommonLabels(labels)), cfg.Agent, nil)
	cl.client = client
	return cl, nil
}

// NewCloudLoggerWithWriter creates a CloudLogger around an existing writer.
// Labels given here are added per entry.
func NewCloudLoggerWithWriter(w EntryWriter, agent string, labels map[string]string) *CloudLogger {
	return &CloudLogger{
		writer: w,
		agent:  agent,
		labels: labels,
	}
}

// Log writes a structured log entry
func (cl *CloudLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return
	}

	payload := map[string]interface{}{
		"message": message,
		"agent":   cl.agent,
		"loop":    cl.loop,
	}
	for k, v := range fields {
		if _, reserved := payload[k]; !reserved {
			payload[k] = v
		}
	}

	cl.writer.Log(logging.Entry{
		Timestamp: time.Now().UTC(),
		Severity:  severity.cloud(),
		Payload:   payload,
		Labels:    cl.labels,
	})
}

// LogInfo writes an INFO level log entry
func (cl *CloudLogger) LogInfo(message string) {
	cl.Log(SeverityInfo, message, nil)
}

// LogWarning writes a WARNING level log entry
func (cl *CloudLogger) LogWarning(message string) {
	cl.Log(SeverityWarning, message, nil)
}

// LogError writes an ERROR level log entry
func (cl *CloudLogger) LogError(message string) {
	cl.Log(SeverityError, message, nil)
}

// SetLoop updates the loop number for subsequent logs
func (cl *CloudLogger) SetLoop(loop int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.loop = loop
}

// Flush sends buffered entries.
func (cl *CloudLogger) Flush() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	return cl.writer.Flush()
}

// Close flushes remaining entries and closes the client.
func (cl *CloudLogger) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.closed {
		return nil
	}
	cl.closed = true

	if err := cl.writer.Flush(); err != nil {
		if cl.client != nil {
			_ = cl.client.Close()
		}
		return fmt.Errorf("failed to flush logs: %w", err)
	}
	if cl.client != nil {
		return cl.client.Close()
	}
	return nil
}

// FallbackLogger writes Cloud Logging style JSON lines to a local writer.
type FallbackLogger struct {
	writer io.Writer
	agent  string
	loop   int
	labels map[string]string
	mu     sync.Mutex
}

// NewFallbackLogger creates a logger that writes structured JSON to the given writer
func NewFallbackLogger(writer io.Writer, agent string, labels map[string]string) *FallbackLogger {
	return &FallbackLogger{
		writer: writer,
		agent:  agent,
		labels: mergeLabels(agent, labels),
	}
}

// Log writes a structured log entry to the writer
func (fl *FallbackLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	entry := LogEntry{
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Agent:     fl.agent,
		Loop:      fl.loop,
		Labels:    fl.labels,
		Fields:    fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(fl.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(fl.writer, "%s\n", data)
}

// LogInfo writes an INFO level log entry
func (fl *FallbackLogger) LogInfo(message string) {
	fl.Log(SeverityInfo, message, nil)
}

// LogWarning writes a WARNING level log entry
func (fl *FallbackLogger) LogWarning(message string) {
	fl.Log(SeverityWarning, message, nil)
}

// LogError writes an ERROR level log entry
func (fl *FallbackLogger) LogError(message string) {
	fl.Log(SeverityError, message, nil)
}

// SetLoop updates the loop number for subsequent logs
func (fl *FallbackLogger) SetLoop(loop int) {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	fl.loop = loop
}

// Flush is a no-op for the fallback logger (writes are synchronous)
func (fl *FallbackLogger) Flush() error {
	return nil
}

// Close is a no-op for the fallback logger
func (fl *FallbackLogger) Close() error {
	return nil
}

// NewLogger returns a CloudLogger when a project is configured or the
// process runs on GCP, and a FallbackLogger on fallback otherwise. A Cloud
// Logging setup failure also yields the fallback, along with the error so
// the caller can report it.
func NewLogger(ctx context.Context, cfg CloudLoggerConfig, fallback io.Writer, opts ...option.ClientOption) (LoggerInterface, error) {
	if fallback == nil {
		fallback = os.Stderr
	}
	if cfg.ProjectID == "" && !IsRunningOnGCP() {
		return NewFallbackLogger(fallback, cfg.Agent, cfg.Labels), nil
	}

	if cfg.ProjectID == "" {
		projectID, err := getProjectID(ctx)
		if err != nil {
			return NewFallbackLogger(fallback, cfg.Agent, cfg.Labels), err
		}
		cfg.ProjectID = projectID
	}

	cl, err := NewCloudLogger(ctx, cfg, opts...)
	if err != nil {
		return NewFallbackLogger(fallback, cfg.Agent, cfg.Labels), err
	}
	return cl, nil
}

func mergeLabels(agent string, labels map[string]string) map[string]string {
	merged := map[string]string{"component": "wikiagent"}
	if agent != "" {
		merged["agent"] = agent
	}
	for k, v := range labels {
		merged[k] = v
	}
	return merged
}

// IsRunningOnGCP returns true if the GCP metadata server is reachable.
// The short timeout keeps startup fast elsewhere.
func IsRunningOnGCP() bool {
	client := &http.Client{Timeout: 200 * time.Millisecond}
	req, err := http.NewRequest(http.MethodGet, metadataBaseURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Ensure CloudLogger implements LoggerInterface
var _ LoggerInterface = (*CloudLogger)(nil)

// Ensure FallbackLogger implements LoggerInterface
var _ LoggerInterface = (*FallbackLogger)(nil)
