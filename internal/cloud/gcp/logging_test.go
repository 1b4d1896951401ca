package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/logging"
)

type recordingWriter struct {
	mu       sync.Mutex
	entries  []logging.Entry
	flushes  int
	flushErr error
}

func (w *recordingWriter) Log(e logging.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, e)
}

func (w *recordingWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
	return w.flushErr
}

func TestCloudLogger_Log(t *testing.T) {
	w := &recordingWriter{}
	logger := NewCloudLoggerWithWriter(w, "alpha", map[string]string{"mode": "pull"})
	logger.SetLoop(7)

	logger.Log(SeverityWarning, "research failed", map[string]interface{}{
		"question_id": "q1",
		"message":     "must not override",
	})
	logger.LogInfo("loop started")
	logger.LogError("dispatch failed")

	if len(w.entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(w.entries))
	}

	e := w.entries[0]
	if e.Severity != logging.Warning {
		t.Errorf("Severity = %v, want Warning", e.Severity)
	}
	if e.Labels["mode"] != "pull" {
		t.Errorf("Labels = %v", e.Labels)
	}
	payload, ok := e.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("Payload type = %T", e.Payload)
	}
	if payload["message"] != "research failed" {
		t.Errorf("message = %v", payload["message"])
	}
	if payload["loop"] != 7 || payload["agent"] != "alpha" || payload["question_id"] != "q1" {
		t.Errorf("payload = %v", payload)
	}

	if w.entries[1].Severity != logging.Info || w.entries[2].Severity != logging.Error {
		t.Errorf("severities = %v, %v", w.entries[1].Severity, w.entries[2].Severity)
	}
}

func TestCloudLogger_FlushAndClose(t *testing.T) {
	w := &recordingWriter{}
	logger := NewCloudLoggerWithWriter(w, "alpha", nil)

	if err := logger.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if w.flushes != 2 {
		t.Errorf("flushes = %d, want 2", w.flushes)
	}

	logger.LogInfo("after close")
	if len(w.entries) != 0 {
		t.Errorf("entries written after close: %d", len(w.entries))
	}
	if err := logger.Flush(); err != nil {
		t.Errorf("Flush after close: %v", err)
	}
}

func TestCloudLogger_CloseFlushError(t *testing.T) {
	w := &recordingWriter{flushErr: errors.New("quota exceeded")}
	logger := NewCloudLoggerWithWriter(w, "alpha", nil)
	if err := logger.Close(); err == nil {
		t.Error("expected flush error from Close")
	}
}

func TestSeverityMapping(t *testing.T) {
	tests := map[Severity]logging.Severity{
		SeverityDebug:    logging.Debug,
		SeverityInfo:     logging.Info,
		SeverityWarning:  logging.Warning,
		SeverityError:    logging.Error,
		SeverityCritical: logging.Critical,
		SeverityDefault:  logging.Default,
		Severity("odd"):  logging.Default,
	}
	for in, want := range tests {
		if got := in.cloud(); got != want {
			t.Errorf("%s.cloud() = %v, want %v", in, got, want)
		}
	}
}

func TestFallbackLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFallbackLogger(&buf, "alpha", map[string]string{"mode": "push"})
	logger.SetLoop(3)
	logger.LogWarning("stream reconnecting")
	logger.Log(SeverityInfo, "answered", map[string]interface{}{"question_id": "q9"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("failed to parse entry: %v", err)
	}
	if entry.Severity != SeverityWarning || entry.Message != "stream reconnecting" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Agent != "alpha" || entry.Loop != 3 {
		t.Errorf("agent/loop = %q/%d", entry.Agent, entry.Loop)
	}
	if entry.Labels["component"] != "wikiagent" || entry.Labels["agent"] != "alpha" || entry.Labels["mode"] != "push" {
		t.Errorf("labels = %v", entry.Labels)
	}

	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("failed to parse entry: %v", err)
	}
	if entry.Fields["question_id"] != "q9" {
		t.Errorf("fields = %v", entry.Fields)
	}

	if logger.Flush() != nil || logger.Close() != nil {
		t.Error("Flush/Close should be no-ops")
	}
}

func TestFallbackLogger_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := NewFallbackLogger(&buf, "alpha", nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.LogInfo("tick")
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for i, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("line %d is not valid JSON: %q", i, line)
		}
	}
}

func TestNewLogger_NoCloudCredentialsIsHandled(t *testing.T) {
	// Without a project and off GCP the fallback is returned with no error.
	if IsRunningOnGCP() {
		t.Skip("running on GCP")
	}
	var buf bytes.Buffer
	logger, err := NewLogger(context.Background(), CloudLoggerConfig{Agent: "alpha"}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := logger.(*FallbackLogger); !ok {
		t.Fatalf("expected FallbackLogger, got %T", logger)
	}
	logger.LogInfo("hello")
	if !strings.Contains(buf.String(), `"message":"hello"`) {
		t.Errorf("fallback output = %q", buf.String())
	}
}
