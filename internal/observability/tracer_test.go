package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNoOpTracer(t *testing.T) {
	tracer := &NoOpTracer{}

	trace := tracer.StartTrace("q-1", TraceOptions{Agent: "alpha"})
	if trace.QuestionID != "q-1" {
		t.Errorf("QuestionID = %q", trace.QuestionID)
	}
	span := tracer.StartStage(trace, StageDecide, SpanOptions{})
	if span.Stage != StageDecide {
		t.Errorf("Stage = %q", span.Stage)
	}
	tracer.RecordGeneration(span, GenerationInput{Name: "decide"})
	tracer.RecordSkipped(span, "research", "not requested")
	tracer.EndStage(span, "completed", 10)
	tracer.CompleteTrace(trace, CompleteOptions{Status: "abstained"})

	if err := tracer.Flush(context.Background()); err != nil {
		t.Errorf("NoOpTracer.Flush() returned error: %v", err)
	}
	if err := tracer.Stop(context.Background()); err != nil {
		t.Errorf("NoOpTracer.Stop() returned error: %v", err)
	}
}

func TestTracerInterfaces(t *testing.T) {
	var _ Tracer = &NoOpTracer{}
	var _ Tracer = &LangfuseTracer{}
	var _ Tracer = &OTelTracer{}
}

func TestLangfuseTracerSendsBatches(t *testing.T) {
	var mu sync.Mutex
	var receivedBatches []ingestionPayload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ingestionPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") == "" {
			t.Error("missing Authorization header")
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read error", http.StatusInternalServerError)
			return
		}
		var payload ingestionPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("failed to unmarshal body: %v", err)
			http.Error(w, "parse error", http.StatusBadRequest)
			return
		}

		mu.Lock()
		receivedBatches = append(receivedBatches, payload)
		mu.Unlock()

		_, _ = w.Write([]byte(`{"successes":[],"errors":[]}`))
	}))
	defer server.Close()

	tracer := NewLangfuseTracer(LangfuseConfig{
		PublicKey: "pk-test",
		SecretKey: "sk-test",
		BaseURL:   server.URL + "/",
	}, zap.NewNop())

	trace := tracer.StartTrace("q-123", TraceOptions{Agent: "alpha", Mode: "pull", Loop: 4, Topics: []string{"crypto"}})
	decide := tracer.StartStage(trace, StageDecide, SpanOptions{})
	tracer.RecordGeneration(decide, GenerationInput{Name: "decide", Model: "openclaw-7b", Status: "completed", DurationMs: 1200})
	tracer.EndStage(decide, "completed", 1250)

	research := tracer.StartStage(trace, StageResearch, SpanOptions{})
	tracer.RecordSkipped(research, "research", "not requested")
	tracer.EndStage(research, "skipped", 0)

	tracer.CompleteTrace(trace, CompleteOptions{Status: "abstained", Reason: "low confidence"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracer.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()

	eventTypes := make(map[string]int)
	for _, batch := range receivedBatches {
		for _, evt := range batch.Batch {
			eventTypes[evt.Type]++
		}
	}

	expectations := map[string]int{
		"trace-create":      2,
		"span-create":       2,
		"generation-create": 1,
		"event-create":      1,
		"span-update":       2,
	}
	for evtType, expected := range expectations {
		if got := eventTypes[evtType]; got != expected {
			t.Errorf("expected %d %s events, got %d", expected, evtType, got)
		}
	}
}

func TestLangfuseTracerAuthHeader(t *testing.T) {
	var mu sync.Mutex
	var receivedAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		receivedAuth = r.Header.Get("Authorization")
		mu.Unlock()
		_, _ = w.Write([]byte(`{"successes":[],"errors":[]}`))
	}))
	defer server.Close()

	tracer := NewLangfuseTracer(LangfuseConfig{
		PublicKey: "pk-abc",
		SecretKey: "sk-xyz",
		BaseURL:   server.URL,
	}, nil)

	tracer.StartTrace("q-1", TraceOptions{})

	ctx := context.Background()
	if err := tracer.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	_ = tracer.Stop(ctx)

	mu.Lock()
	defer mu.Unlock()
	// base64("pk-abc:sk-xyz")
	if receivedAuth != "Basic cGstYWJjOnNrLXh5eg==" {
		t.Errorf("unexpected auth header %q", receivedAuth)
	}
}

func TestLangfuseTracerDefaultBaseURL(t *testing.T) {
	tracer := NewLangfuseTracer(LangfuseConfig{PublicKey: "pk", SecretKey: "sk"}, zap.NewNop())
	defer func() { _ = tracer.Stop(context.Background()) }()

	if tracer.BaseURL() != defaultBaseURL {
		t.Errorf("expected default base URL %q, got %q", defaultBaseURL, tracer.BaseURL())
	}
}

func TestLangfuseTracerAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	}))
	defer server.Close()

	tracer := NewLangfuseTracer(LangfuseConfig{
		PublicKey: "bad-key",
		SecretKey: "bad-secret",
		BaseURL:   server.URL,
	}, zap.NewNop())

	tracer.StartTrace("q-1", TraceOptions{})
	if err := tracer.Flush(context.Background()); err == nil {
		t.Error("expected error for 401 response, got nil")
	}
	if err := tracer.Ping(context.Background()); err == nil {
		t.Error("expected ping error for 401 response, got nil")
	}
	_ = tracer.Stop(context.Background())
}

func TestLangfuseTracerContexts(t *testing.T) {
	tracer := NewLangfuseTracer(LangfuseConfig{
		PublicKey: "pk",
		SecretKey: "sk",
		BaseURL:   "http://localhost:1",
	}, zap.NewNop())
	defer func() { _ = tracer.Stop(context.Background()) }()

	trace := tracer.StartTrace("q-42", TraceOptions{Agent: "alpha", Mode: "push"})
	if trace.TraceID == "" || trace.TraceID == "q-42" {
		t.Errorf("expected a generated trace id, got %q", trace.TraceID)
	}
	if trace.QuestionID != "q-42" {
		t.Errorf("QuestionID = %q", trace.QuestionID)
	}
	if trace.Metadata["mode"] != "push" {
		t.Errorf("mode metadata = %q", trace.Metadata["mode"])
	}

	span := tracer.StartStage(trace, StageCompose, SpanOptions{})
	if span.Stage != StageCompose || span.TraceID != trace.TraceID || span.SpanID == "" {
		t.Errorf("unexpected span context %+v", span)
	}
}

func TestOTelTracerStdout(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := NewOTelTracer(context.Background(), OTelConfig{Exporter: ExporterStdout, Writer: &buf})
	if err != nil {
		t.Fatalf("NewOTelTracer: %v", err)
	}

	trace := tracer.StartTrace("q-7", TraceOptions{Agent: "alpha", Topics: []string{"science"}})
	stage := tracer.StartStage(trace, StageDecide, SpanOptions{Metadata: map[string]string{"pass": "1"}})
	tracer.RecordGeneration(stage, GenerationInput{Name: "decide", Model: "m", DurationMs: 5})
	tracer.RecordSkipped(stage, "research", "not requested")
	tracer.EndStage(stage, "completed", 6)
	tracer.CompleteTrace(trace, CompleteOptions{Status: "answered"})

	// Left open on purpose; Stop must end it.
	tracer.StartTrace("q-8", TraceOptions{})

	if err := tracer.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"Name":"question"`, `"Name":"decide"`, `"Name":"planner.decide"`, "q-7", "q-8", "research skipped"} {
		if !strings.Contains(out, want) {
			t.Errorf("exporter output missing %s", want)
		}
	}
}

func TestNewTracer(t *testing.T) {
	ctx := context.Background()

	tr, err := NewTracer(ctx, Options{}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*NoOpTracer); !ok {
		t.Errorf("expected NoOpTracer, got %T", tr)
	}

	tr, err = NewTracer(ctx, Options{Langfuse: LangfuseConfig{PublicKey: "pk", SecretKey: "sk", BaseURL: "http://localhost:1"}}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*LangfuseTracer); !ok {
		t.Errorf("expected LangfuseTracer, got %T", tr)
	}
	_ = tr.Stop(ctx)

	tr, err = NewTracer(ctx, Options{OTel: OTelConfig{Exporter: ExporterStdout, Writer: io.Discard}}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*OTelTracer); !ok {
		t.Errorf("expected OTelTracer, got %T", tr)
	}
	_ = tr.Stop(ctx)

	if _, err := NewTracer(ctx, Options{OTel: OTelConfig{Exporter: "zipkin"}}, zap.NewNop()); err == nil {
		t.Error("expected error for unknown exporter")
	}
}
