package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Exporter types.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

// OTelConfig configures the OpenTelemetry tracer.
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Exporter       string // stdout or otlp
	Endpoint       string // otlp only
	Insecure       bool
	Writer         io.Writer // stdout only; defaults to os.Stdout
}

// OTelTracer maps question traces onto OpenTelemetry spans. Each question
// trace is a root span, each stage a child, and each planner call a child of
// its stage.
type OTelTracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer

	mu     sync.Mutex
	traces map[string]trace.Span
	stages map[string]trace.Span
}

// NewOTelTracer builds a tracer provider with a batching exporter.
func NewOTelTracer(ctx context.Context, cfg OTelConfig) (*OTelTracer, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "wikiagent"
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		exporter = exp
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	return &OTelTracer{
		provider: provider,
		tracer:   provider.Tracer("github.com/andywolf/wikiagent"),
		traces:   make(map[string]trace.Span),
		stages:   make(map[string]trace.Span),
	}, nil
}

// StartTrace opens a root span for a question.
func (t *OTelTracer) StartTrace(questionID string, opts TraceOptions) TraceContext {
	_, span := t.tracer.Start(context.Background(), "question",
		trace.WithAttributes(
			attribute.String("question.id", questionID),
			attribute.String("agent.name", opts.Agent),
			attribute.String("agent.mode", opts.Mode),
			attribute.Int("agent.loop", opts.Loop),
			attribute.StringSlice("question.topics", opts.Topics),
		))

	id := span.SpanContext().SpanID().String()
	t.mu.Lock()
	t.traces[id] = span
	t.mu.Unlock()

	return TraceContext{
		TraceID:    id,
		QuestionID: questionID,
		Metadata:   map[string]string{"agent": opts.Agent, "mode": opts.Mode},
	}
}

// StartStage opens a child span under the question span.
func (t *OTelTracer) StartStage(tc TraceContext, stage string, opts SpanOptions) SpanContext {
	t.mu.Lock()
	parent := t.traces[tc.TraceID]
	t.mu.Unlock()

	ctx := context.Background()
	if parent != nil {
		ctx = trace.ContextWithSpan(ctx, parent)
	}

	attrs := make([]attribute.KeyValue, 0, len(opts.Metadata))
	for k, v := range opts.Metadata {
		attrs = append(attrs, attribute.String(k, v))
	}
	_, span := t.tracer.Start(ctx, stage, trace.WithAttributes(attrs...))

	id := span.SpanContext().SpanID().String()
	t.mu.Lock()
	t.stages[id] = span
	t.mu.Unlock()

	return SpanContext{SpanID: id, Stage: stage, TraceID: tc.TraceID}
}

// RecordGeneration records a planner call as a completed child span.
func (t *OTelTracer) RecordGeneration(sc SpanContext, gen GenerationInput) {
	t.mu.Lock()
	parent := t.stages[sc.SpanID]
	t.mu.Unlock()
	if parent == nil {
		return
	}

	end := time.Now()
	start := end.Add(-time.Duration(gen.DurationMs) * time.Millisecond)
	ctx := trace.ContextWithSpan(context.Background(), parent)
	_, span := t.tracer.Start(ctx, "planner."+gen.Name,
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String("planner.model", gen.Model),
			attribute.Int("planner.input_chars", len(gen.Input)),
			attribute.Int("planner.output_chars", len(gen.Output)),
		))
	if gen.Status == "error" {
		span.SetStatus(codes.Error, "planner call failed")
	}
	span.End(trace.WithTimestamp(end))
}

// RecordSkipped adds an event to the stage span.
func (t *OTelTracer) RecordSkipped(sc SpanContext, component string, reason string) {
	t.mu.Lock()
	span := t.stages[sc.SpanID]
	t.mu.Unlock()
	if span == nil {
		return
	}
	span.AddEvent(component+" skipped", trace.WithAttributes(attribute.String("skip.reason", reason)))
}

// EndStage ends the stage span.
func (t *OTelTracer) EndStage(sc SpanContext, status string, durationMs int64) {
	t.mu.Lock()
	span := t.stages[sc.SpanID]
	delete(t.stages, sc.SpanID)
	t.mu.Unlock()
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String("stage.status", status), attribute.Int64("stage.duration_ms", durationMs))
	if strings.EqualFold(status, "error") || strings.EqualFold(status, "failed") {
		span.SetStatus(codes.Error, status)
	}
	span.End()
}

// CompleteTrace ends the question span.
func (t *OTelTracer) CompleteTrace(tc TraceContext, opts CompleteOptions) {
	t.mu.Lock()
	span := t.traces[tc.TraceID]
	delete(t.traces, tc.TraceID)
	t.mu.Unlock()
	if span == nil {
		return
	}
	span.SetAttributes(attribute.String("question.status", opts.Status), attribute.String("question.reason", opts.Reason))
	if opts.Status == "failed" {
		span.SetStatus(codes.Error, opts.Reason)
	}
	span.End()
}

// Flush exports all finished spans.
func (t *OTelTracer) Flush(ctx context.Context) error {
	return t.provider.ForceFlush(ctx)
}

// Stop ends any spans left open and shuts the provider down.
func (t *OTelTracer) Stop(ctx context.Context) error {
	t.mu.Lock()
	for id, span := range t.stages {
		span.End()
		delete(t.stages, id)
	}
	for id, span := range t.traces {
		span.End()
		delete(t.traces, id)
	}
	t.mu.Unlock()
	return t.provider.Shutdown(ctx)
}
