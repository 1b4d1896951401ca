package observability

import (
	"context"

	"go.uber.org/zap"
)

// Tracer records how the agent handled each question.
//
// Trace hierarchy:
//
//	Question (Trace)
//	  └── Stage (Span): decide, research, compose, dispatch
//	        ├── Planner call (Generation)
//	        └── Skipped step (Event)
type Tracer interface {
	StartTrace(questionID string, opts TraceOptions) TraceContext
	StartStage(trace TraceContext, stage string, opts SpanOptions) SpanContext
	RecordGeneration(span SpanContext, gen GenerationInput)
	RecordSkipped(span SpanContext, component string, reason string)
	EndStage(span SpanContext, status string, durationMs int64)
	CompleteTrace(trace TraceContext, opts CompleteOptions)
	Flush(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Stage names.
const (
	StageDecide   = "decide"
	StageResearch = "research"
	StageCompose  = "compose"
	StageDispatch = "dispatch"
)

// TraceContext holds the context for an active question trace.
type TraceContext struct {
	TraceID    string
	QuestionID string
	Metadata   map[string]string
}

// SpanContext holds the context for an active stage.
type SpanContext struct {
	SpanID  string
	Stage   string
	TraceID string
}

// TraceOptions configures a new trace.
type TraceOptions struct {
	Agent  string
	Mode   string
	Loop   int
	Topics []string
}

// SpanOptions configures a new span.
type SpanOptions struct {
	Metadata map[string]string
}

// GenerationInput describes a planner call to record.
type GenerationInput struct {
	Name       string // "decide", "decide-with-research" or "compose"
	Model      string
	Input      string
	Output     string
	Status     string // "completed" or "error"
	DurationMs int64
}

// CompleteOptions configures trace completion.
type CompleteOptions struct {
	Status string // "answered", "abstained", "skipped" or "failed"
	Reason string
}

// Options selects a tracing backend. Langfuse wins when both keys are set,
// then an OpenTelemetry exporter; otherwise tracing is off.
type Options struct {
	Langfuse LangfuseConfig
	OTel     OTelConfig
}

// NewTracer returns the tracer selected by opts.
func NewTracer(ctx context.Context, opts Options, logger *zap.Logger) (Tracer, error) {
	if opts.Langfuse.PublicKey != "" && opts.Langfuse.SecretKey != "" {
		return NewLangfuseTracer(opts.Langfuse, logger), nil
	}
	switch opts.OTel.Exporter {
	case "", ExporterNone:
		return &NoOpTracer{}, nil
	default:
		tracer, err := NewOTelTracer(ctx, opts.OTel)
		if err != nil {
			return nil, err
		}
		return tracer, nil
	}
}
