package observability

import "context"

// NoOpTracer is a tracer that does nothing. It is used when no tracing
// backend is configured.
type NoOpTracer struct{}

func (n *NoOpTracer) StartTrace(questionID string, _ TraceOptions) TraceContext {
	return TraceContext{QuestionID: questionID}
}

func (n *NoOpTracer) StartStage(trace TraceContext, stage string, _ SpanOptions) SpanContext {
	return SpanContext{Stage: stage, TraceID: trace.TraceID}
}

func (n *NoOpTracer) RecordGeneration(_ SpanContext, _ GenerationInput) {}

func (n *NoOpTracer) RecordSkipped(_ SpanContext, _ string, _ string) {}

func (n *NoOpTracer) EndStage(_ SpanContext, _ string, _ int64) {}

func (n *NoOpTracer) CompleteTrace(_ TraceContext, _ CompleteOptions) {}

func (n *NoOpTracer) Flush(_ context.Context) error { return nil }

func (n *NoOpTracer) Stop(_ context.Context) error { return nil }
