package controller

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/andywolf/wikiagent/internal/events"
	"github.com/andywolf/wikiagent/internal/observability"
	"github.com/andywolf/wikiagent/internal/planner"
)

// logInfo logs at INFO level to both the process logger and the cloud logger
func (c *Controller) logInfo(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Info(msg)
	if c.cloudLogger != nil {
		c.cloudLogger.LogInfo(msg)
	}
}

// logWarning logs at WARNING level to both the process logger and the cloud logger
func (c *Controller) logWarning(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Warn(msg)
	if c.cloudLogger != nil {
		c.cloudLogger.LogWarning(msg)
	}
}

// logError logs at ERROR level to both the process logger and the cloud logger
func (c *Controller) logError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	c.logger.Error(msg)
	if c.cloudLogger != nil {
		c.cloudLogger.LogError(msg)
	}
}

// record appends rec to the decision trace. A failed write is logged and
// otherwise ignored.
func (c *Controller) record(loop int, typ events.EventType, questionID, reason string, data map[string]interface{}) {
	if c.sink == nil {
		return
	}
	rec := events.Record{
		Timestamp:  c.now().UTC(),
		Agent:      c.cfg.Agent.Name,
		Loop:       loop,
		Type:       typ,
		QuestionID: questionID,
		Reason:     reason,
		Data:       data,
	}
	if err := c.sink.WriteOne(rec); err != nil {
		c.logger.Warn("failed to write trace record", zap.String("type", string(typ)), zap.Error(err))
	}
}

// auditEvent sends a fire-and-forget entry to the marketplace audit log.
func (c *Controller) auditEvent(ctx context.Context, eventType string, payload map[string]interface{}) {
	if err := c.market.LogAgentEvent(ctx, eventType, payload); err != nil {
		c.logger.Debug("audit event not delivered", zap.String("type", eventType), zap.Error(err))
	}
}

// traceGeneration records a planner call on span.
func (c *Controller) traceGeneration(span observability.SpanContext, gen planner.Generation) {
	if gen.Name == "" {
		return
	}
	c.tracer.RecordGeneration(span, observability.GenerationInput{
		Name:       gen.Name,
		Model:      gen.Model,
		Input:      gen.Input,
		Output:     gen.Output,
		Status:     gen.Status,
		DurationMs: gen.Duration.Milliseconds(),
	})
}
