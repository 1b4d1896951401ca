package controller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/events"
	"github.com/andywolf/wikiagent/internal/marketplace"
)

// Reconnect backoff for the notification stream.
const (
	streamInitialBackoff = time.Second
	streamMaxBackoff     = 30 * time.Second
)

// runPush optionally backfills, then follows the notification stream until
// ctx is cancelled.
func (c *Controller) runPush(ctx context.Context) error {
	if c.cfg.Agent.StartupBackfill {
		c.backfill(ctx)
	}
	return c.listen(ctx)
}

// backfill runs every known question through the pipeline once, oldest
// first. A failure on one question does not stop the rest.
func (c *Controller) backfill(ctx context.Context) {
	res := c.runIteration(ctx, iteration{
		name:    "backfill",
		onError: config.OnErrorIsolate,
		fetch:   c.market.ListPosts,
	})
	c.logInfo("backfill finished: %d fetched, %d processed, %d failed", res.Fetched, res.Processed, res.Errors)
}

// listen keeps a stream subscription open, reconnecting with exponential
// backoff. The backoff resets once a session becomes ready.
func (c *Controller) listen(ctx context.Context) error {
	backoff := streamInitialBackoff
	for {
		c.stats.setConnected(false)
		err := c.market.Subscribe(ctx, c.handleStreamEvent, func(err error) {
			c.logWarning("notification stream: %v", err)
		})
		wasReady := c.Status().Connected
		c.stats.setConnected(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if wasReady {
			backoff = streamInitialBackoff
		}

		if err != nil && !errors.Is(err, marketplace.ErrStreamClosed) {
			c.stats.setError(err)
		}
		c.logWarning("notification stream disconnected (%v), reconnecting in %s", err, backoff)
		c.record(c.memory.Loops(), events.EventStream, "", "disconnected", map[string]interface{}{
			"error":   errString(err),
			"backoff": backoff.String(),
		})

		if !c.wait(ctx, backoff) {
			return ctx.Err()
		}
		backoff *= 2
		if backoff > streamMaxBackoff {
			backoff = streamMaxBackoff
		}
	}
}

// handleStreamEvent processes one notification. Each new question is its
// own loop iteration.
func (c *Controller) handleStreamEvent(ctx context.Context, ev marketplace.StreamEvent) error {
	switch ev.Type {
	case marketplace.EventSessionReady:
		c.stats.setConnected(true)
		c.logInfo("notification stream ready (agent %s)", ev.AgentName)
		c.record(c.memory.Loops(), events.EventStream, "", "session ready", nil)
	case marketplace.EventQuestionCreated:
		q := ev.Question()
		if q.ID == "" {
			return errors.New("question.created event without a post id")
		}
		if c.memory.HasSeen(q.ID) {
			return nil
		}
		res := c.runIteration(ctx, iteration{
			name:    "stream",
			limit:   1,
			onError: c.cfg.Loop.OnError,
			fetch: func(context.Context) ([]marketplace.Question, error) {
				return []marketplace.Question{q}, nil
			},
		})
		if res.Errors > 0 && ctx.Err() == nil {
			c.logger.Warn("stream question failed", zap.String("question_id", q.ID), zap.Int("loop", res.Loop))
		}
	default:
		c.logger.Debug("ignoring stream event", zap.String("type", ev.Type))
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
