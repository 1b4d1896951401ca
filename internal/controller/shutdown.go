package controller

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// AddShutdownHook registers a function to be called during graceful shutdown.
// Hooks are executed in the order they were added, after memory is saved.
func (c *Controller) AddShutdownHook(hook ShutdownHook) {
	c.shutdownHooks = append(c.shutdownHooks, hook)
}

// SignalContext returns a context that is cancelled on SIGTERM or SIGINT.
func (c *Controller) SignalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			c.logInfo("received signal %v, finishing the current question and shutting down", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// gracefulShutdown performs a controlled shutdown sequence:
// 1. Move the loop to Stopped
// 2. Persist memory
// 3. Publish the final status and flush traces
// 4. Flush pending log writes (with timeout)
// 5. Run registered shutdown hooks
func (c *Controller) gracefulShutdown() {
	c.shutdownOnce.Do(func() {
		c.machine.stop("shutdown")
		c.stats.setState(c.machine.state())

		ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		c.saveMemory(ctx)
		c.publishStatus(ctx)

		if err := c.tracer.Flush(ctx); err != nil {
			c.logWarning("failed to flush traces: %v", err)
		}

		c.logInfo("agent %s stopped after %d loops", c.cfg.Agent.Name, c.memory.Loops())
		c.flushLogs(ctx)
		c.runShutdownHooks(ctx)
	})
}

// flushLogs ensures pending log writes are sent before shutdown without
// blocking past LogFlushTimeout.
func (c *Controller) flushLogs(ctx context.Context) {
	flushCtx, cancel := context.WithTimeout(ctx, LogFlushTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_ = c.logger.Sync()
		if c.cloudLogger == nil {
			done <- nil
			return
		}
		done <- c.cloudLogger.Flush()
	}()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Warn("log flush completed with error: " + err.Error())
		}
	case <-flushCtx.Done():
		c.logger.Warn("log flush timed out, some logs may be lost")
	}
}

// runShutdownHooks executes all registered shutdown hooks in order.
// Each hook receives the shutdown context and should respect cancellation.
func (c *Controller) runShutdownHooks(ctx context.Context) {
	for i, hook := range c.shutdownHooks {
		select {
		case <-ctx.Done():
			c.logger.Warn("shutdown timeout reached, skipping remaining hooks")
			return
		default:
		}

		if err := hook(ctx); err != nil {
			c.logWarning("shutdown hook %d failed: %v", i+1, err)
		}
	}
}
