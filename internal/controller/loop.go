package controller

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/events"
	"github.com/andywolf/wikiagent/internal/marketplace"
)

// iteration describes one pass over a batch of candidates.
type iteration struct {
	name     string
	scanGate bool
	limit    int // 0 means no cap
	onError  string
	fetch    func(ctx context.Context) ([]marketplace.Question, error)
}

// iterationResult summarises one pass.
type iterationResult struct {
	Loop      int
	Skipped   string
	Fetched   int
	Processed int
	Errors    int
	Aborted   bool
}

// runIteration runs one loop iteration. Memory is saved before it returns,
// whatever happened to the candidates.
func (c *Controller) runIteration(ctx context.Context, it iteration) (res iterationResult) {
	loop := c.memory.BeginLoop(c.now())
	res.Loop = loop
	if c.cloudLogger != nil {
		c.cloudLogger.SetLoop(loop)
	}
	c.record(loop, events.EventLoopStart, "", it.name, nil)

	defer func() {
		c.saveMemory(ctx)
		c.publishStatus(ctx)
	}()

	budget, err := c.market.AgentBudget(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
		res.Skipped = "cancelled"
		return res
	case err != nil:
		c.logWarning("budget check failed, continuing without a snapshot: %v", err)
		budget = nil
	case budget.Paused:
		res.Skipped = "budget paused"
		c.record(loop, events.EventLoopSkip, "", res.Skipped, nil)
		return res
	}

	if it.scanGate && c.rand.Float64() >= c.cfg.Loop.ScanProbability {
		res.Skipped = "scan gate"
		c.record(loop, events.EventLoopSkip, "", res.Skipped, map[string]interface{}{
			"scanProbability": c.cfg.Loop.ScanProbability,
		})
		return res
	}

	candidates, err := it.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			res.Errors++
			c.logError("%s: failed to fetch candidates: %v", it.name, err)
			c.stats.setError(err)
			c.record(loop, events.EventError, "", err.Error(), map[string]interface{}{"stage": "fetch"})
		}
		return res
	}
	res.Fetched = len(candidates)

	for _, q := range candidates {
		if ctx.Err() != nil {
			break
		}
		if it.limit > 0 && res.Processed >= it.limit {
			break
		}
		if q.ID == "" || c.memory.HasSeen(q.ID) {
			continue
		}

		counted, err := c.processQuestion(ctx, loop, budget, q)
		if counted {
			res.Processed++
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			c.logInfo("abandoned %s on shutdown", q.ID)
			break
		}
		res.Errors++
		c.logError("question %s failed: %v", q.ID, err)
		c.stats.setError(err)
		c.record(loop, events.EventError, q.ID, err.Error(), nil)
		if it.onError == config.OnErrorAbort {
			res.Aborted = true
			break
		}
	}

	if c.cfg.Policy.Wiki.Discovery && ctx.Err() == nil {
		c.maintainWikis(ctx, loop)
	}
	return res
}

// runPull scans open questions every loop interval until ctx is cancelled.
func (c *Controller) runPull(ctx context.Context) error {
	it := c.scanIteration()
	for {
		res := c.runIteration(ctx, it)
		c.logger.Info("loop finished",
			zap.Int("loop", res.Loop),
			zap.String("skipped", res.Skipped),
			zap.Int("fetched", res.Fetched),
			zap.Int("processed", res.Processed),
			zap.Int("errors", res.Errors),
			zap.Bool("aborted", res.Aborted),
		)

		if !c.wait(ctx, c.cfg.Loop.Interval) {
			return ctx.Err()
		}
	}
}

// scanIteration is the pull-mode pass: scan gate, capped, shuffled.
func (c *Controller) scanIteration() iteration {
	return iteration{
		name:     "scan",
		scanGate: true,
		limit:    c.cfg.Loop.MaxNewPerLoop,
		onError:  c.cfg.Loop.OnError,
		fetch:    c.pullCandidates,
	}
}

// pullCandidates lists open questions in random order.
func (c *Controller) pullCandidates(ctx context.Context) ([]marketplace.Question, error) {
	questions, err := c.market.ListOpenQuestions(ctx, c.cfg.Loop.MaxQuestions)
	if err != nil {
		return nil, err
	}
	c.rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	return questions, nil
}

// wait sleeps for d. It returns false if ctx ended first.
func (c *Controller) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
