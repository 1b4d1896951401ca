package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/events"
	"github.com/andywolf/wikiagent/internal/marketplace"
	"github.com/andywolf/wikiagent/internal/memory"
	"github.com/andywolf/wikiagent/internal/observability"
	"github.com/andywolf/wikiagent/internal/planner"
	"github.com/andywolf/wikiagent/internal/policy"
)

// BlendConfidence adds the weighted topic prior to the planner's
// confidence and clamps the result to [0,1].
func BlendConfidence(confidence, topicPrior float64) float64 {
	return planner.Clamp(confidence+topicPrior*TopicPriorWeight, 0, 1)
}

// AnswerGate is the final check on a decision. It returns whether to answer
// and, when not, why.
func AnswerGate(d planner.Decision, blended float64, p config.PolicyConfig) (bool, string) {
	switch {
	case !d.ShouldAnswer:
		return false, "planner declined: " + d.Reason
	case blended < p.MinConfidence:
		return false, fmt.Sprintf("blended confidence %.2f below %.2f", blended, p.MinConfidence)
	case d.ExpectedROI < p.MinROI:
		return false, fmt.Sprintf("expected ROI %.2f below %.2f", d.ExpectedROI, p.MinROI)
	}
	return true, d.Reason
}

// processQuestion evaluates one candidate and dispatches the result.
// counted reports whether the candidate counts toward the per-loop cap. A
// non-nil error leaves the question unmarked so a later loop retries it.
func (c *Controller) processQuestion(ctx context.Context, loop int, budget *marketplace.Budget, candidate marketplace.Question) (counted bool, err error) {
	q, err := c.market.GetQuestion(ctx, candidate.ID)
	if err != nil {
		if errors.Is(err, marketplace.ErrNotFound) {
			c.memory.MarkSeen(candidate.ID)
			c.record(loop, events.EventAbstain, candidate.ID, "question no longer exists", nil)
			return false, nil
		}
		return true, fmt.Errorf("get question %s: %w", candidate.ID, err)
	}
	c.stats.processed(c.now())

	topics := policy.InferTopics(q.Header, q.Content)
	trace := c.tracer.StartTrace(q.ID, observability.TraceOptions{
		Agent:  c.cfg.Agent.Name,
		Mode:   c.cfg.Agent.Mode,
		Loop:   loop,
		Topics: topics,
	})

	verdict := c.evaluator.ShouldRespond(policy.Subject{
		ID:      q.ID,
		Topic:   q.WikiID,
		Header:  q.Header,
		Content: q.Content,
	})
	if !verdict.Respond {
		reason := "policy: " + verdict.Reason
		c.auditEvent(ctx, "decision", map[string]interface{}{
			"questionId":   q.ID,
			"shouldAnswer": false,
			"policyScore":  verdict.Score,
			"reason":       reason,
		})
		c.recordAbstain(loop, q, topics, reason, nil, 0)
		c.react(ctx, loop, q, planner.VoteNone)
		c.tracer.CompleteTrace(trace, observability.CompleteOptions{Status: "skipped", Reason: reason})
		return true, nil
	}

	prior := c.memory.TopicPrior(topics)
	decision, research, err := c.decide(ctx, trace, planner.DecisionInput{
		Question:   *q,
		Budget:     budget,
		TopicPrior: prior,
		Topics:     topics,
		Similar:    c.similarPosts(ctx, q),
	})
	if err != nil {
		c.tracer.CompleteTrace(trace, observability.CompleteOptions{Status: "failed", Reason: err.Error()})
		return true, err
	}

	blended := BlendConfidence(decision.Confidence, prior)
	answer, reason := AnswerGate(decision, blended, c.cfg.Policy)

	c.auditEvent(ctx, "decision", map[string]interface{}{
		"questionId":        q.ID,
		"shouldAnswer":      answer,
		"confidence":        decision.Confidence,
		"blendedConfidence": blended,
		"expectedRoi":       decision.ExpectedROI,
		"bidAmountCents":    decision.BidAmountCents,
		"vote":              decision.Vote,
		"reason":            reason,
	})
	c.record(loop, events.EventDecision, q.ID, reason, map[string]interface{}{
		"shouldAnswer":      answer,
		"plannerAnswer":     decision.ShouldAnswer,
		"confidence":        decision.Confidence,
		"topicPrior":        prior,
		"blendedConfidence": blended,
		"expectedRoi":       decision.ExpectedROI,
		"researched":        len(research) > 0,
		"topics":            topics,
	})

	if decision.JoinWikiID != "" {
		c.joinWiki(ctx, loop, decision.JoinWikiID, "planner suggested")
	}

	if !answer {
		c.react(ctx, loop, q, planner.VoteNone)
		c.recordAbstain(loop, q, topics, reason, &decision, blended)
		c.tracer.CompleteTrace(trace, observability.CompleteOptions{Status: "abstained", Reason: reason})
		return true, nil
	}

	span := c.tracer.StartStage(trace, observability.StageCompose, observability.SpanOptions{})
	start := time.Now()
	text, gen, err := c.planner.Compose(ctx, *q, research)
	c.traceGeneration(span, gen)
	c.tracer.EndStage(span, stageStatus(err), time.Since(start).Milliseconds())
	if err != nil {
		c.tracer.CompleteTrace(trace, observability.CompleteOptions{Status: "failed", Reason: err.Error()})
		return true, fmt.Errorf("compose answer for %s: %w", q.ID, err)
	}

	bid := FinalBid(decision.BidAmountCents, c.cfg.Policy.DefaultBidCents)
	span = c.tracer.StartStage(trace, observability.StageDispatch, observability.SpanOptions{
		Metadata: map[string]string{"bidAmountCents": fmt.Sprint(bid)},
	})
	start = time.Now()
	res := c.dispatcher.SubmitAnswer(ctx, q.ID, text, bid)
	c.tracer.EndStage(span, string(res.Status), time.Since(start).Milliseconds())

	if res.Status == AnswerFailed && ctx.Err() != nil {
		c.tracer.CompleteTrace(trace, observability.CompleteOptions{Status: "failed", Reason: "cancelled"})
		return true, ctx.Err()
	}

	vote := planner.VoteNone
	if res.Status.Succeeded() {
		vote = decision.Vote
	}
	c.react(ctx, loop, q, vote)

	c.recordAnswer(loop, q, topics, decision, blended, bid, res)
	status := "answered"
	if !res.Status.Succeeded() {
		status = "failed"
	}
	c.tracer.CompleteTrace(trace, observability.CompleteOptions{Status: status, Reason: reason})
	return true, nil
}

// decide runs the planner and, when it asks for research, a second pass
// with research items. A research failure keeps the first decision.
func (c *Controller) decide(ctx context.Context, trace observability.TraceContext, in planner.DecisionInput) (planner.Decision, []marketplace.ResearchItem, error) {
	span := c.tracer.StartStage(trace, observability.StageDecide, observability.SpanOptions{})
	start := time.Now()
	d, gen, err := c.planner.Decide(ctx, in)
	c.traceGeneration(span, gen)
	c.tracer.EndStage(span, stageStatus(err), time.Since(start).Milliseconds())
	if err != nil {
		return planner.Decision{}, nil, fmt.Errorf("decide %s: %w", in.Question.ID, err)
	}

	if !d.ResearchNeeded || !c.cfg.Policy.Research {
		return d, nil, nil
	}

	span = c.tracer.StartStage(trace, observability.StageResearch, observability.SpanOptions{})
	start = time.Now()
	items, err := c.market.ResearchStackExchange(ctx, in.Question.Header, in.Topics, researchLimit)
	if err != nil {
		c.logWarning("research for %s failed, keeping first decision: %v", in.Question.ID, err)
		c.tracer.RecordSkipped(span, "research", err.Error())
		c.tracer.EndStage(span, "error", time.Since(start).Milliseconds())
		return d, nil, nil
	}
	if len(items) == 0 {
		c.tracer.RecordSkipped(span, "research", "no research items")
		c.tracer.EndStage(span, "completed", time.Since(start).Milliseconds())
		return d, nil, nil
	}

	in.Research = items
	second, gen, err := c.planner.Decide(ctx, in)
	c.traceGeneration(span, gen)
	c.tracer.EndStage(span, stageStatus(err), time.Since(start).Milliseconds())
	if err != nil {
		return planner.Decision{}, nil, fmt.Errorf("decide %s with research: %w", in.Question.ID, err)
	}
	return second, items, nil
}

// similarPosts is best-effort context for the planner.
func (c *Controller) similarPosts(ctx context.Context, q *marketplace.Question) []marketplace.Post {
	posts, err := c.market.SearchSimilarQuestions(ctx, q.Header)
	if err != nil {
		c.logWarning("similar question search for %s failed: %v", q.ID, err)
		return nil
	}
	if len(posts) > similarLimit {
		posts = posts[:similarLimit]
	}
	return posts
}

// recordAbstain marks q seen and records the abstention. Whether it counts
// as a topic loss is the abstain_counts_as_loss policy.
func (c *Controller) recordAbstain(loop int, q *marketplace.Question, topics []string, reason string, d *planner.Decision, blended float64) {
	outcome := memory.OutcomeNeutral
	if c.cfg.Policy.AbstainCountsAsLoss {
		outcome = memory.OutcomeFailure
	}

	entry := memory.HistoryEntry{
		Timestamp:  c.now().UTC(),
		QuestionID: q.ID,
		Action:     memory.ActionAbstain,
		Reason:     reason,
		Topics:     topics,
	}
	if d != nil {
		entry.Confidence = blended
		entry.ExpectedROI = d.ExpectedROI
	}

	c.memory.MarkSeen(q.ID)
	c.memory.RecordOutcome(topics, outcome)
	c.memory.AppendHistory(entry)

	c.record(loop, events.EventAbstain, q.ID, reason, map[string]interface{}{
		"outcome": string(outcome),
		"topics":  topics,
	})
}

// recordAnswer marks q seen and records the classified submission.
func (c *Controller) recordAnswer(loop int, q *marketplace.Question, topics []string, d planner.Decision, blended float64, bid int, res AnswerResult) {
	entry := memory.HistoryEntry{
		Timestamp:      c.now().UTC(),
		QuestionID:     q.ID,
		Reason:         d.Reason,
		Confidence:     blended,
		ExpectedROI:    d.ExpectedROI,
		BidAmountCents: bid,
		Tx:             res.Tx,
		Topics:         topics,
	}

	outcome := memory.OutcomeSuccess
	switch res.Status {
	case AnswerPosted:
		entry.Action = memory.ActionAnswered
		c.stats.answered()
		c.logInfo("answered %s with bid %d (tx %s)", q.ID, bid, res.Tx)
	case AnswerDuplicate:
		entry.Action = memory.ActionAlreadyAnswered
		c.logInfo("answer for %s already present, treating as success", q.ID)
	default:
		outcome = memory.OutcomeFailure
		entry.Action = memory.ActionAnswerFailed
		entry.Error = res.Err.Error()
		c.stats.setError(res.Err)
		if errors.Is(res.Err, ErrFundingNotConfigured) {
			c.logError("answer for %s needs payment: set marketplace.funded once a payout source is configured: %v", q.ID, res.Err)
		} else {
			c.logError("answer for %s failed: %v", q.ID, res.Err)
		}
	}

	c.memory.MarkSeen(q.ID)
	c.memory.RecordOutcome(topics, outcome)
	c.memory.AppendHistory(entry)

	data := map[string]interface{}{
		"status":         string(res.Status),
		"bidAmountCents": bid,
		"topics":         topics,
	}
	if res.Tx != "" {
		data["tx"] = res.Tx
	}
	if entry.Error != "" {
		data["error"] = entry.Error
	}
	c.record(loop, events.EventAnswer, q.ID, d.Reason, data)
}

func stageStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "completed"
}
