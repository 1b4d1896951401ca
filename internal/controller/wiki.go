package controller

import (
	"context"
	"strings"

	"github.com/andywolf/wikiagent/internal/events"
	"github.com/andywolf/wikiagent/internal/marketplace"
	"github.com/andywolf/wikiagent/internal/policy"
)

// maintainWikis runs the join and leave gates over the agent's wiki
// memberships. Failures are logged and never stop the loop.
func (c *Controller) maintainWikis(ctx context.Context, loop int) {
	wikis, err := c.market.ListWikis(ctx)
	if err != nil {
		c.logWarning("list wikis failed: %v", err)
		return
	}

	var joined []string
	var candidates []policy.WikiCandidate
	for _, w := range wikis {
		if w.Joined {
			joined = append(joined, w.ID)
			continue
		}
		candidates = append(candidates, policy.WikiCandidate{
			ID:        w.ID,
			Relevance: c.evaluator.WikiRelevance(strings.Join([]string{w.ID, w.Name, w.Description}, " ")),
		})
	}

	if join := c.evaluator.EvaluateWikiJoin(candidates); join.Act {
		if c.joinWiki(ctx, loop, join.WikiID, join.Reason) {
			joined = append(joined, join.WikiID)
		}
	} else if len(candidates) > 0 {
		c.logger.Debug("no wiki joined: " + join.Reason)
	}

	if leave := c.evaluator.EvaluateWikiLeave(joined, c.cfg.Policy.Wiki.MaxSubscriptions); leave.Act {
		c.leaveWiki(ctx, loop, leave.WikiID, leave.Reason)
	}
}

func (c *Controller) joinWiki(ctx context.Context, loop int, wikiID, reason string) bool {
	wikiID = strings.ToLower(strings.TrimSpace(wikiID))
	if wikiID == "" {
		return false
	}
	err := c.dispatcher.JoinWiki(ctx, wikiID)
	data := map[string]interface{}{"wikiId": wikiID}
	if err != nil {
		c.logWarning("%v", err)
		data["error"] = err.Error()
	} else {
		c.logInfo("joined wiki %s (%s)", wikiID, reason)
	}
	c.record(loop, events.EventWikiJoin, "", reason, data)
	return err == nil
}

func (c *Controller) leaveWiki(ctx context.Context, loop int, wikiID, reason string) {
	err := c.dispatcher.LeaveWiki(ctx, wikiID)
	data := map[string]interface{}{"wikiId": wikiID}
	if err != nil {
		c.logWarning("%v", err)
		data["error"] = err.Error()
	} else {
		c.logInfo("left wiki %s (%s)", wikiID, reason)
	}
	c.record(loop, events.EventWikiLeave, "", reason, data)
}

// react votes on q and its answers. An up or down vote from the planner
// wins over the reaction policy for the question itself; callers pass it
// only once the agent's answer has been accepted.
func (c *Controller) react(ctx context.Context, loop int, q *marketplace.Question, plannerVote string) {
	rc := c.cfg.Policy.Reactions

	direction := marketplace.VoteDirection(plannerVote)
	reason := "planner vote"
	if direction != marketplace.VoteUp && direction != marketplace.VoteDown {
		direction = marketplace.VoteNone
		if rc.Enabled && rc.Posts {
			v := c.evaluator.EvaluatePostReaction(q.ID, q.Poster)
			direction = marketplace.VoteDirection(v.Reaction.Direction())
			reason = v.Reason
		}
	}
	c.vote(ctx, loop, q.ID, q.ID, direction, reason)

	if !rc.Enabled || !rc.Answers {
		return
	}
	for _, a := range q.Answers {
		v := c.evaluator.EvaluateAnswerReaction(a.ID, a.Author)
		c.vote(ctx, loop, q.ID, a.ID, marketplace.VoteDirection(v.Reaction.Direction()), v.Reason)
	}
}

func (c *Controller) vote(ctx context.Context, loop int, questionID, postID string, direction marketplace.VoteDirection, reason string) {
	if direction != marketplace.VoteUp && direction != marketplace.VoteDown {
		return
	}
	err := c.dispatcher.Vote(ctx, postID, direction)
	data := map[string]interface{}{
		"postId":    postID,
		"direction": string(direction),
	}
	if err != nil {
		c.logWarning("%v", err)
		data["error"] = err.Error()
	}
	c.record(loop, events.EventVote, questionID, reason, data)
}
