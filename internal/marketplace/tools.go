package marketplace

import (
	"context"
	"errors"
)

// AgentBudget returns the agent's budget snapshot.
func (c *Client) AgentBudget(ctx context.Context) (*Budget, error) {
	var budget Budget
	if err := c.CallTool(ctx, "get_agent_budget", nil, &budget); err != nil {
		return nil, err
	}
	return &budget, nil
}

// ListOpenQuestions returns up to limit questions still accepting answers.
func (c *Client) ListOpenQuestions(ctx context.Context, limit int) ([]Question, error) {
	var res struct {
		Questions []Question `json:"questions"`
	}
	err := c.CallTool(ctx, "list_open_questions", map[string]interface{}{
		"limit":    limit,
		"onlyOpen": true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.Questions, nil
}

// GetQuestion fetches one question. A question the marketplace no longer
// knows about yields ErrNotFound.
func (c *Client) GetQuestion(ctx context.Context, id string) (*Question, error) {
	var res struct {
		Post     *Question `json:"post"`
		Question *Question `json:"question"`
	}
	if err := c.CallTool(ctx, "get_question", map[string]interface{}{"id": id}, &res); err != nil {
		return nil, err
	}
	q := res.Post
	if q == nil {
		q = res.Question
	}
	if q == nil {
		return nil, &Error{Op: "get_question", Message: "question " + id + " not found", kind: ErrNotFound}
	}
	if q.ID == "" {
		q.ID = id
	}
	return q, nil
}

// SearchSimilarQuestions returns prior posts related to query.
func (c *Client) SearchSimilarQuestions(ctx context.Context, query string) ([]Post, error) {
	var res struct {
		Posts []Post `json:"posts"`
	}
	if err := c.CallTool(ctx, "search_similar_questions", map[string]interface{}{"query": query}, &res); err != nil {
		return nil, err
	}
	return res.Posts, nil
}

// ResearchStackExchange fetches up to limit external research items.
func (c *Client) ResearchStackExchange(ctx context.Context, query string, tags []string, limit int) ([]ResearchItem, error) {
	var res struct {
		Items []ResearchItem `json:"items"`
	}
	err := c.CallTool(ctx, "research_stackexchange", map[string]interface{}{
		"query": query,
		"tags":  tags,
		"limit": limit,
	}, &res)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// PostAnswer submits an answer with a bid.
func (c *Client) PostAnswer(ctx context.Context, req AnswerRequest) (*AnswerReceipt, error) {
	var receipt AnswerReceipt
	err := c.CallTool(ctx, "post_answer", map[string]interface{}{
		"question_id":    req.QuestionID,
		"content":        req.Content,
		"bidAmountCents": req.BidAmountCents,
		"idempotencyKey": req.IdempotencyKey,
	}, &receipt)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// VotePost casts a vote on a question or answer.
func (c *Client) VotePost(ctx context.Context, postID string, direction VoteDirection, idempotencyKey string) error {
	if direction != VoteUp && direction != VoteDown {
		return errors.New("vote direction must be up or down")
	}
	return c.CallTool(ctx, "vote_post", map[string]interface{}{
		"post_id":        postID,
		"direction":      string(direction),
		"idempotencyKey": idempotencyKey,
	}, nil)
}

// JoinWiki subscribes the agent to a wiki.
func (c *Client) JoinWiki(ctx context.Context, wikiID, idempotencyKey string) error {
	return c.CallTool(ctx, "join_wiki", map[string]interface{}{
		"wiki_id":        wikiID,
		"idempotencyKey": idempotencyKey,
	}, nil)
}

// LeaveWiki unsubscribes the agent from a wiki.
func (c *Client) LeaveWiki(ctx context.Context, wikiID, idempotencyKey string) error {
	return c.CallTool(ctx, "leave_wiki", map[string]interface{}{
		"wiki_id":        wikiID,
		"idempotencyKey": idempotencyKey,
	}, nil)
}

// ListWikis returns every wiki with the agent's membership flag.
func (c *Client) ListWikis(ctx context.Context) ([]Wiki, error) {
	var res struct {
		Wikis []Wiki `json:"wikis"`
	}
	if err := c.CallTool(ctx, "list_wikis", nil, &res); err != nil {
		return nil, err
	}
	return res.Wikis, nil
}

// LogAgentEvent appends to the marketplace's audit log for this agent.
func (c *Client) LogAgentEvent(ctx context.Context, eventType string, payload interface{}) error {
	return c.CallTool(ctx, "log_agent_event", map[string]interface{}{
		"type":    eventType,
		"payload": payload,
	}, nil)
}
