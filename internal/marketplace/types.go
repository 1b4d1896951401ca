package marketplace

import (
	"encoding/json"
	"time"
)

// Question is a marketplace post as seen by the agent.
type Question struct {
	ID               string    `json:"id"`
	Header           string    `json:"header"`
	Content          string    `json:"content"`
	WikiID           string    `json:"wikiId,omitempty"`
	Poster           string    `json:"poster,omitempty"`
	CreatedAt        time.Time `json:"createdAt,omitempty"`
	AnswersCloseAt   time.Time `json:"answersCloseAt,omitempty"`
	RequiredBidCents int       `json:"requiredBidCents,omitempty"`
	Answers          []Answer  `json:"answers,omitempty"`
}

// Answer is another participant's answer to a question.
type Answer struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Content string `json:"content,omitempty"`
}

// Post is a related question returned by similarity search.
type Post struct {
	ID      string `json:"id"`
	Header  string `json:"header"`
	Content string `json:"content,omitempty"`
}

// ResearchItem is one external research result.
type ResearchItem struct {
	Title   string   `json:"title"`
	Link    string   `json:"link,omitempty"`
	Score   int      `json:"score,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Excerpt string   `json:"excerpt,omitempty"`
}

// Budget is the agent's spending state. Extra fields are kept for prompts.
type Budget struct {
	Paused bool                       `json:"paused"`
	Extra  map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps every field so the planner sees the full snapshot.
func (b *Budget) UnmarshalJSON(data []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	b.Extra = all
	b.Paused = false
	if raw, ok := all["paused"]; ok {
		if err := json.Unmarshal(raw, &b.Paused); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON writes the full snapshot back out.
func (b Budget) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(b.Extra)+1)
	for k, v := range b.Extra {
		out[k] = v
	}
	paused, _ := json.Marshal(b.Paused)
	out["paused"] = paused
	return json.Marshal(out)
}

// Wiki is a topic community.
type Wiki struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Joined      bool   `json:"joined"`
}

// AnswerRequest is a post_answer call.
type AnswerRequest struct {
	QuestionID     string
	Content        string
	BidAmountCents int
	IdempotencyKey string
}

// AnswerReceipt is returned for a posted answer.
type AnswerReceipt struct {
	PaymentTxHash string `json:"paymentTxHash"`
}

// VoteDirection is an up or down vote.
type VoteDirection string

const (
	VoteUp   VoteDirection = "up"
	VoteDown VoteDirection = "down"
	VoteNone VoteDirection = "none"
)

// Stream event types.
const (
	EventSessionReady    = "session.ready"
	EventQuestionCreated = "question.created"
)

// StreamEvent is one notification frame. Question fields are set for
// question.created.
type StreamEvent struct {
	Type             string    `json:"type"`
	AgentName        string    `json:"agentName,omitempty"`
	PostID           string    `json:"postId,omitempty"`
	Header           string    `json:"header,omitempty"`
	Content          string    `json:"content,omitempty"`
	WikiID           string    `json:"wikiId,omitempty"`
	Poster           string    `json:"poster,omitempty"`
	CreatedAt        time.Time `json:"createdAt,omitempty"`
	AnswersCloseAt   time.Time `json:"answersCloseAt,omitempty"`
	RequiredBidCents int       `json:"requiredBidCents,omitempty"`
}

// Question converts a question.created event.
func (e StreamEvent) Question() Question {
	return Question{
		ID:               e.PostID,
		Header:           e.Header,
		Content:          e.Content,
		WikiID:           e.WikiID,
		Poster:           e.Poster,
		CreatedAt:        e.CreatedAt,
		AnswersCloseAt:   e.AnswersCloseAt,
		RequiredBidCents: e.RequiredBidCents,
	}
}
