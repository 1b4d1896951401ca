package memory

import "time"

// Outcome is the result recorded against a question's topics.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeNeutral counts the topic as seen without a win or a loss.
	OutcomeNeutral Outcome = "neutral"
)

// History actions.
const (
	ActionAnswered        = "answered"
	ActionAlreadyAnswered = "already-answered"
	ActionAbstain         = "abstain"
	ActionAnswerFailed    = "answer-failed"
)

// TopicStats counts outcomes for one topic. Counters only ever grow.
type TopicStats struct {
	Win  int `json:"win"`
	Loss int `json:"loss"`
	Seen int `json:"seen"`
}

// HistoryEntry is one decision in the agent's audit history.
type HistoryEntry struct {
	Timestamp      time.Time `json:"ts"`
	QuestionID     string    `json:"questionId"`
	Action         string    `json:"action"`
	Reason         string    `json:"reason,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	ExpectedROI    float64   `json:"expectedRoi,omitempty"`
	BidAmountCents int       `json:"bidAmountCents,omitempty"`
	Tx             string    `json:"tx,omitempty"`
	Error          string    `json:"error,omitempty"`
	Topics         []string  `json:"topics,omitempty"`
}

// Data is the persisted snapshot of an agent's memory.
type Data struct {
	Version          string                 `json:"version"`
	SeenQuestionIDs  []string               `json:"seenQuestionIds"`
	TopicPerformance map[string]*TopicStats `json:"topicPerformance"`
	History          []HistoryEntry         `json:"history"`
	LastLoopAt       *time.Time             `json:"lastLoopAt"`
	Loops            int                    `json:"loops"`
}

func newData() *Data {
	return &Data{
		Version:          "1",
		SeenQuestionIDs:  []string{},
		TopicPerformance: map[string]*TopicStats{},
		History:          []HistoryEntry{},
	}
}

// Config bounds the store.
type Config struct {
	MaxSeen    int
	MaxHistory int
}

const (
	DefaultMaxSeen    = 5000
	DefaultMaxHistory = 1000
)
