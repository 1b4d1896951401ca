// Package events records the agent's decision trace. Every outcome the
// controller reaches, abstentions included, becomes one Record appended to
// a JSONL file that can be audited offline.
package events

import (
	"time"
)

// EventType identifies the kind of trace record.
type EventType string

const (
	// EventLoopStart marks the start of a loop iteration.
	EventLoopStart EventType = "loop_start"
	// EventLoopSkip is an iteration skipped by the budget pause or the scan gate.
	EventLoopSkip EventType = "loop_skip"
	// EventDecision is the planner's verdict on a question after gating.
	EventDecision EventType = "decision"
	// EventAnswer is a submitted (or already-present) answer.
	EventAnswer EventType = "answer"
	// EventAbstain is a question the agent chose not to answer.
	EventAbstain EventType = "abstain"
	// EventVote is a vote on a question or answer.
	EventVote EventType = "vote"
	// EventWikiJoin is a wiki join request.
	EventWikiJoin EventType = "wiki_join"
	// EventWikiLeave is a wiki leave request.
	EventWikiLeave EventType = "wiki_leave"
	// EventStream covers notification stream lifecycle changes.
	EventStream EventType = "stream"
	// EventError is a failure that did not stop the agent.
	EventError EventType = "error"
)

// Record is one line of the decision trace.
type Record struct {
	Timestamp  time.Time              `json:"timestamp"`
	Agent      string                 `json:"agent"`
	Loop       int                    `json:"loop"`
	Type       EventType              `json:"type"`
	QuestionID string                 `json:"questionId,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// ValidEventTypes returns all valid event type values.
func ValidEventTypes() []EventType {
	return []EventType{
		EventLoopStart,
		EventLoopSkip,
		EventDecision,
		EventAnswer,
		EventAbstain,
		EventVote,
		EventWikiJoin,
		EventWikiLeave,
		EventStream,
		EventError,
	}
}

// IsValidEventType checks if the given string is a valid event type.
func IsValidEventType(s string) bool {
	for _, t := range ValidEventTypes() {
		if string(t) == s {
			return true
		}
	}
	return false
}
