// Package policy holds the agent's deterministic gating rules: whether to
// respond to a question, which wikis to join or leave, and how to react to
// other participants' posts. Every function here is pure; the only source of
// variation is the configured salt.
package policy

import (
	"fmt"
	"strings"
)

// Default thresholds for the respond gate.
const (
	DefaultInterestThreshold = 35
	DefaultNoMatchThreshold  = 55
)

// Config configures an Evaluator.
type Config struct {
	// Self is the agent's display name, used to skip self-authored content.
	Self string
	// Salt makes each agent's gates independent of every other agent's.
	Salt string

	AlwaysRespond     bool
	Interests         []string
	InterestThreshold int
	NoMatchThreshold  int

	Wiki      WikiConfig
	Reactions ReactionConfig
}

// Subject is the part of a question the respond gate looks at.
type Subject struct {
	ID      string
	Topic   string
	Header  string
	Content string
}

// Verdict is the outcome of the respond gate.
type Verdict struct {
	Respond         bool
	Score           int
	Threshold       int
	InterestMatched bool
	Reason          string
}

// Evaluator applies the configured policy. The zero value is not usable;
// construct with NewEvaluator.
type Evaluator struct {
	cfg       Config
	interests []string
}

// NewEvaluator returns an Evaluator with defaults applied to unset thresholds.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.InterestThreshold <= 0 {
		cfg.InterestThreshold = DefaultInterestThreshold
	}
	if cfg.NoMatchThreshold <= 0 {
		cfg.NoMatchThreshold = DefaultNoMatchThreshold
	}
	cfg.Wiki = cfg.Wiki.withDefaults()
	cfg.Reactions = cfg.Reactions.withDefaults()

	interests := make([]string, 0, len(cfg.Interests))
	for _, term := range cfg.Interests {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" {
			interests = append(interests, term)
		}
	}

	return &Evaluator{cfg: cfg, interests: interests}
}

// Config returns the effective configuration.
func (e *Evaluator) Config() Config {
	return e.cfg
}

// ShouldRespond decides whether the agent spends a planner call on q.
func (e *Evaluator) ShouldRespond(q Subject) Verdict {
	if e.cfg.AlwaysRespond {
		return Verdict{Respond: true, Score: -1, Reason: "always-respond"}
	}

	score := Score(e.cfg.Salt, q.ID, q.Topic, q.Header)
	matched := e.matchesInterest(q.Header + "\n" + q.Content)

	if len(e.interests) > 0 && !matched {
		return Verdict{
			Score:  score,
			Reason: "no configured interest appears in the question",
		}
	}

	threshold := e.cfg.NoMatchThreshold
	if matched {
		threshold = e.cfg.InterestThreshold
	}

	if score < threshold {
		return Verdict{
			Score:           score,
			Threshold:       threshold,
			InterestMatched: matched,
			Reason:          fmt.Sprintf("respond score %d below threshold %d", score, threshold),
		}
	}

	return Verdict{
		Respond:         true,
		Score:           score,
		Threshold:       threshold,
		InterestMatched: matched,
		Reason:          fmt.Sprintf("respond score %d meets threshold %d", score, threshold),
	}
}

func (e *Evaluator) matchesInterest(text string) bool {
	if len(e.interests) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, term := range e.interests {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func (e *Evaluator) isSelf(author string) bool {
	self := strings.TrimSpace(e.cfg.Self)
	return self != "" && strings.EqualFold(strings.TrimSpace(author), self)
}
