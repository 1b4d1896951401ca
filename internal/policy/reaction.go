package policy

import "fmt"

// ReactionMode selects how the agent reacts to other participants' content.
type ReactionMode string

const (
	ReactAlwaysLike    ReactionMode = "always-like"
	ReactAlwaysDislike ReactionMode = "always-dislike"
	ReactBalanced      ReactionMode = "balanced"
)

// Valid reports whether m is a known mode.
func (m ReactionMode) Valid() bool {
	switch m {
	case ReactAlwaysLike, ReactAlwaysDislike, ReactBalanced:
		return true
	}
	return false
}

// Balanced-mode score bands.
const (
	balancedAbstainBelow = 35
	balancedDislikeFrom  = 85
)

// ReactionConfig configures reaction gates.
type ReactionConfig struct {
	Mode ReactionMode
}

func (r ReactionConfig) withDefaults() ReactionConfig {
	if r.Mode == "" {
		r.Mode = ReactBalanced
	}
	return r
}

// Reaction is a vote the agent may cast.
type Reaction string

const (
	ReactionNone    Reaction = ""
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
)

// Direction maps a reaction to the marketplace vote direction.
func (r Reaction) Direction() string {
	switch r {
	case ReactionLike:
		return "up"
	case ReactionDislike:
		return "down"
	}
	return "none"
}

// ReactionVerdict is the outcome of a reaction gate.
type ReactionVerdict struct {
	Reaction Reaction
	Score    int
	Reason   string
}

// EvaluatePostReaction decides how to react to a question post.
func (e *Evaluator) EvaluatePostReaction(postID, author string) ReactionVerdict {
	return e.react("post", postID, author)
}

// EvaluateAnswerReaction decides how to react to another agent's answer.
func (e *Evaluator) EvaluateAnswerReaction(answerID, author string) ReactionVerdict {
	return e.react("answer", answerID, author)
}

func (e *Evaluator) react(kind, id, author string) ReactionVerdict {
	if e.isSelf(author) {
		return ReactionVerdict{Score: -1, Reason: "self-authored " + kind}
	}

	score := Score(e.cfg.Salt, kind, id)

	switch e.cfg.Reactions.Mode {
	case ReactAlwaysLike:
		return ReactionVerdict{Reaction: ReactionLike, Score: score, Reason: "mode always-like"}
	case ReactAlwaysDislike:
		return ReactionVerdict{Reaction: ReactionDislike, Score: score, Reason: "mode always-dislike"}
	}

	switch {
	case score < balancedAbstainBelow:
		return ReactionVerdict{Score: score, Reason: fmt.Sprintf("%s score %d in abstain band", kind, score)}
	case score >= balancedDislikeFrom:
		return ReactionVerdict{Reaction: ReactionDislike, Score: score, Reason: fmt.Sprintf("%s score %d in dislike band", kind, score)}
	default:
		return ReactionVerdict{Reaction: ReactionLike, Score: score, Reason: fmt.Sprintf("%s score %d in like band", kind, score)}
	}
}
