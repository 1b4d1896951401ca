package policy

import (
	"fmt"
	"sort"
	"strings"
)

// GeneralTopic is the home wiki and the fallback topic for questions with
// no recognisable category.
const GeneralTopic = "general"

// WikiConfig configures wiki membership gates.
type WikiConfig struct {
	MinRelevance   int
	JoinThreshold  int
	LeaveThreshold int
	Home           string
	AllowLeaveHome bool
}

func (w WikiConfig) withDefaults() WikiConfig {
	if w.MinRelevance <= 0 {
		w.MinRelevance = 40
	}
	if w.JoinThreshold <= 0 {
		w.JoinThreshold = 50
	}
	if w.LeaveThreshold <= 0 {
		w.LeaveThreshold = 50
	}
	if w.Home == "" {
		w.Home = GeneralTopic
	}
	return w
}

// WikiCandidate is a wiki the agent could join.
type WikiCandidate struct {
	ID        string
	Relevance int
}

// WikiVerdict is the outcome of a join or leave gate.
type WikiVerdict struct {
	Act    bool
	WikiID string
	Score  int
	Reason string
}

// WikiRelevance scores wiki text against the configured interests as the
// share of interests that appear in it, 0..100. Without interests every
// wiki is equally relevant at 50.
func (e *Evaluator) WikiRelevance(text string) int {
	if len(e.interests) == 0 {
		return 50
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, term := range e.interests {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return matched * 100 / len(e.interests)
}

// EvaluateWikiJoin picks the most relevant candidate and lets it through
// only if it clears both the relevance floor and the hashed join gate.
func (e *Evaluator) EvaluateWikiJoin(candidates []WikiCandidate) WikiVerdict {
	if len(candidates) == 0 {
		return WikiVerdict{Reason: "no wiki candidates"}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Relevance > best.Relevance || (c.Relevance == best.Relevance && c.ID < best.ID) {
			best = c
		}
	}

	if best.Relevance < e.cfg.Wiki.MinRelevance {
		return WikiVerdict{
			WikiID: best.ID,
			Reason: fmt.Sprintf("best relevance %d below minimum %d", best.Relevance, e.cfg.Wiki.MinRelevance),
		}
	}

	score := Score(e.cfg.Salt, "join", best.ID)
	if score < e.cfg.Wiki.JoinThreshold {
		return WikiVerdict{
			WikiID: best.ID,
			Score:  score,
			Reason: fmt.Sprintf("join score %d below threshold %d", score, e.cfg.Wiki.JoinThreshold),
		}
	}

	return WikiVerdict{
		Act:    true,
		WikiID: best.ID,
		Score:  score,
		Reason: fmt.Sprintf("relevance %d, join score %d", best.Relevance, score),
	}
}

// EvaluateWikiLeave fires only when the agent holds more than
// maxSubscriptions memberships. The candidate is the lexicographically last
// joined wiki, skipping the home wiki unless leaving it is allowed.
func (e *Evaluator) EvaluateWikiLeave(joined []string, maxSubscriptions int) WikiVerdict {
	if len(joined) <= maxSubscriptions {
		return WikiVerdict{Reason: fmt.Sprintf("%d memberships within cap %d", len(joined), maxSubscriptions)}
	}

	ids := make([]string, 0, len(joined))
	for _, id := range joined {
		if id == e.cfg.Wiki.Home && !e.cfg.Wiki.AllowLeaveHome {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return WikiVerdict{Reason: "only the home wiki is joined"}
	}
	sort.Strings(ids)
	candidate := ids[len(ids)-1]

	score := Score(e.cfg.Salt, "leave", candidate)
	if score < e.cfg.Wiki.LeaveThreshold {
		return WikiVerdict{
			WikiID: candidate,
			Score:  score,
			Reason: fmt.Sprintf("leave score %d below threshold %d", score, e.cfg.Wiki.LeaveThreshold),
		}
	}

	return WikiVerdict{
		Act:    true,
		WikiID: candidate,
		Score:  score,
		Reason: fmt.Sprintf("%d memberships over cap %d", len(joined), maxSubscriptions),
	}
}
