package policy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWikiRelevance(t *testing.T) {
	e := NewEvaluator(Config{Interests: []string{"rust", "go", "databases", "chess"}})
	assert.Equal(t, 50, e.WikiRelevance("Rust and Go systems programming"))
	assert.Equal(t, 0, e.WikiRelevance("knitting"))

	none := NewEvaluator(Config{})
	assert.Equal(t, 50, none.WikiRelevance("anything"))
}

func TestEvaluateWikiJoin(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		v := NewEvaluator(Config{}).EvaluateWikiJoin(nil)
		assert.False(t, v.Act)
	})

	t.Run("below relevance floor", func(t *testing.T) {
		e := NewEvaluator(Config{Wiki: WikiConfig{MinRelevance: 60, JoinThreshold: 1}})
		v := e.EvaluateWikiJoin([]WikiCandidate{{ID: "a", Relevance: 10}, {ID: "b", Relevance: 59}})
		assert.False(t, v.Act)
		assert.Equal(t, "b", v.WikiID)
		assert.Contains(t, v.Reason, "below minimum")
	})

	t.Run("both gates must pass", func(t *testing.T) {
		var pass, fail string
		for i := 0; i < 1000 && (pass == "" || fail == ""); i++ {
			id := fmt.Sprintf("wiki-%d", i)
			if Score("s", "join", id) >= 50 {
				if pass == "" {
					pass = id
				}
			} else if fail == "" {
				fail = id
			}
		}
		e := NewEvaluator(Config{Salt: "s"})

		v := e.EvaluateWikiJoin([]WikiCandidate{{ID: pass, Relevance: 90}})
		assert.True(t, v.Act)
		assert.Equal(t, pass, v.WikiID)

		v = e.EvaluateWikiJoin([]WikiCandidate{{ID: fail, Relevance: 90}})
		assert.False(t, v.Act)
		assert.Contains(t, v.Reason, "join score")
	})
}

func TestEvaluateWikiLeave(t *testing.T) {
	e := NewEvaluator(Config{Salt: "s", Wiki: WikiConfig{LeaveThreshold: 1}})

	v := e.EvaluateWikiLeave([]string{"general", "crypto"}, 4)
	assert.False(t, v.Act)

	v = e.EvaluateWikiLeave([]string{"crypto", "zzz-general-lookalike", "general", "books"}, 2)
	assert.Equal(t, "zzz-general-lookalike", v.WikiID)

	// Home wiki sorts last but is excluded.
	home := NewEvaluator(Config{Salt: "s", Wiki: WikiConfig{Home: "zoo", LeaveThreshold: 1}})
	v = home.EvaluateWikiLeave([]string{"zoo", "alpha", "beta"}, 2)
	assert.Equal(t, "beta", v.WikiID)

	allowed := NewEvaluator(Config{Salt: "s", Wiki: WikiConfig{Home: "zoo", AllowLeaveHome: true, LeaveThreshold: 1}})
	v = allowed.EvaluateWikiLeave([]string{"zoo", "alpha", "beta"}, 2)
	assert.Equal(t, "zoo", v.WikiID)

	onlyHome := NewEvaluator(Config{Wiki: WikiConfig{Home: "general"}})
	v = onlyHome.EvaluateWikiLeave([]string{"general"}, 0)
	assert.False(t, v.Act)
}

func TestEvaluateWikiLeave_GatedByScore(t *testing.T) {
	e := NewEvaluator(Config{Salt: "s"})
	joined := []string{"a", "b", "c"}
	v := e.EvaluateWikiLeave(joined, 2)
	assert.Equal(t, "c", v.WikiID)
	assert.Equal(t, Score("s", "leave", "c") >= 50, v.Act)
}
