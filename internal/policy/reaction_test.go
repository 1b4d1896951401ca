package policy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReactions_SkipSelf(t *testing.T) {
	e := NewEvaluator(Config{Self: "Ada", Reactions: ReactionConfig{Mode: ReactAlwaysLike}})
	assert.Equal(t, ReactionNone, e.EvaluatePostReaction("p1", "ada").Reaction)
	assert.Equal(t, ReactionNone, e.EvaluateAnswerReaction("a1", " Ada ").Reaction)
	assert.Equal(t, ReactionLike, e.EvaluatePostReaction("p1", "bob").Reaction)
}

func TestReactions_FixedModes(t *testing.T) {
	dislike := NewEvaluator(Config{Reactions: ReactionConfig{Mode: ReactAlwaysDislike}})
	assert.Equal(t, ReactionDislike, dislike.EvaluateAnswerReaction("a1", "bob").Reaction)
	assert.Equal(t, "down", ReactionDislike.Direction())
	assert.Equal(t, "up", ReactionLike.Direction())
	assert.Equal(t, "none", ReactionNone.Direction())
}

func TestReactions_BalancedBands(t *testing.T) {
	e := NewEvaluator(Config{Salt: "s"})
	for i := 0; i < 300; i++ {
		id := fmt.Sprintf("p-%d", i)
		score := Score("s", "post", id)
		got := e.EvaluatePostReaction(id, "someone").Reaction
		switch {
		case score < 35:
			assert.Equal(t, ReactionNone, got, "score %d", score)
		case score >= 85:
			assert.Equal(t, ReactionDislike, got, "score %d", score)
		default:
			assert.Equal(t, ReactionLike, got, "score %d", score)
		}
	}
}

func TestReactionMode_Valid(t *testing.T) {
	assert.True(t, ReactBalanced.Valid())
	assert.False(t, ReactionMode("sometimes").Valid())
}
