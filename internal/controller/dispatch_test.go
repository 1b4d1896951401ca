package controller

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andywolf/wikiagent/internal/marketplace"
)

func TestDispatcher_SubmitAnswerClassification(t *testing.T) {
	tests := []struct {
		name        string
		funded      bool
		err         error
		wantStatus  AnswerStatus
		wantTx      string
		wantFunding bool
	}{
		{
			name:       "posted",
			wantStatus: AnswerPosted,
			wantTx:     "0xtx-q1",
		},
		{
			name:       "already answered sentinel",
			err:        fmt.Errorf("post_answer: %w", marketplace.ErrAlreadyAnswered),
			wantStatus: AnswerDuplicate,
		},
		{
			name:       "already answered in message text",
			err:        errors.New("Question already answered by this agent"),
			wantStatus: AnswerDuplicate,
		},
		{
			name:        "payment required without funding",
			err:         fmt.Errorf("post_answer: %w", marketplace.ErrPaymentRequired),
			wantStatus:  AnswerFailed,
			wantFunding: true,
		},
		{
			name:       "payment required with funding",
			funded:     true,
			err:        fmt.Errorf("post_answer: %w", marketplace.ErrPaymentRequired),
			wantStatus: AnswerFailed,
		},
		{
			name:       "other failure",
			err:        fmt.Errorf("post_answer: %w", marketplace.ErrUnavailable),
			wantStatus: AnswerFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeMarket()
			m.answerErr = tt.err
			d := NewDispatcher(m, tt.funded)

			res := d.SubmitAnswer(context.Background(), "q1", "text", 40)

			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantTx, res.Tx)
			assert.Equal(t, tt.wantStatus != AnswerFailed, res.Status.Succeeded())
			assert.Equal(t, tt.wantFunding, errors.Is(res.Err, ErrFundingNotConfigured))
			switch {
			case tt.wantFunding:
				assert.Contains(t, res.Err.Error(), "payment required")
			case tt.wantStatus == AnswerFailed:
				assert.ErrorIs(t, res.Err, tt.err)
			}

			require.Len(t, m.answers, 1)
			assert.Equal(t, marketplace.AnswerRequest{
				QuestionID:     "q1",
				Content:        "text",
				BidAmountCents: 40,
				IdempotencyKey: "answer-q1",
			}, m.answers[0])
		})
	}
}

func TestDispatcher_VoteAndMembershipKeys(t *testing.T) {
	m := newFakeMarket()
	d := NewDispatcher(m, false)
	ctx := context.Background()

	require.NoError(t, d.Vote(ctx, "p1", marketplace.VoteUp))
	require.NoError(t, d.Vote(ctx, "p2", marketplace.VoteNone))
	require.NoError(t, d.Vote(ctx, "p3", ""))
	require.NoError(t, d.JoinWiki(ctx, "rust"))
	require.NoError(t, d.LeaveWiki(ctx, "cooking"))

	assert.Equal(t, []voteCall{{PostID: "p1", Direction: marketplace.VoteUp, Key: "vote-p1"}}, m.votes)
	assert.Equal(t, []string{"join-rust"}, m.joins)
	assert.Equal(t, []string{"leave-cooking"}, m.leaves)
}

func TestIdempotencyKeys(t *testing.T) {
	assert.Equal(t, "answer-q9", AnswerKey("q9"))
	assert.Equal(t, "vote-a3", VoteKey("a3"))
	assert.Equal(t, "join-go", JoinKey("go"))
	assert.Equal(t, "leave-go", LeaveKey("go"))
}

func TestFinalBid(t *testing.T) {
	tests := []struct {
		name       string
		requested  int
		defaultBid int
		want       int
	}{
		{"zero falls back to default", 0, 20, 20},
		{"within cap", 50, 20, 50},
		{"capped at four times default", 1000, 20, 80},
		{"exactly at cap", 80, 20, 80},
		{"negative floors at zero", -5, 20, 0},
		{"zero default caps everything", 30, 0, 0},
		{"largest planner bid capped", math.MaxInt32, 20, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FinalBid(tt.requested, tt.defaultBid))
		})
	}
}
