package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/andywolf/wikiagent/internal/marketplace"
)

// ErrFundingNotConfigured is returned when the marketplace asks for payment
// and the agent has no funding configured.
var ErrFundingNotConfigured = errors.New("marketplace requires payment but no funding is configured")

// Idempotency keys. A retried action carries the same key, so the
// marketplace treats it as a duplicate instead of running it twice.
func AnswerKey(questionID string) string { return "answer-" + questionID }
func VoteKey(postID string) string       { return "vote-" + postID }
func JoinKey(wikiID string) string       { return "join-" + wikiID }
func LeaveKey(wikiID string) string      { return "leave-" + wikiID }

// AnswerStatus classifies an answer submission.
type AnswerStatus string

const (
	AnswerPosted    AnswerStatus = "posted"
	AnswerDuplicate AnswerStatus = "already-answered"
	AnswerFailed    AnswerStatus = "failed"
)

// Succeeded reports whether the submission counts as a success.
func (s AnswerStatus) Succeeded() bool {
	return s == AnswerPosted || s == AnswerDuplicate
}

// AnswerResult is the classified response to an answer submission.
type AnswerResult struct {
	Status AnswerStatus
	Tx     string
	Err    error
}

// Dispatcher sends actions to the marketplace.
type Dispatcher struct {
	market Marketplace
	funded bool
}

// NewDispatcher returns a Dispatcher. funded reports whether the agent has a
// payout source configured; it decides how a payment-required response is
// classified.
func NewDispatcher(market Marketplace, funded bool) *Dispatcher {
	return &Dispatcher{market: market, funded: funded}
}

// SubmitAnswer posts content with bid cents. Failures are classified, never
// returned as a bare error.
func (d *Dispatcher) SubmitAnswer(ctx context.Context, questionID, content string, bid int) AnswerResult {
	receipt, err := d.market.PostAnswer(ctx, marketplace.AnswerRequest{
		QuestionID:     questionID,
		Content:        content,
		BidAmountCents: bid,
		IdempotencyKey: AnswerKey(questionID),
	})
	if err == nil {
		res := AnswerResult{Status: AnswerPosted}
		if receipt != nil {
			res.Tx = receipt.PaymentTxHash
		}
		return res
	}

	switch {
	case isAlreadyAnswered(err):
		return AnswerResult{Status: AnswerDuplicate, Err: err}
	case errors.Is(err, marketplace.ErrPaymentRequired) && !d.funded:
		return AnswerResult{Status: AnswerFailed, Err: fmt.Errorf("%w: %v", ErrFundingNotConfigured, err)}
	default:
		return AnswerResult{Status: AnswerFailed, Err: err}
	}
}

func isAlreadyAnswered(err error) bool {
	if errors.Is(err, marketplace.ErrAlreadyAnswered) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already answered")
}

// Vote casts direction on postID. VoteNone is a no-op.
func (d *Dispatcher) Vote(ctx context.Context, postID string, direction marketplace.VoteDirection) error {
	if direction == marketplace.VoteNone || direction == "" {
		return nil
	}
	if err := d.market.VotePost(ctx, postID, direction, VoteKey(postID)); err != nil {
		return fmt.Errorf("vote %s on %s: %w", direction, postID, err)
	}
	return nil
}

// JoinWiki subscribes to wikiID.
func (d *Dispatcher) JoinWiki(ctx context.Context, wikiID string) error {
	if err := d.market.JoinWiki(ctx, wikiID, JoinKey(wikiID)); err != nil {
		return fmt.Errorf("join wiki %s: %w", wikiID, err)
	}
	return nil
}

// LeaveWiki unsubscribes from wikiID.
func (d *Dispatcher) LeaveWiki(ctx context.Context, wikiID string) error {
	if err := d.market.LeaveWiki(ctx, wikiID, LeaveKey(wikiID)); err != nil {
		return fmt.Errorf("leave wiki %s: %w", wikiID, err)
	}
	return nil
}

// FinalBid applies the bid rules: zero falls back to the default, and the
// result is clamped to [0, MaxBidMultiplier*defaultBid].
func FinalBid(requested, defaultBid int) int {
	bid := requested
	if bid == 0 {
		bid = defaultBid
	}
	if bid < 0 {
		bid = 0
	}
	if limit := MaxBidMultiplier * defaultBid; bid > limit {
		bid = limit
	}
	return bid
}
