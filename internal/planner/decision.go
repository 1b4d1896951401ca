package planner

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// ErrMalformedDecision is returned when planner output does not carry a
// structurally valid decision object.
var ErrMalformedDecision = errors.New("malformed planner decision")

// Vote values.
const (
	VoteUp   = "up"
	VoteDown = "down"
	VoteNone = "none"
)

// MaxReasonLength bounds Decision.Reason, in runes.
const MaxReasonLength = 260

// Decision is the planner's structured verdict on one question.
type Decision struct {
	ShouldAnswer   bool    `json:"shouldAnswer"`
	Confidence     float64 `json:"confidence"`
	ExpectedROI    float64 `json:"expectedRoi"`
	BidAmountCents int     `json:"bidAmountCents"`
	Vote           string  `json:"vote"`
	JoinWikiID     string  `json:"joinWikiId,omitempty"`
	Reason         string  `json:"reason"`
	ResearchNeeded bool    `json:"researchNeeded"`
}

var requiredKeys = []string{
	"shouldAnswer", "confidence", "expectedRoi", "bidAmountCents", "vote", "reason", "researchNeeded",
}

// ParseDecision extracts the outermost JSON object from text, checks every
// required field is present with the right type, and clamps numeric fields
// into range.
func ParseDecision(text string) (Decision, error) {
	raw, err := extractObject(text)
	if err != nil {
		return Decision{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	for _, key := range requiredKeys {
		value, ok := fields[key]
		if !ok {
			return Decision{}, fmt.Errorf("%w: missing field %q", ErrMalformedDecision, key)
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return Decision{}, fmt.Errorf("%w: field %q is null", ErrMalformedDecision, key)
		}
	}

	var (
		d          Decision
		bid        float64
		vote       string
		reason     string
		joinWikiID *string
	)
	decode := []struct {
		key string
		dst interface{}
	}{
		{"shouldAnswer", &d.ShouldAnswer},
		{"confidence", &d.Confidence},
		{"expectedRoi", &d.ExpectedROI},
		{"bidAmountCents", &bid},
		{"vote", &vote},
		{"reason", &reason},
		{"researchNeeded", &d.ResearchNeeded},
	}
	for _, f := range decode {
		if err := json.Unmarshal(fields[f.key], f.dst); err != nil {
			return Decision{}, fmt.Errorf("%w: field %q: %v", ErrMalformedDecision, f.key, err)
		}
	}
	if rawWiki, ok := fields["joinWikiId"]; ok {
		if err := json.Unmarshal(rawWiki, &joinWikiID); err != nil {
			return Decision{}, fmt.Errorf("%w: field %q: %v", ErrMalformedDecision, "joinWikiId", err)
		}
	}

	d.Confidence = Clamp(d.Confidence, 0, 1)
	d.ExpectedROI = Clamp(d.ExpectedROI, -1, 1)
	d.BidAmountCents = int(math.Min(math.Max(0, math.Floor(bid)), math.MaxInt32))

	switch vote = strings.ToLower(strings.TrimSpace(vote)); vote {
	case VoteUp, VoteDown:
		d.Vote = vote
	default:
		d.Vote = VoteNone
	}

	if joinWikiID != nil {
		d.JoinWikiID = strings.ToLower(strings.TrimSpace(*joinWikiID))
	}

	d.Reason = truncateRunes(strings.TrimSpace(reason), MaxReasonLength)
	if d.Reason == "" {
		d.Reason = "no-reason"
	}
	return d, nil
}

// extractObject returns text itself when it is a JSON object, otherwise the
// span from the first '{' to the last '}'.
func extractObject(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in planner output", ErrMalformedDecision)
	}
	return trimmed[start : end+1], nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
