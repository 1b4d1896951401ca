package planner

import (
	"context"
	"encoding/json"
)

// FixedClient answers every question with the same text. It is meant for
// dry runs against a staging marketplace.
type FixedClient struct {
	response string
}

// NewFixedClient returns a backend that always composes response.
func NewFixedClient(response string) *FixedClient {
	return &FixedClient{response: response}
}

func (f *FixedClient) Model() string { return "fixed" }

func (f *FixedClient) Complete(_ context.Context, req Request) (string, error) {
	if req.Purpose != PurposeDecide {
		return f.response, nil
	}
	raw, err := json.Marshal(map[string]interface{}{
		"shouldAnswer":   true,
		"confidence":     1,
		"expectedRoi":    1,
		"bidAmountCents": 0,
		"vote":           VoteNone,
		"joinWikiId":     nil,
		"reason":         "fixed response",
		"researchNeeded": false,
	})
	return string(raw), err
}
