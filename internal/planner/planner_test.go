package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/andywolf/wikiagent/internal/marketplace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingClient struct {
	reqs    []Request
	replies []string
	err     error
}

func (r *recordingClient) Model() string { return "test-model" }

func (r *recordingClient) Complete(_ context.Context, req Request) (string, error) {
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return "", r.err
	}
	reply := r.replies[0]
	r.replies = r.replies[1:]
	return reply, nil
}

func TestDecide_BuildsPrompt(t *testing.T) {
	client := &recordingClient{replies: []string{validDecision}}
	p := New(client, "Terse and skeptical.")

	d, gen, err := p.Decide(context.Background(), DecisionInput{
		Question:   marketplace.Question{ID: "q1", Header: "Is Rust fast?", Content: "benchmarks?"},
		TopicPrior: 0.25,
		Topics:     []string{"programming"},
		Similar:    []marketplace.Post{{ID: "p9", Header: "Rust vs C"}},
	})
	require.NoError(t, err)
	assert.True(t, d.ShouldAnswer)
	assert.Equal(t, "decide", gen.Name)
	assert.Equal(t, "test-model", gen.Model)
	assert.Equal(t, "completed", gen.Status)

	require.Len(t, client.reqs, 1)
	req := client.reqs[0]
	assert.Equal(t, PurposeDecide, req.Purpose)
	assert.Equal(t, DecideTemperature, req.Temperature)
	assert.Contains(t, req.System, "Persona:\nTerse and skeptical.")
	assert.Contains(t, req.User, `"header":"Is Rust fast?"`)
	assert.Contains(t, req.User, `"topicPrior":0.25`)
	assert.Contains(t, req.User, `"similarPosts":[{"id":"p9","header":"Rust vs C"}]`)
	assert.NotContains(t, req.User, "{{")
}

func TestDecide_WithResearchNamesGeneration(t *testing.T) {
	client := &recordingClient{replies: []string{validDecision}}
	_, gen, err := New(client, "").Decide(context.Background(), DecisionInput{
		Research: []marketplace.ResearchItem{{Title: "SO answer"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "decide-with-research", gen.Name)
	assert.Contains(t, client.reqs[0].User, "SO answer")
}

func TestDecide_Errors(t *testing.T) {
	_, gen, err := New(&recordingClient{err: errors.New("connection refused")}, "").Decide(context.Background(), DecisionInput{})
	require.Error(t, err)
	assert.Equal(t, "error", gen.Status)

	_, gen, err = New(&recordingClient{replies: []string{"no json here"}}, "").Decide(context.Background(), DecisionInput{})
	assert.ErrorIs(t, err, ErrMalformedDecision)
	assert.Equal(t, "error", gen.Status)
}

func TestCompose(t *testing.T) {
	client := &recordingClient{replies: []string{"  Use a hardware wallet.  ", "   "}}
	p := New(client, "")

	text, _, err := p.Compose(context.Background(),
		marketplace.Question{Header: "Safe storage?", Content: "for BTC"},
		[]marketplace.ResearchItem{{Title: "Cold storage", Link: "https://example.com"}})
	require.NoError(t, err)
	assert.Equal(t, "Use a hardware wallet.", text)

	req := client.reqs[0]
	assert.Equal(t, PurposeCompose, req.Purpose)
	assert.Equal(t, ComposeTemperature, req.Temperature)
	assert.Contains(t, req.User, "Question: Safe storage?")
	assert.Contains(t, req.User, "Cold storage")
	assert.False(t, strings.Contains(req.System, "Persona"))

	_, _, err = p.Compose(context.Background(), marketplace.Question{}, nil)
	assert.Error(t, err)
	assert.Contains(t, client.reqs[1].User, "Research: []")
}

func TestFixedClient(t *testing.T) {
	p := New(NewFixedClient("gm"), "")

	d, _, err := p.Decide(context.Background(), DecisionInput{})
	require.NoError(t, err)
	assert.True(t, d.ShouldAnswer)
	assert.Equal(t, 1.0, d.Confidence)

	text, _, err := p.Compose(context.Background(), marketplace.Question{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gm", text)
}
