// Package planner turns questions into structured decisions and answers by
// prompting an inference backend.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andywolf/wikiagent/internal/marketplace"
	"github.com/andywolf/wikiagent/internal/template"
	prompts "github.com/andywolf/wikiagent/prompts/planner"
)

// Sampling temperatures.
const (
	DecideTemperature  = 0.1
	ComposeTemperature = 0.2
)

// Purpose tells a Client what a completion is for.
type Purpose string

const (
	PurposeDecide  Purpose = "decide"
	PurposeCompose Purpose = "compose"
)

// Request is one completion call.
type Request struct {
	Purpose     Purpose
	System      string
	User        string
	Temperature float64
}

// Client is an inference backend.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
	Model() string
}

// Generation describes a completed planner call for tracing.
type Generation struct {
	Name     string
	Model    string
	Input    string
	Output   string
	Status   string
	Duration time.Duration
}

// DecisionInput is everything the planner sees about a question.
type DecisionInput struct {
	Question   marketplace.Question
	Budget     *marketplace.Budget
	TopicPrior float64
	Topics     []string
	Similar    []marketplace.Post
	Research   []marketplace.ResearchItem
}

// Planner builds prompts and validates responses.
type Planner struct {
	client  Client
	persona string
}

// New returns a Planner backed by client. persona, when set, is appended to
// every system prompt.
func New(client Client, persona string) *Planner {
	return &Planner{client: client, persona: strings.TrimSpace(persona)}
}

// Model returns the backend's model name.
func (p *Planner) Model() string {
	return p.client.Model()
}

// Decide asks for a Decision. Transport failures and malformed output are
// both returned as errors; the Generation is filled either way.
func (p *Planner) Decide(ctx context.Context, in DecisionInput) (Decision, Generation, error) {
	question, err := json.Marshal(promptQuestion{
		ID:               in.Question.ID,
		Header:           in.Question.Header,
		Content:          in.Question.Content,
		WikiID:           in.Question.WikiID,
		RequiredBidCents: in.Question.RequiredBidCents,
		AnswersCloseAt:   in.Question.AnswersCloseAt,
	})
	if err != nil {
		return Decision{}, Generation{}, fmt.Errorf("encode question: %w", err)
	}
	ctxJSON, err := json.Marshal(promptContext{
		Budget:       in.Budget,
		TopicPrior:   in.TopicPrior,
		Topics:       in.Topics,
		SimilarPosts: in.Similar,
		Research:     in.Research,
	})
	if err != nil {
		return Decision{}, Generation{}, fmt.Errorf("encode context: %w", err)
	}

	req := Request{
		Purpose: PurposeDecide,
		System:  p.system(prompts.Get(prompts.DecideSystem)),
		User: template.RenderPrompt(prompts.Get(prompts.DecideUser), map[string]string{
			"question": string(question),
			"context":  string(ctxJSON),
		}),
		Temperature: DecideTemperature,
	}

	name := "decide"
	if len(in.Research) > 0 {
		name = "decide-with-research"
	}
	text, gen, err := p.complete(ctx, name, req)
	if err != nil {
		return Decision{}, gen, err
	}

	d, err := ParseDecision(text)
	if err != nil {
		gen.Status = "error"
		return Decision{}, gen, err
	}
	return d, gen, nil
}

// Compose writes the answer text, grounded in research when present.
func (p *Planner) Compose(ctx context.Context, q marketplace.Question, research []marketplace.ResearchItem) (string, Generation, error) {
	if research == nil {
		research = []marketplace.ResearchItem{}
	}
	researchJSON, err := json.Marshal(research)
	if err != nil {
		return "", Generation{}, fmt.Errorf("encode research: %w", err)
	}

	req := Request{
		Purpose: PurposeCompose,
		System:  p.system(prompts.Get(prompts.ComposeSystem)),
		User: template.RenderPrompt(prompts.Get(prompts.ComposeUser), map[string]string{
			"header":   q.Header,
			"content":  q.Content,
			"research": string(researchJSON),
		}),
		Temperature: ComposeTemperature,
	}

	text, gen, err := p.complete(ctx, "compose", req)
	if err != nil {
		return "", gen, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		gen.Status = "error"
		return "", gen, errors.New("planner returned an empty answer")
	}
	return text, gen, nil
}

func (p *Planner) complete(ctx context.Context, name string, req Request) (string, Generation, error) {
	start := time.Now()
	text, err := p.client.Complete(ctx, req)
	gen := Generation{
		Name:     name,
		Model:    p.client.Model(),
		Input:    req.User,
		Output:   text,
		Status:   "completed",
		Duration: time.Since(start),
	}
	if err != nil {
		gen.Status = "error"
		return "", gen, fmt.Errorf("planner %s: %w", name, err)
	}
	return text, gen, nil
}

func (p *Planner) system(base string) string {
	base = strings.TrimSpace(base)
	if p.persona == "" {
		return base
	}
	return base + "\n\nPersona:\n" + p.persona
}

type promptQuestion struct {
	ID               string    `json:"id"`
	Header           string    `json:"header"`
	Content          string    `json:"content"`
	WikiID           string    `json:"wikiId,omitempty"`
	RequiredBidCents int       `json:"requiredBidCents,omitempty"`
	AnswersCloseAt   time.Time `json:"answersCloseAt,omitempty"`
}

type promptContext struct {
	Budget       *marketplace.Budget        `json:"budget,omitempty"`
	TopicPrior   float64                    `json:"topicPrior"`
	Topics       []string                   `json:"topics"`
	SimilarPosts []marketplace.Post         `json:"similarPosts"`
	Research     []marketplace.ResearchItem `json:"research,omitempty"`
}
