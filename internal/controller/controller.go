// Package controller drives one market agent: it pulls or receives candidate
// questions, asks the planner for a decision, dispatches answers, votes and
// wiki membership changes, and keeps the agent's memory up to date.
package controller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andywolf/wikiagent/internal/cloud/gcp"
	"github.com/andywolf/wikiagent/internal/config"
	"github.com/andywolf/wikiagent/internal/events"
	"github.com/andywolf/wikiagent/internal/marketplace"
	"github.com/andywolf/wikiagent/internal/memory"
	"github.com/andywolf/wikiagent/internal/observability"
	"github.com/andywolf/wikiagent/internal/planner"
	"github.com/andywolf/wikiagent/internal/policy"
)

// Marketplace is the set of collaborator calls the controller makes.
// *marketplace.Client satisfies it.
type Marketplace interface {
	AgentBudget(ctx context.Context) (*marketplace.Budget, error)
	ListOpenQuestions(ctx context.Context, limit int) ([]marketplace.Question, error)
	GetQuestion(ctx context.Context, id string) (*marketplace.Question, error)
	SearchSimilarQuestions(ctx context.Context, query string) ([]marketplace.Post, error)
	ResearchStackExchange(ctx context.Context, query string, tags []string, limit int) ([]marketplace.ResearchItem, error)
	PostAnswer(ctx context.Context, req marketplace.AnswerRequest) (*marketplace.AnswerReceipt, error)
	VotePost(ctx context.Context, postID string, direction marketplace.VoteDirection, idempotencyKey string) error
	JoinWiki(ctx context.Context, wikiID, idempotencyKey string) error
	LeaveWiki(ctx context.Context, wikiID, idempotencyKey string) error
	ListWikis(ctx context.Context) ([]marketplace.Wiki, error)
	LogAgentEvent(ctx context.Context, eventType string, payload interface{}) error
	Subscribe(ctx context.Context, handle marketplace.StreamHandler, onError func(error)) error
	ListPosts(ctx context.Context) ([]marketplace.Question, error)
}

// Planner produces decisions and answer text. *planner.Planner satisfies it.
type Planner interface {
	Decide(ctx context.Context, in planner.DecisionInput) (planner.Decision, planner.Generation, error)
	Compose(ctx context.Context, q marketplace.Question, research []marketplace.ResearchItem) (string, planner.Generation, error)
}

// Random is the source of the scan gate coin flip and candidate shuffling.
type Random interface {
	Float64() float64
	Shuffle(n int, swap func(i, j int))
}

// ShutdownHook runs after memory has been persisted on shutdown.
type ShutdownHook func(ctx context.Context) error

// Timeouts for the shutdown sequence.
const (
	ShutdownTimeout = 15 * time.Second
	LogFlushTimeout = 5 * time.Second
)

// Engine constants.
const (
	// TopicPriorWeight scales the learned topic prior before it is added to
	// the planner's confidence.
	TopicPriorWeight = 0.18
	// MaxBidMultiplier caps a bid at this multiple of the default bid.
	MaxBidMultiplier = 4
	similarLimit     = 3
	researchLimit    = 3
)

// Deps are the collaborators a Controller is wired to. Marketplace, Planner
// and Memory are required.
type Deps struct {
	Marketplace Marketplace
	Planner     Planner
	Memory      *memory.Store
	Tracer      observability.Tracer
	Events      events.Sink
	Logger      *zap.Logger
	CloudLogger gcp.LoggerInterface
	Status      gcp.StatusPublisher
	Rand        Random
	Now         func() time.Time
}

// Controller owns one agent's run. All loop state lives here; nothing is
// kept in package variables.
type Controller struct {
	cfg        config.Config
	market     Marketplace
	planner    Planner
	memory     *memory.Store
	evaluator  *policy.Evaluator
	dispatcher *Dispatcher
	tracer     observability.Tracer
	sink       events.Sink

	logger      *zap.Logger
	cloudLogger gcp.LoggerInterface
	publisher   gcp.StatusPublisher

	rand Random
	now  func() time.Time

	machine *loopMachine
	stats   *runStats

	shutdownHooks []ShutdownHook
	shutdownOnce  sync.Once
}

// New validates cfg and returns a Controller. cfg is copied; later changes
// by the caller are not observed.
func New(cfg config.Config, deps Deps) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Marketplace == nil || deps.Planner == nil || deps.Memory == nil {
		return nil, errors.New("controller requires a marketplace, a planner and a memory store")
	}

	c := &Controller{
		cfg:         cfg,
		market:      deps.Marketplace,
		planner:     deps.Planner,
		memory:      deps.Memory,
		tracer:      deps.Tracer,
		sink:        deps.Events,
		logger:      deps.Logger,
		cloudLogger: deps.CloudLogger,
		publisher:   deps.Status,
		rand:        deps.Rand,
		now:         deps.Now,
		stats:       &runStats{},
	}
	if c.tracer == nil {
		c.tracer = &observability.NoOpTracer{}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.rand == nil {
		c.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.now == nil {
		c.now = time.Now
	}

	c.evaluator = policy.NewEvaluator(policy.Config{
		Self:              cfg.Agent.Name,
		Salt:              cfg.Policy.Salt,
		AlwaysRespond:     cfg.Policy.AlwaysRespond,
		Interests:         cfg.Policy.Interests,
		InterestThreshold: cfg.Policy.InterestThreshold,
		NoMatchThreshold:  cfg.Policy.DefaultThreshold,
		Wiki: policy.WikiConfig{
			MinRelevance:   cfg.Policy.Wiki.MinRelevance,
			JoinThreshold:  cfg.Policy.Wiki.JoinThreshold,
			LeaveThreshold: cfg.Policy.Wiki.LeaveThreshold,
			Home:           cfg.Policy.Wiki.Home,
			AllowLeaveHome: cfg.Policy.Wiki.AllowLeaveHome,
		},
		Reactions: policy.ReactionConfig{Mode: policy.ReactionMode(cfg.Policy.Reactions.Mode)},
	})
	c.dispatcher = NewDispatcher(c.market, cfg.Marketplace.Funded)

	machine, err := newLoopMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to build loop state machine: %w", err)
	}
	c.machine = machine
	c.stats.setState(machine.state())

	return c, nil
}

// Config returns the configuration the controller was built with.
func (c *Controller) Config() config.Config {
	return c.cfg
}

// Run loads memory and runs the configured ingestion mode until ctx is
// cancelled. On return memory has been saved and shutdown hooks have run.
func (c *Controller) Run(ctx context.Context) error {
	c.loadMemory(ctx)
	c.machine.start()
	c.stats.setState(c.machine.state())
	c.logInfo("agent %s started in %s mode (loops so far: %d)", c.cfg.Agent.Name, c.cfg.Agent.Mode, c.memory.Loops())

	defer c.gracefulShutdown()

	var err error
	switch c.cfg.Agent.Mode {
	case config.ModePush:
		err = c.runPush(ctx)
	default:
		err = c.runPull(ctx)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	return err
}

func (c *Controller) loadMemory(ctx context.Context) {
	if err := c.memory.Load(ctx); err != nil {
		c.logWarning("memory could not be loaded, starting empty: %v", err)
	}
}

// saveMemory persists memory even when ctx has been cancelled.
func (c *Controller) saveMemory(ctx context.Context) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	if err := c.memory.Save(saveCtx); err != nil {
		c.logError("failed to save memory: %v", err)
		c.stats.setError(err)
	}
}
