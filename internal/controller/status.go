package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/andywolf/wikiagent/internal/cloud/gcp"
	"github.com/andywolf/wikiagent/internal/security"
)

// Status is the snapshot served on /health.
type Status struct {
	Agent            string     `json:"agent"`
	Mode             string     `json:"mode"`
	State            string     `json:"state"`
	Connected        bool       `json:"connected"`
	Loops            int        `json:"loops"`
	ProcessedEvents  int        `json:"processedEvents"`
	SubmittedAnswers int        `json:"submittedAnswers"`
	LastError        string     `json:"lastError,omitempty"`
	LastEventAt      *time.Time `json:"lastEventAt,omitempty"`
}

type runStats struct {
	mu               sync.Mutex
	state            string
	connected        bool
	processedEvents  int
	submittedAnswers int
	lastError        string
	lastEventAt      *time.Time
}

func (s *runStats) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *runStats) setConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

func (s *runStats) processed(at time.Time) {
	s.mu.Lock()
	s.processedEvents++
	t := at.UTC()
	s.lastEventAt = &t
	s.mu.Unlock()
}

func (s *runStats) answered() {
	s.mu.Lock()
	s.submittedAnswers++
	s.mu.Unlock()
}

func (s *runStats) setError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()
}

// Status returns the current run snapshot.
func (c *Controller) Status() Status {
	c.stats.mu.Lock()
	defer c.stats.mu.Unlock()

	st := Status{
		Agent:            c.cfg.Agent.Name,
		Mode:             c.cfg.Agent.Mode,
		State:            c.stats.state,
		Connected:        c.stats.connected,
		Loops:            c.memory.Loops(),
		ProcessedEvents:  c.stats.processedEvents,
		SubmittedAnswers: c.stats.submittedAnswers,
		LastError:        c.stats.lastError,
	}
	if c.stats.lastEventAt != nil {
		t := *c.stats.lastEventAt
		st.LastEventAt = &t
	}
	return st
}

// Requests per client per minute on the status endpoint.
const statusRateLimit = 60

// StatusHandler serves GET /health.
func (c *Controller) StatusHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(c.Status())
	})

	limiter := security.NewRateLimiter(statusRateLimit, time.Minute)
	return limiter.Middleware(security.ClientKey)(mux)
}

// ServeStatus listens on addr until ctx is cancelled.
func (c *Controller) ServeStatus(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.StatusHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	c.logInfo("status server listening on %s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// publishStatus pushes the snapshot to the configured publisher, if any.
func (c *Controller) publishStatus(ctx context.Context) {
	if c.publisher == nil {
		return
	}
	st := c.Status()
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	err := c.publisher.PublishStatus(pubCtx, gcp.AgentStatusMetadata{
		Agent:            st.Agent,
		Mode:             st.Mode,
		State:            st.State,
		Loops:            st.Loops,
		SeenQuestions:    len(c.memory.Snapshot().SeenQuestionIDs),
		SubmittedAnswers: st.SubmittedAnswers,
		LastError:        st.LastError,
		UpdatedAt:        c.now().UTC(),
	})
	if err != nil {
		c.logWarning("failed to publish status: %v", err)
	}
}
