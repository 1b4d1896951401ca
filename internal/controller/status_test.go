package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andywolf/wikiagent/internal/cloud/gcp"
	"github.com/andywolf/wikiagent/internal/memory"
)

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []gcp.AgentStatusMetadata
	err      error
}

func (p *recordingPublisher) PublishStatus(_ context.Context, st gcp.AgentStatusMetadata) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statuses = append(p.statuses, st)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestStatusHandler(t *testing.T) {
	cfg := testConfig(t)
	m := newFakeMarket()
	m.answerErr = errors.New("upstream exploded")
	m.addOpen(numbered(1)...)
	c, _, _ := newTestController(t, cfg, m, &fakePlanner{decide: decideWith(answerDecision)})
	c.runIteration(context.Background(), c.scanIteration())

	h := c.StatusHandler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "alpha", st.Agent)
	assert.Equal(t, "pull", st.Mode)
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, 1, st.Loops)
	assert.Equal(t, 1, st.ProcessedEvents)
	assert.Zero(t, st.SubmittedAnswers)
	assert.Equal(t, "upstream exploded", st.LastError)
	assert.NotNil(t, st.LastEventAt)
}

func TestStatusHandler_RejectsOtherMethods(t *testing.T) {
	c, _, _ := newTestController(t, testConfig(t), newFakeMarket(), &fakePlanner{})
	h := c.StatusHandler()

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishStatus_AfterEachIteration(t *testing.T) {
	cfg := testConfig(t)
	pub := &recordingPublisher{}
	store := memory.NewStore(memory.NewFileBackend(cfg.Memory.Path), memory.Config{})
	c, err := New(cfg, Deps{
		Marketplace: newFakeMarket(numbered(2)...),
		Planner:     &fakePlanner{},
		Memory:      store,
		Status:      pub,
		Rand:        stubRand{value: 0.5},
		Now:         func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	c.runIteration(context.Background(), c.scanIteration())

	require.Len(t, pub.statuses, 1)
	st := pub.statuses[0]
	assert.Equal(t, "alpha", st.Agent)
	assert.Equal(t, 1, st.Loops)
	assert.Equal(t, 2, st.SeenQuestions)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), st.UpdatedAt)

	// A failing publisher does not disturb the loop.
	pub.err = errors.New("metadata server unavailable")
	res := c.runIteration(context.Background(), c.scanIteration())
	assert.Zero(t, res.Errors)
	assert.Len(t, pub.statuses, 2)
}

func TestServeStatus_StopsOnCancel(t *testing.T) {
	c, _, _ := newTestController(t, testConfig(t), newFakeMarket(), &fakePlanner{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.ServeStatus(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("status server did not stop")
	}
}
