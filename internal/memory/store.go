// Package memory persists what an agent has learned between runs: which
// questions it has already considered, how it fares per topic, and a bounded
// decision history.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/andywolf/wikiagent/internal/policy"
)

// ErrCorrupt is returned by Load when a snapshot exists but cannot be
// decoded. The store is reset to empty state in that case.
var ErrCorrupt = errors.New("memory snapshot is corrupt")

// Store is an agent's memory. It is owned by a single agent; the mutex only
// guards concurrent readers such as the status endpoint.
type Store struct {
	mu         sync.RWMutex
	backend    Backend
	data       *Data
	seen       map[string]struct{}
	maxSeen    int
	maxHistory int
}

// NewStore creates an empty store persisted through backend.
func NewStore(backend Backend, config Config) *Store {
	maxSeen := config.MaxSeen
	if maxSeen <= 0 {
		maxSeen = DefaultMaxSeen
	}
	maxHistory := config.MaxHistory
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		backend:    backend,
		data:       newData(),
		seen:       map[string]struct{}{},
		maxSeen:    maxSeen,
		maxHistory: maxHistory,
	}
}

// Load reads the snapshot from the backend. A missing snapshot leaves the
// store empty and returns nil. An unreadable or corrupt snapshot also leaves
// the store empty but returns the cause so the caller can log it; the store
// is usable either way.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.backend.Read(ctx)
	if err != nil {
		s.reset()
		if errors.Is(err, ErrNoSnapshot) {
			return nil
		}
		return fmt.Errorf("read memory from %s: %w", s.backend, err)
	}

	data := newData()
	if err := json.Unmarshal(raw, data); err != nil {
		s.reset()
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if data.TopicPerformance == nil {
		data.TopicPerformance = map[string]*TopicStats{}
	}
	for topic, stats := range data.TopicPerformance {
		if stats == nil {
			delete(data.TopicPerformance, topic)
		}
	}
	if data.History == nil {
		data.History = []HistoryEntry{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := data.SeenQuestionIDs
	data.SeenQuestionIDs = make([]string, 0, len(ids))
	s.data = data
	s.seen = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.markSeenLocked(id)
	}
	s.pruneHistoryLocked()
	return nil
}

// Save writes a full snapshot to the backend.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	raw, err := json.MarshalIndent(s.data, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}
	if err := s.backend.Write(ctx, raw); err != nil {
		return fmt.Errorf("write memory to %s: %w", s.backend, err)
	}
	return nil
}

// Reset discards all state in memory. Call Save to persist the reset.
func (s *Store) Reset() {
	s.reset()
}

func (s *Store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = newData()
	s.seen = map[string]struct{}{}
}

// BeginLoop increments the loop counter and stamps the loop start time.
func (s *Store) BeginLoop(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Loops++
	t := now.UTC()
	s.data.LastLoopAt = &t
	return s.data.Loops
}

// HasSeen reports whether the question was already considered.
func (s *Store) HasSeen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// MarkSeen adds id to the seen set, evicting the oldest ids beyond capacity.
func (s *Store) MarkSeen(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markSeenLocked(id)
}

func (s *Store) markSeenLocked(id string) {
	if id == "" {
		return
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.data.SeenQuestionIDs = append(s.data.SeenQuestionIDs, id)

	if excess := len(s.data.SeenQuestionIDs) - s.maxSeen; excess > 0 {
		for _, evicted := range s.data.SeenQuestionIDs[:excess] {
			delete(s.seen, evicted)
		}
		s.data.SeenQuestionIDs = append([]string(nil), s.data.SeenQuestionIDs[excess:]...)
	}
}

// RecordOutcome bumps seen for every topic and win or loss by outcome.
func (s *Store) RecordOutcome(topics []string, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, topic := range normalizeTopics(topics) {
		stats, ok := s.data.TopicPerformance[topic]
		if !ok {
			stats = &TopicStats{}
			s.data.TopicPerformance[topic] = stats
		}
		stats.Seen++
		switch outcome {
		case OutcomeSuccess:
			stats.Win++
		case OutcomeFailure:
			stats.Loss++
		}
	}
}

// AppendHistory records a decision, dropping the oldest beyond capacity.
func (s *Store) AppendHistory(entry HistoryEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.History = append(s.data.History, entry)
	s.pruneHistoryLocked()
}

func (s *Store) pruneHistoryLocked() {
	if excess := len(s.data.History) - s.maxHistory; excess > 0 {
		s.data.History = append([]HistoryEntry(nil), s.data.History[excess:]...)
	}
}

// TopicPrior averages clamp((win-loss)/max(1,seen), -1, 1) over topics.
// Unknown topics contribute zero.
func (s *Store) TopicPrior(topics []string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	topics = normalizeTopics(topics)
	var sum float64
	for _, topic := range topics {
		stats, ok := s.data.TopicPerformance[topic]
		if !ok {
			continue
		}
		seen := stats.Seen
		if seen < 1 {
			seen = 1
		}
		sum += clamp(float64(stats.Win-stats.Loss)/float64(seen), -1, 1)
	}
	return sum / float64(len(topics))
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() Data {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := Data{
		Version:          s.data.Version,
		SeenQuestionIDs:  append([]string(nil), s.data.SeenQuestionIDs...),
		TopicPerformance: make(map[string]*TopicStats, len(s.data.TopicPerformance)),
		History:          append([]HistoryEntry(nil), s.data.History...),
		Loops:            s.data.Loops,
	}
	for k, v := range s.data.TopicPerformance {
		stats := *v
		out.TopicPerformance[k] = &stats
	}
	if s.data.LastLoopAt != nil {
		t := *s.data.LastLoopAt
		out.LastLoopAt = &t
	}
	return out
}

// Loops returns the loop counter.
func (s *Store) Loops() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Loops
}

// Backend returns the snapshot backend.
func (s *Store) Backend() Backend {
	return s.backend
}

func normalizeTopics(topics []string) []string {
	if len(topics) == 0 {
		return []string{policy.GeneralTopic}
	}
	return topics
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
