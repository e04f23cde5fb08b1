// Package eventstore is the single source of truth for the ordered event log
// and the coordination point between all producers and consumers. Every
// mutation funnels through Append under one lock; reads copy data out and
// never expose internal references.
package eventstore

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chronoscope/internal/core/domain"
	"chronoscope/internal/core/ports"
	"chronoscope/internal/derive"
	"chronoscope/internal/metrics"
)

const (
	// DefaultMaxEvents bounds the raw log; the oldest entries fall off once
	// the limit is reached.
	DefaultMaxEvents = 10_000

	// DefaultEventLimit caps query results when the caller gives no limit.
	DefaultEventLimit = 20

	// recentEventCount is how many trailing raw events a snapshot carries.
	recentEventCount = 20
)

// Store holds the append-only event log and its derived views. Append,
// Snapshot, and EventsFor serialize on one mutex; the lock covers only
// in-memory mutation, never I/O, so hold times stay bounded.
type Store struct {
	mu           sync.Mutex
	log          []domain.Event
	interactions []domain.Event
	dedup        map[string]string
	state        *derive.State

	publisher ports.EventPublisher
	maxEvents int
	clock     func() time.Time
	logger    *slog.Logger
}

// Option customizes store construction.
type Option func(*Store)

// WithPublisher attaches the live-delivery fan-out. Publish is invoked under
// the store lock so subscribers observe events in commit order; the
// publisher must not block.
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithMaxEvents overrides the raw log capacity.
func WithMaxEvents(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// WithClock lets tests control ingestion timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		dedup:     make(map[string]string),
		state:     derive.NewState(),
		maxEvents: DefaultMaxEvents,
		clock:     func() time.Time { return time.Now().UTC() },
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append validates ev, assigns its ID and ingestion timestamp when absent,
// de-duplicates against retries, inserts it into the log, folds it into the
// derived views, and hands it to the publisher — all before the lock is
// released, so every observer sees the same order.
//
// A retry with an identical de-dup key is a no-op returning the original ID.
// A malformed event is rejected with a *domain.ValidationError and not
// stored.
func (s *Store) Append(ev domain.Event) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ev.DedupKey()
	if key != "" {
		if id, ok := s.dedup[key]; ok {
			metrics.DuplicatesSuppressed.Inc()
			return id, nil
		}
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.clock()
	}
	if key != "" {
		s.dedup[key] = ev.ID
	}

	if len(s.log) >= s.maxEvents {
		evicted := s.log[0]
		s.log = s.log[1:]
		if key := evicted.DedupKey(); key != "" {
			delete(s.dedup, key)
		}
	}
	s.log = append(s.log, ev)

	s.state.Apply(ev)
	if ev.Type == domain.EventInteraction {
		s.interactions = append(s.interactions, ev)
	}

	if s.publisher != nil {
		s.publisher.Publish(ev)
	}

	return ev.ID, nil
}

// Snapshot returns a consistent point-in-time view: all status cards, the
// delegation forest and chain, the interaction timeline, and the tail of the
// raw log. It never observes a partially applied Append, and the caller owns
// every byte of the result.
func (s *Store) Snapshot() domain.PipelineSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	recent := s.log
	if len(recent) > recentEventCount {
		recent = recent[len(recent)-recentEventCount:]
	}

	return domain.PipelineSnapshot{
		Agents:          s.state.Cards(),
		Hierarchy:       s.state.Forest(),
		Interactions:    copyEvents(s.interactions),
		DelegationChain: s.state.Chain(),
		EventCount:      len(s.log),
		RecentEvents:    copyEvents(recent),
	}
}

// EventsFor returns the raw events concerning one agent in ingestion order,
// matching on agent ID or agent type, optionally filtered by a label
// expression ("key=value" or bare "key") and capped at the limit's most
// recent entries. An unknown agent yields an empty slice, not an error.
func (s *Store) EventsFor(agentID, label string, limit int) []domain.Event {
	if limit <= 0 {
		limit = DefaultEventLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Event
	for _, ev := range s.log {
		if ev.AgentID != agentID && ev.AgentType != agentID {
			continue
		}
		if !ev.MatchLabel(label) {
			continue
		}
		matched = append(matched, ev)
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// Card returns the derived status card for one agent key.
func (s *Store) Card(key string) (domain.AgentCard, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Card(key)
}

// Len reports the number of events currently in the log.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

// SweepOrphans marks agents that went silent past the grace period as
// orphaned. Intended to run on a timer; a start hook whose stop never
// arrives is surfaced instead of lingering as running forever.
func (s *Store) SweepOrphans(grace time.Duration) int {
	s.mu.Lock()
	stale := s.state.MarkStale(s.clock(), grace)
	s.mu.Unlock()

	for _, key := range stale {
		s.logger.Warn("agent went silent past grace period, marking orphaned",
			slog.String("agent", key),
			slog.Duration("grace", grace))
	}
	return len(stale)
}

func copyEvents(events []domain.Event) []domain.Event {
	return append([]domain.Event(nil), events...)
}
