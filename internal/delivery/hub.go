// Package delivery fans stored events out to connected dashboard sessions.
// Each subscription owns a bounded queue drained by its connection's own
// loop, so a slow or stalled consumer loses history behind a gap marker
// instead of ever blocking ingestion.
package delivery

import (
	"context"
	"log/slog"
	"sync"

	"chronoscope/internal/core/domain"
	"chronoscope/internal/metrics"
)

// DefaultQueueSize bounds a subscription's pending events when no explicit
// capacity is configured.
const DefaultQueueSize = 256

// Item is one unit of the live stream: either a stored event or a gap
// marker recording how many events were dropped for this subscriber.
type Item struct {
	Gap     bool         `json:"gap,omitempty"`
	Dropped int          `json:"dropped,omitempty"`
	Event   domain.Event `json:"event,omitzero"`
}

// Subscription is the per-connection delivery state: a bounded queue of
// pending items and a liveness flag. Created by Hub.Subscribe, destroyed by
// Hub.Unsubscribe or connection close.
type Subscription struct {
	mu      sync.Mutex
	buf     []domain.Event
	dropped int
	cap     int
	closed  bool
	wake    chan struct{}
}

// enqueue adds ev without ever blocking. On overflow the oldest buffered
// event is dropped and accounted into a single coalesced gap marker that is
// delivered ahead of the remaining buffer.
func (s *Subscription) enqueue(ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	overflowed := false
	if len(s.buf) >= s.cap {
		s.buf = s.buf[1:]
		s.dropped++
		overflowed = true
	}
	s.buf = append(s.buf, ev)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return !overflowed
}

// Next blocks until an item is available, the subscription closes, or ctx is
// canceled. When events were dropped, the gap marker is delivered before any
// buffered event so the consumer sees the discontinuity in place.
func (s *Subscription) Next(ctx context.Context) (Item, bool) {
	for {
		s.mu.Lock()
		if s.dropped > 0 {
			item := Item{Gap: true, Dropped: s.dropped}
			s.dropped = 0
			s.mu.Unlock()
			return item, true
		}
		if len(s.buf) > 0 {
			ev := s.buf[0]
			s.buf = s.buf[1:]
			s.mu.Unlock()
			return Item{Event: ev}, true
		}
		if s.closed {
			s.mu.Unlock()
			return Item{}, false
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, false
		case <-s.wake:
		}
	}
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Hub tracks the active subscriptions and publishes every stored event to
// each of them in commit order.
type Hub struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	queueCap int
	logger   *slog.Logger
}

// Option customizes hub construction.
type Option func(*Hub)

// WithQueueSize overrides the per-subscription queue capacity.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queueCap = n
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:     make(map[*Subscription]struct{}),
		queueCap: DefaultQueueSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new subscriber with an empty queue. The caller must
// eventually Unsubscribe it.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		cap:  h.queueCap,
		wake: make(chan struct{}, 1),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	metrics.SubscriptionsActive.Inc()
	return sub
}

// Unsubscribe removes the subscription and releases its queue. Idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	_, present := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()
	if present {
		sub.close()
		metrics.SubscriptionsActive.Dec()
	}
}

// Publish enqueues ev into every active subscription. It is called while the
// event store's lock is held, so it must not block: overflowing queues drop
// their oldest entry instead of applying backpressure.
func (h *Hub) Publish(ev domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !sub.enqueue(ev) {
			metrics.StreamDropped.Inc()
			h.logger.Debug("subscriber fell behind, dropped oldest event",
				slog.String("event_id", ev.ID))
		}
	}
}

// Active returns the number of live subscriptions.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
