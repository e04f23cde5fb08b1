// Package ports defines the interfaces between the event store and the
// components around it: producers submit through EventSink, read surfaces
// consume StateSource, and the store fans out through EventPublisher.
package ports

import "chronoscope/internal/core/domain"

// EventSink is the single write entry point into the event store. Every
// ingestion adapter translates its transport format into a canonical
// domain.Event and submits it here; no adapter mutates derived state
// directly.
type EventSink interface {
	// Append validates, de-duplicates, and stores the event, returning the
	// assigned event ID. An identical retry returns the original ID.
	Append(ev domain.Event) (string, error)
}

// StateSource is the read-only query surface over the store, exposed
// identically to the HTTP API and the RPC tools.
type StateSource interface {
	// Snapshot returns a consistent point-in-time view of all derived state.
	Snapshot() domain.PipelineSnapshot

	// EventsFor returns the raw events for one agent, oldest first,
	// optionally filtered by a label expression and capped at limit.
	EventsFor(agentID, label string, limit int) []domain.Event
}

// EventPublisher receives every stored event, in commit order, for live
// delivery. Publish is invoked while the store's lock is held and must
// never block.
type EventPublisher interface {
	Publish(ev domain.Event)
}
