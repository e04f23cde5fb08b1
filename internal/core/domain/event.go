// Package domain provides the canonical event model for the observed pipeline.
// Events are immutable facts: once a producer's message is accepted they are
// only ever appended to the log, never mutated or removed.
package domain

import (
	"strings"
	"time"
)

// EventType identifies what kind of pipeline fact an Event records.
type EventType string

const (
	// EventAgentStart indicates a sub-agent process was spawned.
	EventAgentStart EventType = "agent_start"
	// EventAgentStop indicates a sub-agent process finished.
	EventAgentStop EventType = "agent_stop"
	// EventPhaseTransition indicates an agent moved to a new phase of its work.
	EventPhaseTransition EventType = "phase_transition"
	// EventToolUse indicates an agent invoked a tool (file write, command, etc.).
	EventToolUse EventType = "tool_use"
	// EventInteraction indicates a directed exchange between two participants.
	EventInteraction EventType = "interaction"
	// EventError indicates an agent reported a failure.
	EventError EventType = "error"
)

// ValidEventType reports whether t is one of the known event types.
func ValidEventType(t EventType) bool {
	switch t {
	case EventAgentStart, EventAgentStop, EventPhaseTransition, EventToolUse, EventInteraction, EventError:
		return true
	}
	return false
}

// Event is a single record in the pipeline event log.
//
// ID and Timestamp are assigned at ingestion time when the producer did not
// supply them. For interaction events the Source/Target/Summary/Interaction
// fields carry the exchange; lifecycle and phase events use the agent fields.
type Event struct {
	// ID uniquely identifies this event. Assigned by the store on append.
	ID string `json:"event_id"`

	// Type is the kind of fact this event records.
	Type EventType `json:"event_type"`

	// Timestamp is when the event was accepted (or the producer's reading,
	// when one was supplied).
	Timestamp time.Time `json:"timestamp"`

	// SessionID identifies the top-level conversation/run owning this event.
	SessionID string `json:"session_id,omitempty"`

	// AgentID and AgentType identify the sub-agent this event concerns.
	// Absent for interaction events.
	AgentID   string `json:"agent_id,omitempty"`
	AgentType string `json:"agent_type,omitempty"`

	// Phase fields, populated for phase_transition events.
	Phase       int    `json:"phase,omitempty"`
	TotalPhases int    `json:"total_phases,omitempty"`
	PhaseName   string `json:"phase_name,omitempty"`

	// Message is a human-readable description or summary line.
	Message string `json:"message,omitempty"`

	// FilePath is the file touched, for tool_use events.
	FilePath string `json:"file_path,omitempty"`

	// Interaction fields, populated for interaction events.
	Source      string          `json:"source,omitempty"`
	Target      string          `json:"target,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Interaction InteractionType `json:"interaction_type,omitempty"`

	// Labels are free-form key-value annotations (feature=auth, urgent, ...).
	Labels map[string]string `json:"labels,omitempty"`

	// Nonce is a producer-supplied retry token used for de-duplication.
	Nonce string `json:"nonce,omitempty"`
}

// AgentKey returns the identity used to track this event's agent: the agent
// ID when present, otherwise the agent type. Phase lines from the progress
// log carry only an agent name, so the type fallback keeps them correlated.
func (e Event) AgentKey() string {
	if e.AgentID != "" {
		return e.AgentID
	}
	return e.AgentType
}

// Validate checks that the event carries the fields its type requires.
// A structurally valid event never fails an append; a malformed one is
// rejected before it reaches the log.
func (e Event) Validate() error {
	if !ValidEventType(e.Type) {
		return &ValidationError{Field: "event_type", Reason: "unknown event type " + string(e.Type)}
	}
	switch e.Type {
	case EventInteraction:
		if e.Source == "" {
			return &ValidationError{Field: "source", Reason: "interaction requires a source"}
		}
		if e.Target == "" {
			return &ValidationError{Field: "target", Reason: "interaction requires a target"}
		}
		if !ValidInteractionType(e.Interaction) {
			return &ValidationError{Field: "interaction_type", Reason: "unknown interaction type " + string(e.Interaction)}
		}
	case EventToolUse:
		if e.SessionID == "" && e.AgentKey() == "" {
			return &ValidationError{Field: "session_id", Reason: "tool_use requires a session or agent identity"}
		}
	default:
		if e.AgentKey() == "" {
			return &ValidationError{Field: "agent_id", Reason: string(e.Type) + " requires an agent identity"}
		}
	}
	return nil
}

// DedupKey derives the idempotency key for this event from its session,
// agent, type, and the producer-supplied nonce or timestamp. An empty key
// means the producer gave the store nothing to correlate retries on, and the
// event is treated as unique.
func (e Event) DedupKey() string {
	token := e.Nonce
	if token == "" {
		if e.Timestamp.IsZero() {
			return ""
		}
		token = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return strings.Join([]string{e.SessionID, e.AgentKey(), string(e.Type), token}, "|")
}

// MatchLabel evaluates a label filter expression against the event's labels.
// "key=value" requires an exact match; a bare "key" requires presence.
func (e Event) MatchLabel(expr string) bool {
	if expr == "" {
		return true
	}
	if key, value, ok := strings.Cut(expr, "="); ok {
		return e.Labels[key] == value
	}
	_, ok := e.Labels[expr]
	return ok
}
