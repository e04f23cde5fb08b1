// Package hook ingests process-lifecycle notifications posted by the
// observed pipeline's hook scripts. The receiver is fire-and-forget from the
// pipeline's point of view: it answers success no matter what happened
// internally, trading observability completeness for zero risk of blocking
// the observed system.
package hook

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"chronoscope/internal/core/domain"
	"chronoscope/internal/core/ports"
	"chronoscope/internal/metrics"
)

const source = "hook"

// payload is the transport shape posted by hook scripts. Canonical field
// names are accepted directly; the hook-script dialect (hook_event_name,
// tool_input) is translated in translate below.
type payload struct {
	// Canonical fields.
	EventType   string            `json:"event_type"`
	SessionID   string            `json:"session_id"`
	AgentID     string            `json:"agent_id"`
	AgentType   string            `json:"agent_type"`
	Phase       int               `json:"phase"`
	TotalPhases int               `json:"total_phases"`
	PhaseName   string            `json:"phase_name"`
	Message     string            `json:"message"`
	FilePath    string            `json:"file_path"`
	Timestamp   time.Time         `json:"timestamp"`
	Labels      map[string]string `json:"labels"`
	Nonce       string            `json:"nonce"`

	// Hook-script dialect.
	HookEventName string          `json:"hook_event_name"`
	SubagentType  string          `json:"subagent_type"`
	ToolName      string          `json:"tool_name"`
	ToolInput     json.RawMessage `json:"tool_input"`
}

// Receiver translates hook payloads into canonical events and submits them
// to the store.
type Receiver struct {
	sink   ports.EventSink
	logger *slog.Logger
}

// NewReceiver creates a hook receiver writing into sink.
func NewReceiver(sink ports.EventSink, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{sink: sink, logger: logger}
}

// ServeHTTP handles POST /api/events. It always answers 200: ingestion
// failures are logged, never surfaced, so a hook script waiting on this
// response can never stall or fail the pipeline it instruments.
func (rc *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body payload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		rc.logger.Warn("hook payload was not valid JSON", slog.String("error", err.Error()))
		respond(w, "")
		return
	}

	ev, ok := rc.translate(body)
	if !ok {
		respond(w, "")
		return
	}

	id, err := rc.sink.Append(ev)
	if err != nil {
		metrics.EventsRejected.WithLabelValues(source).Inc()
		rc.logger.Warn("hook event rejected",
			slog.String("event_type", string(ev.Type)),
			slog.String("error", err.Error()))
		respond(w, "")
		return
	}

	metrics.EventsIngested.WithLabelValues(source).Inc()
	respond(w, id)
}

// translate maps a transport payload to a canonical event. Unknown hook
// names are dropped (logged at debug) rather than rejected so newer hook
// scripts stay compatible with older collectors.
func (rc *Receiver) translate(body payload) (domain.Event, bool) {
	ev := domain.Event{
		Type:        domain.EventType(body.EventType),
		SessionID:   body.SessionID,
		AgentID:     body.AgentID,
		AgentType:   body.AgentType,
		Phase:       body.Phase,
		TotalPhases: body.TotalPhases,
		PhaseName:   body.PhaseName,
		Message:     body.Message,
		FilePath:    body.FilePath,
		Timestamp:   body.Timestamp,
		Labels:      body.Labels,
		Nonce:       body.Nonce,
	}

	if body.EventType == "" {
		switch body.HookEventName {
		case "SubagentStart":
			ev.Type = domain.EventAgentStart
			if ev.Message == "" {
				ev.Message = "subagent started"
			}
		case "SubagentStop":
			ev.Type = domain.EventAgentStop
			if ev.Message == "" {
				ev.Message = "subagent stopped"
			}
		case "PostToolUse":
			ev.Type = domain.EventToolUse
			if ev.Message == "" {
				ev.Message = body.ToolName
			}
			if ev.FilePath == "" {
				ev.FilePath = toolInputFilePath(body.ToolInput)
			}
		default:
			rc.logger.Debug("ignoring unknown hook event",
				slog.String("hook_event_name", body.HookEventName))
			return domain.Event{}, false
		}
	}

	if ev.AgentType == "" && body.SubagentType != "" {
		ev.AgentType = body.SubagentType
	}
	return ev, true
}

func toolInputFilePath(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var input struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal(raw, &input); err != nil {
		return ""
	}
	return input.FilePath
}

func respond(w http.ResponseWriter, eventID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := map[string]string{"status": "accepted"}
	if eventID != "" {
		resp["event_id"] = eventID
	}
	_ = json.NewEncoder(w).Encode(resp)
}
