// Package rpc exposes the pipeline observability tools over JSON-RPC 2.0:
// participants report interactions through report_interaction, and clients
// read through get_pipeline_status and get_agent_events. The read methods
// answer from the same store accessors as the HTTP API, so both transports
// always agree.
package rpc

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"chronoscope/internal/core/domain"
	"chronoscope/internal/core/ports"
	"chronoscope/internal/metrics"
)

const source = "rpc"

// Handler dispatches JSON-RPC requests posted to the /rpc endpoint.
type Handler struct {
	sink   ports.EventSink
	state  ports.StateSource
	logger *slog.Logger
}

// NewHandler creates the RPC tool handler.
func NewHandler(sink ports.EventSink, state ports.StateSource, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{sink: sink, state: state, logger: logger}
}

// ServeHTTP handles one JSON-RPC request per POST body.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeResponse(w, NewErrorResponse(nil, CodeParseError, "invalid JSON-RPC request", err.Error()))
		return
	}
	if req.JSONRPC != Version {
		writeResponse(w, NewErrorResponse(req.ID, CodeInvalidRequest, "unsupported JSON-RPC version", req.JSONRPC))
		return
	}
	writeResponse(w, h.dispatch(&req))
}

func (h *Handler) dispatch(req *Request) *Response {
	switch req.Method {
	case "get_pipeline_status":
		return NewResponse(req.ID, h.state.Snapshot())
	case "get_agent_events":
		return h.getAgentEvents(req)
	case "report_interaction":
		return h.reportInteraction(req)
	default:
		return NewErrorResponse(req.ID, CodeMethodNotFound, "unknown method", req.Method)
	}
}

func (h *Handler) getAgentEvents(req *Request) *Response {
	var params struct {
		AgentID string `json:"agent_id"`
		Limit   int    `json:"limit"`
		Label   string `json:"label"`
	}
	if err := unmarshalParams(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "invalid params", err.Error())
	}
	if params.AgentID == "" {
		return NewErrorResponse(req.ID, CodeInvalidParams, "agent_id is required", nil)
	}

	// Absence of data is an expected condition: an unknown agent yields an
	// empty list, not an error.
	events := h.state.EventsFor(params.AgentID, params.Label, params.Limit)
	if events == nil {
		events = []domain.Event{}
	}
	return NewResponse(req.ID, events)
}

func (h *Handler) reportInteraction(req *Request) *Response {
	var params struct {
		Source          string            `json:"source"`
		Target          string            `json:"target"`
		Summary         string            `json:"summary"`
		InteractionType string            `json:"interaction_type"`
		Labels          map[string]string `json:"labels"`
		Nonce           string            `json:"nonce"`
	}
	if err := unmarshalParams(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, CodeInvalidParams, "invalid params", err.Error())
	}

	ev := domain.Event{
		Type:        domain.EventInteraction,
		Source:      params.Source,
		Target:      params.Target,
		Summary:     params.Summary,
		Interaction: domain.InteractionType(params.InteractionType),
		Labels:      params.Labels,
		Nonce:       params.Nonce,
	}

	id, err := h.sink.Append(ev)
	if err != nil {
		metrics.EventsRejected.WithLabelValues(source).Inc()
		if domain.IsValidation(err) {
			return NewErrorResponse(req.ID, CodeInvalidParams, err.Error(), nil)
		}
		h.logger.Error("report_interaction failed", slog.String("error", err.Error()))
		return NewErrorResponse(req.ID, CodeInternalError, "failed to record interaction", nil)
	}

	metrics.EventsIngested.WithLabelValues(source).Inc()
	return NewResponse(req.ID, map[string]string{
		"status":         "recorded",
		"interaction_id": id,
	})
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
