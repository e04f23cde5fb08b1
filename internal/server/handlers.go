package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"chronoscope/internal/core/ports"
	"chronoscope/internal/delivery"
)

// handleState answers GET /api/state with the full pipeline snapshot:
// status cards, delegation forest and chain, and the interaction timeline.
func (s *Server) handleState(state ports.StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, state.Snapshot())
	}
}

// handleHealth answers GET /health with liveness and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

// handleStream answers GET /api/events/stream with a server-sent event
// stream of newly appended events. History is not replayed: clients hydrate
// from /api/state first and then receive only subsequent events. A consumer
// that falls behind sees a "gap" marker where buffered events were dropped.
func (s *Server) handleStream(hub *delivery.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sub := hub.Subscribe()
		defer hub.Unsubscribe(sub)

		delivered := 0
		defer func() {
			AddLogField(r.Context(), "stream_items", strconv.Itoa(delivered))
		}()

		// The drain loop runs on this connection's goroutine alone; a slow
		// write here delays nobody else.
		for {
			item, ok := sub.Next(r.Context())
			if !ok {
				return
			}
			if err := writeSSE(w, item); err != nil {
				requestID, _ := r.Context().Value(RequestIDKey).(string)
				s.logger.Debug("stream client went away",
					slog.String("request_id", requestID),
					slog.String("error", err.Error()))
				return
			}
			flusher.Flush()
			delivered++
		}
	}
}

func writeSSE(w http.ResponseWriter, item delivery.Item) error {
	name := "gap"
	var payload any = map[string]int{"dropped": item.Dropped}
	if !item.Gap {
		name = string(item.Event.Type)
		payload = item.Event
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + name + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
