// Package server assembles the HTTP surface: hook ingestion, the snapshot
// query, the live event stream, the JSON-RPC tool endpoint, health, and
// metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chronoscope/internal/core/ports"
	"chronoscope/internal/delivery"
)

// requestTimeout bounds the request/response endpoints. The live stream is
// exempt: an open subscription has no deadline.
const requestTimeout = 10 * time.Second

// Server owns the router and HTTP listener.
type Server struct {
	Router *chi.Mux
	Port   int

	httpServer *http.Server
	logger     *slog.Logger
	startTime  time.Time
}

// New builds the router with the standard middleware chain.
func New(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "chronoscope")
	})

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
	}
}

// RegisterRoutes wires every endpoint. The hook receiver is the only
// HTTP-side write path; rpcHandler carries the tool-call writes; everything
// else is read-only.
func (s *Server) RegisterRoutes(hookReceiver, rpcHandler http.Handler, state ports.StateSource, hub *delivery.Hub) {
	s.Router.Group(func(r chi.Router) {
		r.Use(TimeoutMiddleware(requestTimeout))

		r.Post("/api/events", hookReceiver.ServeHTTP)
		r.Get("/api/state", s.handleState(state))
		r.Post("/rpc", rpcHandler.ServeHTTP)
		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", promhttp.Handler())
	})

	// No timeout: the stream stays open for the life of the connection.
	s.Router.Get("/api/events/stream", s.handleStream(hub))
}

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.startTime = time.Now()
	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.Port),
		Handler:     s.Router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.logger.Info("starting server", slog.Int("port", s.Port))
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting new connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
