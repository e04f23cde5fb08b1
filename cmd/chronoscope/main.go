// Command chronoscope runs the pipeline observability service: it ingests
// lifecycle hooks, RPC tool calls, and progress-log lines into one event
// store and serves the reconstructed pipeline state to dashboard clients
// over HTTP, SSE, and JSON-RPC.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"chronoscope/internal/config"
	"chronoscope/internal/delivery"
	"chronoscope/internal/eventstore"
	"chronoscope/internal/ingest/hook"
	"chronoscope/internal/ingest/tailwatch"
	"chronoscope/internal/rpc"
	"chronoscope/internal/server"
	"chronoscope/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	shutdownTracer, err := telemetry.Init("chronoscope", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load(os.Getenv("CHRONO_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	hub := delivery.NewHub(
		delivery.WithQueueSize(cfg.Stream.Queue),
		delivery.WithLogger(logger),
	)
	store := eventstore.New(
		eventstore.WithPublisher(hub),
		eventstore.WithMaxEvents(cfg.Store.Capacity),
		eventstore.WithLogger(logger),
	)

	srv := server.New(cfg.Server.Port, logger)
	srv.RegisterRoutes(
		hook.NewReceiver(store, logger),
		rpc.NewHandler(store, store, logger),
		store,
		hub,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Watch.Dir != "" {
		watcher := tailwatch.New(cfg.Watch.Dir, store,
			tailwatch.WithRescanInterval(cfg.Watch.Rescan),
			tailwatch.WithLogger(logger),
		)
		group.Go(func() error {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		logger.Info("no watch directory configured, phase tracking disabled")
	}

	if cfg.Store.Grace > 0 {
		group.Go(func() error {
			ticker := time.NewTicker(cfg.Store.Grace / 2)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					store.SweepOrphans(cfg.Store.Grace)
				}
			}
		})
	}

	logger.Info("chronoscope started",
		slog.Int("port", cfg.Server.Port),
		slog.String("watch_dir", cfg.Watch.Dir))

	if err := group.Wait(); err != nil {
		logger.Error("service exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
