// Package metrics exposes Prometheus instrumentation for the event pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts events accepted into the store, per producer.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronoscope_events_ingested_total",
		Help: "Events accepted into the store, labeled by producing adapter.",
	}, []string{"source"})

	// EventsRejected counts events rejected by validation, per producer.
	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronoscope_events_rejected_total",
		Help: "Events rejected by payload validation, labeled by producing adapter.",
	}, []string{"source"})

	// DuplicatesSuppressed counts idempotent retries answered from the
	// de-duplication index.
	DuplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronoscope_events_deduplicated_total",
		Help: "Appends suppressed because an identical event was already stored.",
	})

	// StreamDropped counts events dropped from subscriber queues under
	// backpressure.
	StreamDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronoscope_stream_dropped_total",
		Help: "Events dropped from live-stream queues due to slow consumers.",
	})

	// SubscriptionsActive gauges currently connected live-stream sessions.
	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chronoscope_stream_subscriptions",
		Help: "Currently active live-stream subscriptions.",
	})
)
