// Package metrics holds the Prometheus collectors exported on the admin listener.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "socketd_connections_active",
		Help: "Number of open websocket connections on this instance",
	})

	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketd_connections_total",
		Help: "Accepted websocket connections by identity kind",
	}, []string{"kind"}) // authenticated, anonymous

	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketd_events_received_total",
		Help: "Client events received by event name",
	}, []string{"event"})

	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketd_events_emitted_total",
		Help: "Events emitted by scope",
	}, []string{"scope"}) // all, channel, connection

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketd_frames_dropped_total",
		Help: "Outbound frames dropped because a connection queue was full",
	})

	MalformedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketd_malformed_events_total",
		Help: "Rejected client events by event name",
	}, []string{"event"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "socketd_rate_limited_total",
		Help: "Connection attempts rejected by the rate limiter",
	})

	StoreFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketd_store_fallbacks_total",
		Help: "Shared store operations answered by the in-process fallback",
	}, []string{"store", "op"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "socketd_store_breaker_state",
		Help: "Circuit breaker state per store (0=closed, 1=half-open, 2=open)",
	}, []string{"store"})

	ClusterPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketd_cluster_published_total",
		Help: "Envelopes published to the cluster bus",
	}, []string{"backend"})

	ClusterReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketd_cluster_received_total",
		Help: "Envelopes received from other instances",
	}, []string{"backend"})

	ClusterErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketd_cluster_errors_total",
		Help: "Cluster bus publish and decode errors",
	}, []string{"backend", "op"})

	EmitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "socketd_emit_requests_total",
		Help: "HTTP emit-event requests by status code",
	}, []string{"status"})

	NotifyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "socketd_notify_duration_seconds",
		Help:    "Outbound notifier request latency",
		Buckets: prometheus.DefBuckets,
	})
)
