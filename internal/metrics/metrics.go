// Package metrics declares the Prometheus collectors the service exports.
// Everything is registered through promauto on the default registry and
// served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts requests by method, route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seatlock_http_requests_total",
		Help: "HTTP requests processed, labeled by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency per route.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seatlock_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// LockOps counts lock service outcomes: op is acquire/extend/release,
	// outcome is success/conflict/not_owned/store_error/invalid.
	LockOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seatlock_lock_operations_total",
		Help: "Lock operations by operation and outcome.",
	}, []string{"op", "outcome"})

	// SeatsLocked counts individual seats successfully locked.
	SeatsLocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seatlock_seats_locked_total",
		Help: "Seats locked across all acquire calls.",
	})

	// Subscribers gauges live WebSocket subscribers across all showtimes.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "seatlock_subscribers",
		Help: "Currently connected seat-map subscribers.",
	})

	// BroadcastsDropped counts broadcast jobs dropped because the
	// orchestrator queue was full.
	BroadcastsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "seatlock_broadcast_jobs_dropped_total",
		Help: "Broadcast jobs dropped due to a full queue.",
	})

	// BroadcastsSent counts events delivered to at least one subscriber.
	BroadcastsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seatlock_broadcasts_total",
		Help: "Broadcast events sent, labeled by event type.",
	}, []string{"type"})
)
