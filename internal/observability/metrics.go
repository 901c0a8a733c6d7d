package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PostTransitions counts successful lifecycle transitions.
	PostTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_post_transitions_total",
		Help: "Total number of post lifecycle transitions",
	}, []string{"transition"})

	// AuthAttempts counts register/login attempts by outcome.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_auth_attempts_total",
		Help: "Total number of authentication attempts",
	}, []string{"action", "outcome"})

	// RedisErrors counts Redis errors by operation type.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quill_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketConnections is the gauge of open notification sockets.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quill_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	// WebSocketDroppedMessages counts outbound messages dropped per reason.
	WebSocketDroppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quill_websocket_dropped_messages_total",
		Help: "Outbound websocket messages dropped because the client was closed or saturated",
	}, []string{"reason"})
)

// RecordTransition increments the transition counter.
func RecordTransition(transition string) {
	PostTransitions.WithLabelValues(transition).Inc()
}

// RecordAuthAttempt increments the auth attempt counter.
func RecordAuthAttempt(action string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	AuthAttempts.WithLabelValues(action, outcome).Inc()
}

// RecordRedisError increments the Redis error counter.
func RecordRedisError(operation string) {
	RedisErrors.WithLabelValues(operation).Inc()
}
