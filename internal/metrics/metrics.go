// Relay - Real-time Messaging for the OpenLancer Marketplace
// Copyright 2026 OpenLancer Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/openlancer/relay

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection / presence metrics
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_connections",
			Help: "Current number of open websocket connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_online_users",
			Help: "Current number of users with at least one open connection",
		},
	)

	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_presence_transitions_total",
			Help: "Total online/offline presence transitions",
		},
		[]string{"direction"}, // "online", "offline"
	)

	// Message metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_sent_total",
			Help: "Total messages accepted and persisted",
		},
	)

	MessagesFannedOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_fanned_out_total",
			Help: "Total receive events emitted to recipient connections",
		},
	)

	MessagesReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_replayed_total",
			Help: "Total messages replayed by missed-message sync",
		},
	)

	DeliveryTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_delivery_transitions_total",
			Help: "Total per-recipient delivery state transitions",
		},
		[]string{"state"}, // "delivered", "read"
	)

	DroppedConnections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_dropped_connections_total",
			Help: "Connections dropped because their send buffer was full",
		},
	)

	TypingExpirations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_typing_expirations_total",
			Help: "Typing indicators expired server-side without an explicit stop",
		},
	)

	SocketErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_socket_errors_total",
			Help: "Error events emitted to clients, by code",
		},
		[]string{"code"},
	)

	// Store metrics
	StoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_store_op_duration_seconds",
			Help:    "Duration of conversation/message store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_api_requests_total",
			Help: "Total REST requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_api_request_duration_seconds",
			Help:    "REST request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)
)

// ObserveStoreOp records a store operation's duration from its start time.
// Use with defer:
//
//	defer metrics.ObserveStoreOp("append_message", time.Now())
func ObserveStoreOp(operation string, start time.Time) {
	StoreOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordDeliveryTransition counts a delivery-state transition.
func RecordDeliveryTransition(state string) {
	DeliveryTransitions.WithLabelValues(state).Inc()
}

// RecordAPIRequest records one REST request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSocketError counts an error event emitted to a client.
func RecordSocketError(code string) {
	SocketErrors.WithLabelValues(code).Inc()
}
