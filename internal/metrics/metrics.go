// Package metrics exposes Prometheus collectors for the chat delivery path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WSConnections tracks currently open messaging-channel connections.
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_connections",
			Help: "Number of open STOMP-over-WebSocket connections",
		},
	)

	// FramesReceived counts inbound STOMP frames.
	// Labels:
	//   - command: STOMP command (CONNECT, SEND, SUBSCRIBE, ...)
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_frames_received_total",
			Help: "Total number of inbound STOMP frames",
		},
		[]string{"command"},
	)

	// ConnectAttempts counts CONNECT handling outcomes.
	// Labels:
	//   - outcome: "accepted", "rejected"
	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_connect_attempts_total",
			Help: "Total number of CONNECT frames by outcome",
		},
		[]string{"outcome"},
	)

	// Dispatches counts chat dispatch outcomes.
	// Labels:
	//   - outcome: "ok", "sender_not_found", "room_not_found", "error"
	Dispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_dispatch_total",
			Help: "Total number of chat dispatches by outcome",
		},
		[]string{"outcome"},
	)

	// BroadcastDeliveries counts per-subscription fan-out results.
	// Labels:
	//   - result: "delivered", "dropped"
	BroadcastDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_broadcast_deliveries_total",
			Help: "Total number of broadcast deliveries to subscriptions",
		},
		[]string{"result"},
	)

	// PushResults counts push transport results.
	// Labels:
	//   - kind: "success", "invalid_argument", "unregistered", "other"
	PushResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_results_total",
			Help: "Total number of push notification attempts by result",
		},
		[]string{"kind"},
	)

	// PushDuration measures push transport latency.
	PushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "push_send_duration_seconds",
			Help:    "Duration of push notification sends",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	// TokenInvalidations counts device token deletions triggered by push failures.
	// Labels:
	//   - outcome: "deleted", "noop", "error"
	TokenInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_token_invalidations_total",
			Help: "Total number of device token invalidations",
		},
		[]string{"outcome"},
	)
)
