package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections_active",
			Help: "Number of authenticated websocket connections.",
		},
	)

	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_auth_failures_total",
			Help: "Total number of rejected websocket handshakes.",
		},
		[]string{"reason"},
	)

	MessagesPersistedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "messages_persisted_total",
			Help: "Total number of messages durably stored.",
		},
	)

	LiveDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_live_deliveries_total",
			Help: "Live delivery attempts by outcome.",
		},
		[]string{"outcome"},
	)

	BroadcastPushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_broadcast_pushes_total",
			Help: "Presence and typing pushes by event and outcome.",
		},
		[]string{"event", "outcome"},
	)

	InboundEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_inbound_events_total",
			Help: "Inbound websocket events by name.",
		},
		[]string{"event"},
	)
)

// Delivery outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeOffline   = "offline"
	OutcomeFailed    = "failed"
)

func MustRegister() {
	prometheus.MustRegister(
		ConnectionsActive,
		AuthFailuresTotal,
		MessagesPersistedTotal,
		LiveDeliveriesTotal,
		BroadcastPushesTotal,
		InboundEventsTotal,
	)
}
