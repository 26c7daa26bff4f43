// Package metrics exposes Prometheus instrumentation for the chat server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActiveConnections tracks websocket connections currently joined to a room.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yapper_active_connections",
		Help: "Number of websocket connections currently joined to a room.",
	})

	// ActiveRooms tracks rooms with at least one member.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yapper_active_rooms",
		Help: "Number of rooms with at least one live member.",
	})

	// EventsBroadcast counts events fanned out to room members, by event type.
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yapper_events_broadcast_total",
		Help: "Events fanned out to room members, labeled by event type.",
	}, []string{"type"})

	// MessagesPersisted counts message rows written to the store.
	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yapper_messages_persisted_total",
		Help: "Chat events durably written to the message store.",
	})

	// SendFailures counts per-connection delivery failures during fan-out.
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yapper_send_failures_total",
		Help: "Per-connection send failures that forced a disconnect.",
	})
)

// Handler exposes Prometheus metrics at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
