// Copyright 2026 The Airwave Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay's instrumentation on a private registry so
// tests can run hubs side by side without duplicate registration.
type Metrics struct {
	registry *prometheus.Registry

	ConnectedStations prometheus.Gauge
	ChannelMembers    *prometheus.GaugeVec
	JoinsTotal        *prometheus.CounterVec
	JoinRejections    *prometheus.CounterVec
	MessagesRelayed   *prometheus.CounterVec
	DroppedClients    prometheus.Counter
}

// NewMetrics builds the relay metric set on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	metrics := &Metrics{
		registry: registry,
		ConnectedStations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "airwave_relay_connected_stations",
			Help: "Stations currently holding a signaling connection.",
		}),
		ChannelMembers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "airwave_relay_channel_members",
			Help: "Current member count per channel.",
		}, []string{"channel"}),
		JoinsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airwave_relay_joins_total",
			Help: "Committed channel joins.",
		}, []string{"channel"}),
		JoinRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airwave_relay_join_rejections_total",
			Help: "Rejected joins by error code.",
		}, []string{"code"}),
		MessagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "airwave_relay_messages_relayed_total",
			Help: "Signaling messages routed, by type.",
		}, []string{"type"}),
		DroppedClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "airwave_relay_dropped_clients_total",
			Help: "Connections closed because the station stopped reading.",
		}),
	}

	registry.MustRegister(
		metrics.ConnectedStations,
		metrics.ChannelMembers,
		metrics.JoinsTotal,
		metrics.JoinRejections,
		metrics.MessagesRelayed,
		metrics.DroppedClients,
	)
	return metrics
}

// Registry exposes the backing registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
