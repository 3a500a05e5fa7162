/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing
// for relaycast: HTTP request/connection metrics for internal/api, and
// relay-domain metrics (listener counts, RTP throughput, dispatcher
// selections) fed by internal/room, internal/audiorelay, and
// internal/dispatch.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIActiveConnections tracks in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relaycast_api_active_connections",
		Help: "Number of in-flight HTTP requests.",
	})

	// APIRequestDuration observes HTTP request latency by method, route,
	// and status code.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "relaycast_api_request_duration_seconds",
		Help: "HTTP request latency in seconds.",
	}, []string{"method", "route", "status"})

	// APIRequestsTotal counts completed HTTP requests by method, route,
	// and status code.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycast_api_requests_total",
		Help: "Total completed HTTP requests.",
	}, []string{"method", "route", "status"})

	// RoomsActive tracks the current number of rooms, by kind.
	RoomsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relaycast_rooms_active",
		Help: "Current number of rooms, by kind.",
	}, []string{"kind"})

	// RoomListeners tracks the current listener count for a single room.
	RoomListeners = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relaycast_room_listeners",
		Help: "Current listener count, by room name.",
	}, []string{"room"})

	// RTPPacketsTotal counts RTP packets relayed per audio room.
	RTPPacketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycast_rtp_packets_total",
		Help: "Total RTP packets relayed, by room.",
	}, []string{"room"})

	// RTPBytesTotal counts RTP payload bytes relayed per audio room.
	RTPBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycast_rtp_bytes_total",
		Help: "Total RTP payload bytes relayed, by room.",
	}, []string{"room"})

	// DispatcherSelectionsTotal counts ChooseRoom outcomes per dispatcher
	// and result (selected, no_room_available).
	DispatcherSelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycast_dispatcher_selections_total",
		Help: "Total dispatcher ChooseRoom invocations, by dispatcher and result.",
	}, []string{"dispatcher", "result"})

	// DatabaseQueryDuration observes GORM call latency against the
	// dispatcher store, by operation and table.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "relaycast_db_query_duration_seconds",
		Help: "Dispatcher store query latency in seconds, by operation and table.",
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts GORM call failures, by operation.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relaycast_db_errors_total",
		Help: "Total dispatcher store query errors, by operation and kind.",
	}, []string{"operation", "kind"})

	// DatabaseConnectionsActive tracks open connections to the dispatcher
	// store's backing SQL database.
	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relaycast_db_connections_active",
		Help: "Open connections to the dispatcher store database.",
	})
)

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
