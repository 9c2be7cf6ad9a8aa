package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "m5chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "m5chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	MessagesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "m5chat_messages_stored_total",
			Help: "Total messages accepted and persisted",
		},
		[]string{"type"},
	)

	MessagesReaped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "m5chat_messages_reaped_total",
			Help: "Total expired messages deleted by the reaper",
		},
	)

	ReaperRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "m5chat_reaper_runs_total",
			Help: "Total reaper sweeps",
		},
		[]string{"result"}, // "ok" or "error"
	)

	EventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "m5chat_events_broadcast_total",
			Help: "Total events fanned out to rooms",
		},
		[]string{"event"},
	)

	SessionsJoined = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "m5chat_sessions_joined",
			Help: "Sessions currently joined to a room",
		},
	)

	RoomsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "m5chat_rooms_open",
			Help: "Rooms with at least one joined session",
		},
	)
)
