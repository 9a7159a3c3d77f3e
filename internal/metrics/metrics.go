package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "sessions_created_total",
		Help:      "Live sessions created by the registry.",
	})

	SessionCreateConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "session_create_conflicts_total",
		Help:      "Live session inserts that lost a concurrent create and returned the winner.",
	})

	ParticipantEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "participant_events_total",
		Help:      "Membership changes by action (join, rejoin, leave).",
	}, []string{"action"})

	AttendanceMarks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "attendance_marks_total",
		Help:      "Attendance records written, by mode (single, bulk) and status.",
	}, []string{"mode", "status"})

	InteractionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "interaction_events_total",
		Help:      "Chat messages, hand raises and breakout rooms created.",
	}, []string{"kind"})

	ChangesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "changes_published_total",
		Help:      "Row change events published to the broker.",
	}, []string{"table", "type"})

	ChangesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "changes_dropped_total",
		Help:      "Row change events dropped because a subscriber was too slow.",
	}, []string{"table"})

	StreamClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "liveclass",
		Name:      "stream_clients",
		Help:      "Open websocket feeds by feed name.",
	}, []string{"feed"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "liveclass",
		Name:      "jobs_processed_total",
		Help:      "Background jobs handled by the worker, by type and outcome.",
	}, []string{"type", "outcome"})
)
