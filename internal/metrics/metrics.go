package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the attendance pipeline.
var (
	EventsLogged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_events_logged_total",
		Help: "Number of events durably recorded.",
	})

	AttendeesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_attendees_processed_total",
		Help: "Number of per-attendee profile updates applied.",
	})

	AttendeeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_attendee_failures_total",
		Help: "Number of per-attendee profile updates that failed.",
	})

	MarksAwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_marks_awarded_total",
		Help: "Number of marks awarded.",
	})

	RankChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_rank_changes_total",
		Help: "Number of externally driven rank changes adopted.",
	})

	PromotableDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_promotable_detected_total",
		Help: "Number of members found eligible for promotion by the sweep.",
	})
)
