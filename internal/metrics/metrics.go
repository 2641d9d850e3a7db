package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreate = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "reservation_create_total",
			Help:      "Count of per-slot reservation creates by status.",
		},
		[]string{"status"},
	)

	submission = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "submission_total",
			Help:      "Count of booking submissions by outcome.",
		},
		[]string{"outcome"},
	)

	reservationDelete = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "reservation_delete_total",
			Help:      "Count of reservation deletions by status.",
		},
		[]string{"status"},
	)

	calendarSync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "calendar_sync_total",
			Help:      "Count of calendar side-channel operations by op and status.",
		},
		[]string{"op", "status"},
	)

	outboxQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "roombook",
			Name:      "outbox_queue_size",
			Help:      "Tasks waiting in the calendar outbox.",
		},
	)

	dashboardFetch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "dashboard_fetch_total",
			Help:      "Count of dashboard reads by source.",
		},
		[]string{"source"},
	)

	configReload = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "roombook",
			Name:      "config_reload_total",
			Help:      "Count of config hot reloads by file and status.",
		},
		[]string{"file", "status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservationCreate, submission, reservationDelete, calendarSync, outboxQueueSize, dashboardFetch, configReload)
	})
}

func IncReservationCreate(status string) {
	reservationCreate.WithLabelValues(status).Inc()
}

func IncSubmission(outcome string) {
	submission.WithLabelValues(outcome).Inc()
}

func IncReservationDelete(status string) {
	reservationDelete.WithLabelValues(status).Inc()
}

func IncCalendarSync(op, status string) {
	calendarSync.WithLabelValues(op, status).Inc()
}

func SetOutboxQueueSize(n int) {
	outboxQueueSize.Set(float64(n))
}

func IncDashboardFetch(source string) {
	dashboardFetch.WithLabelValues(source).Inc()
}

func IncConfigReload(file, status string) {
	configReload.WithLabelValues(file, status).Inc()
}
