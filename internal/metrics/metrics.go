package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_published_total",
		Help: "Total number of envelopes accepted by the broker, labelled by event type.",
	}, []string{"event_type"})

	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_delivered_total",
		Help: "Total number of copies handed to a subscriber, labelled by subscription and status.",
	}, []string{"subscription", "status"})

	EventsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_filtered_total",
		Help: "Total number of copies not routed to a subscriber because its filter rejected them.",
	}, []string{"subscription"})

	MessagesDeadLettered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_dead_lettered_total",
		Help: "Total number of messages moved to a dead-letter queue.",
	}, []string{"queue"})

	AuditRecordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_audit_records_total",
		Help: "Audit inserts, labelled by entity and status.",
	}, []string{"entity", "status"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_events_notifications_total",
		Help: "Notification sends, labelled by status.",
	}, []string{"status"})

	BatchProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_events_batch_processing_duration_ms",
		Help:    "Notification batch processing latency in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	BatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_events_batch_size",
		Help:    "Number of messages per notification batch.",
		Buckets: []float64{1, 2, 3, 5, 10},
	})
)
