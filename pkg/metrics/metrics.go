package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PredictionsEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cancelradar_predictions_evaluated_total",
		Help: "Total number of sales scored, labelled by recommendation.",
	}, []string{"recommendation"})

	AlertsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cancelradar_alerts_created_total",
		Help: "Total number of alerts persisted.",
	})

	AlertsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cancelradar_alerts_duplicate_total",
		Help: "Total number of above-threshold sales ignored because the sale was already alerted.",
	})

	RemindersDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cancelradar_reminders_total",
		Help: "Total number of reminder send attempts, labelled by trigger and status.",
	}, []string{"trigger", "status"})

	BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cancelradar_batch_duration_seconds",
		Help:    "Reminder batch run latency in seconds, labelled by trigger.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"trigger"})

	PendingAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cancelradar_pending_alerts",
		Help: "Number of alerts whose reminder has not been sent, as of the last stats read.",
	})
)
