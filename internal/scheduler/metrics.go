package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "weatherbot"

// Delivery outcomes.
const (
	outcomeSent         = "sent"
	outcomeContentError = "content_error"
	outcomeDeliverError = "deliver_error"
	outcomeSaveError    = "save_error"
	outcomeSkipped      = "skipped_config"
	outcomePanic        = "panic"
)

var (
	sweepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Total sweeps by result",
		},
		[]string{"result"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweep_duration_seconds",
			Help:      "Time to complete one sweep over all subscribers",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "deliveries_total",
			Help:      "Per-subscriber sweep outcomes",
		},
		[]string{"outcome"},
	)
)

func recordSweep(result string, d time.Duration) {
	sweepsTotal.WithLabelValues(result).Inc()
	sweepDuration.Observe(d.Seconds())
}

func recordOutcome(outcome string) {
	deliveries.WithLabelValues(outcome).Inc()
}
