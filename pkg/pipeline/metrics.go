package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hivewatch",
			Subsystem: "pipeline",
			Name:      "events_consumed_total",
			Help:      "Events read from the inbound stream.",
		},
	)

	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hivewatch",
			Subsystem: "pipeline",
			Name:      "events_dropped_total",
			Help:      "Events dropped before a decision, by reason.",
		},
		[]string{"reason"},
	)

	eventsSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hivewatch",
			Subsystem: "pipeline",
			Name:      "events_suppressed_total",
			Help:      "Events scored at or below the alert threshold.",
		},
	)

	alertsEmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hivewatch",
			Subsystem: "pipeline",
			Name:      "alerts_emitted_total",
			Help:      "Alerts published to the outbound stream, by modality.",
		},
		[]string{"modality"},
	)

	scoreObserved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "hivewatch",
			Subsystem: "pipeline",
			Name:      "anomaly_score",
			Help:      "Distribution of anomaly scores.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
)

func init() {
	// Safe register; ignore duplicate registration in case of multiple imports
	_ = prometheus.Register(eventsConsumed)
	_ = prometheus.Register(eventsDropped)
	_ = prometheus.Register(eventsSuppressed)
	_ = prometheus.Register(alertsEmitted)
	_ = prometheus.Register(scoreObserved)
}
