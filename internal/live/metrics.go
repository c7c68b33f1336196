package live

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orchon"

var (
	subscribersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "subscribers",
			Help:      "Number of connected live-update subscribers",
		},
	)

	eventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "events_delivered_total",
			Help:      "Total events delivered to subscribers",
		},
		[]string{"type"},
	)

	subscribersPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "subscribers_pruned_total",
			Help:      "Total subscribers removed after a failed delivery",
		},
	)
)

func recordEventDelivered(eventType string) {
	eventsDelivered.WithLabelValues(eventType).Inc()
}

func recordSubscriberPruned() {
	subscribersPruned.Inc()
}
