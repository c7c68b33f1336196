package alerts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orchon"

var (
	alertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "dispatched_total",
			Help:      "Total alerts dispatched by type and channel",
		},
		[]string{"type", "channel"},
	)

	emailFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "email_failures_total",
			Help:      "Total alert emails that failed to send",
		},
	)
)

func recordAlertDispatched(alertType, channel string) {
	alertsDispatched.WithLabelValues(alertType, channel).Inc()
}

func recordEmailFailure() {
	emailFailures.Inc()
}
