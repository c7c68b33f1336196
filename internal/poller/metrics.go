package poller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchon",
		Subsystem: "poller",
		Name:      "cycles_total",
		Help:      "Completed poll cycles per provider.",
	}, []string{"provider"})

	cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchon",
		Subsystem: "poller",
		Name:      "cycle_duration_seconds",
		Help:      "Poll cycle duration per provider.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider"})

	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchon",
		Subsystem: "poller",
		Name:      "checks_total",
		Help:      "Status observations recorded, by provider and status.",
	}, []string{"provider", "status"})

	noDataTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchon",
		Subsystem: "poller",
		Name:      "no_data_total",
		Help:      "Fetches that produced no data, by provider.",
	}, []string{"provider"})

	panicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchon",
		Subsystem: "poller",
		Name:      "cycle_panics_total",
		Help:      "Poll cycles that panicked, by provider.",
	}, []string{"provider"})
)

func recordCheck(provider, status string) {
	checksTotal.WithLabelValues(provider, status).Inc()
}

func recordNoData(provider string) {
	noDataTotal.WithLabelValues(provider).Inc()
}
