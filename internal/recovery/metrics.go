package recovery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "orchon",
	Subsystem: "recovery",
	Name:      "executions_total",
	Help:      "Recovery action executions, by action type and outcome.",
}, []string{"type", "status"})

func recordExecution(actionType, status string) {
	executionsTotal.WithLabelValues(actionType, status).Inc()
}
