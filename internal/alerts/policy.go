// Package alerts decides when transitions warrant an alert and dispatches
// them to live subscribers, history and email.
package alerts

import (
	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/status"
)

// Evaluate applies the alert-worthiness policy to one observed transition.
//
// Alerts fire on entering down (reported as a deploy failure for CI
// services) and on the healthy-to-degraded edge. Repeated degraded
// observations stay silent so expected build windows do not spam, and
// recoveries are not alerted.
func Evaluate(category domain.ServiceCategory, obs status.Observation, newStatus domain.HealthStatus) (domain.AlertType, bool) {
	if !obs.Changed {
		return "", false
	}

	switch newStatus {
	case domain.StatusDown:
		if category == domain.CategoryCI {
			return domain.AlertDeployFailure, true
		}
		return domain.AlertDown, true
	case domain.StatusDegraded:
		if obs.Previous == domain.StatusHealthy {
			return domain.AlertDegraded, true
		}
	}

	return "", false
}
