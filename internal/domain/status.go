package domain

import "time"

// HealthStatus is the normalized cross-provider health vocabulary.
type HealthStatus string

// Health statuses.
const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusDown     HealthStatus = "down"
	StatusUnknown  HealthStatus = "unknown"
)

// IsValid checks if the health status is valid.
func (s HealthStatus) IsValid() bool {
	switch s {
	case StatusHealthy, StatusDegraded, StatusDown, StatusUnknown:
		return true
	}
	return false
}

// StatusCheck is an immutable observation of a service's health. The current
// status of a service is its most recent StatusCheck by timestamp.
type StatusCheck struct {
	ServiceID string       `json:"service_id"`
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	CheckedAt time.Time    `json:"checked_at"`
}

// UptimeCheck is an immutable observation of a direct HTTP probe against a
// project's public URL.
type UptimeCheck struct {
	ServiceID    string        `json:"service_id"`
	ResponseTime time.Duration `json:"response_time_ms"`
	StatusCode   int           `json:"status_code"`
	Up           bool          `json:"up"`
	Error        string        `json:"error,omitempty"`
	CheckedAt    time.Time     `json:"checked_at"`
}

// StatusSummary aggregates current statuses across all projects.
type StatusSummary struct {
	Healthy  int `json:"healthy"`
	Degraded int `json:"degraded"`
	Down     int `json:"down"`
	Unknown  int `json:"unknown"`
}
