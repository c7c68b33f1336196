package domain

import "time"

// AlertType classifies what triggered an alert.
type AlertType string

// Alert types.
const (
	AlertDeployFailure AlertType = "deploy_failure"
	AlertDown          AlertType = "down"
	AlertDegraded      AlertType = "degraded"
)

// IsValid checks if the alert type is valid.
func (t AlertType) IsValid() bool {
	return t == AlertDeployFailure || t == AlertDown || t == AlertDegraded
}

// AlertChannel is the delivery channel of a dispatched alert.
type AlertChannel string

// Alert channels.
const (
	ChannelUI    AlertChannel = "ui"
	ChannelEmail AlertChannel = "email"
)

// Alert is an immutable record of a dispatched notification.
type Alert struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	ServiceID string       `json:"service_id,omitempty"`
	Type      AlertType    `json:"type"`
	Message   string       `json:"message"`
	Channel   AlertChannel `json:"channel"`
	CreatedAt time.Time    `json:"created_at"`
}

// CostEntry is an aggregate cost sample for a project, pushed by an external
// billing exporter.
type CostEntry struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Provider  Provider  `json:"provider"`
	AmountUSD float64   `json:"amount_usd"`
	Period    string    `json:"period"`
	CreatedAt time.Time `json:"created_at"`
}
