package domain

import "time"

// DeploymentStatus represents the state of a CI/CD run or deploy.
type DeploymentStatus string

// Deployment statuses.
const (
	DeployQueued     DeploymentStatus = "queued"
	DeployInProgress DeploymentStatus = "in_progress"
	DeploySuccess    DeploymentStatus = "success"
	DeployFailure    DeploymentStatus = "failure"
)

// IsValid checks if the deployment status is valid.
func (s DeploymentStatus) IsValid() bool {
	switch s {
	case DeployQueued, DeployInProgress, DeploySuccess, DeployFailure:
		return true
	}
	return false
}

// IsTerminal reports whether the deployment reached a final state.
func (s DeploymentStatus) IsTerminal() bool {
	return s == DeploySuccess || s == DeployFailure
}

// Deployment is a CI/CD run or deploy record. The ID is namespaced by
// provider (e.g. "gh-123456") and deployments are upserted by it: a later
// observation of the same run updates status and timestamps instead of
// inserting a duplicate.
type Deployment struct {
	ID        string           `json:"id"`
	ServiceID string           `json:"service_id"`
	Provider  Provider         `json:"provider"`
	Status    DeploymentStatus `json:"status"`
	CommitSHA string           `json:"commit_sha,omitempty"`
	Branch    string           `json:"branch,omitempty"`
	RunURL    string           `json:"run_url,omitempty"`

	// Phase timestamps for pipeline-duration analytics. Any of them may be
	// missing depending on what the provider exposes.
	PushedAt        *time.Time `json:"pushed_at,omitempty"`
	CIStartedAt     *time.Time `json:"ci_started_at,omitempty"`
	CICompletedAt   *time.Time `json:"ci_completed_at,omitempty"`
	DeployStartedAt *time.Time `json:"deploy_started_at,omitempty"`
	DeployedAt      *time.Time `json:"deployed_at,omitempty"`
}
