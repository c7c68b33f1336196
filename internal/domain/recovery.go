package domain

import "time"

// ActionType identifies the back-end used to run a recovery action.
type ActionType string

// Action types.
const (
	ActionSSHCommand       ActionType = "ssh_command"
	ActionFlyRestart       ActionType = "fly_restart"
	ActionWorkflowDispatch ActionType = "workflow_dispatch"
)

// IsValid checks if the action type is valid.
func (t ActionType) IsValid() bool {
	return t == ActionSSHCommand || t == ActionFlyRestart || t == ActionWorkflowDispatch
}

// RecoveryAction is a stored remediation definition, declared in static
// configuration alongside the project it belongs to.
type RecoveryAction struct {
	ID        string               `json:"id"`
	ProjectID string               `json:"project_id"`
	Label     string               `json:"label"`
	Type      ActionType           `json:"type"`
	Config    RecoveryActionConfig `json:"config"`
}

// RecoveryActionConfig carries the back-end-specific fields of an action.
// Exactly one member is set, matching RecoveryAction.Type.
type RecoveryActionConfig struct {
	SSH      *SSHActionConfig      `json:"ssh,omitempty"`
	Fly      *FlyActionConfig      `json:"fly,omitempty"`
	Workflow *WorkflowActionConfig `json:"workflow,omitempty"`
}

// SSHActionConfig runs a command on a host over SSH.
type SSHActionConfig struct {
	Host    string `json:"host" koanf:"host" validate:"required"`
	Port    int    `json:"port,omitempty" koanf:"port"`
	User    string `json:"user" koanf:"user" validate:"required"`
	KeyPath string `json:"key_path" koanf:"key_path" validate:"required"`
	Command string `json:"command" koanf:"command" validate:"required"`
}

// FlyActionConfig restarts a Fly.io machine.
type FlyActionConfig struct {
	App       string `json:"app" koanf:"app" validate:"required"`
	MachineID string `json:"machine_id" koanf:"machine_id" validate:"required"`
}

// WorkflowActionConfig triggers a GitHub Actions workflow.
type WorkflowActionConfig struct {
	Repo     string `json:"repo" koanf:"repo" validate:"required"`
	Workflow string `json:"workflow" koanf:"workflow" validate:"required"`
	Ref      string `json:"ref,omitempty" koanf:"ref"`
}

// ExecutionStatus represents the state of one action execution.
type ExecutionStatus string

// Execution statuses.
const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionFailure ExecutionStatus = "failure"
)

// ActionExecution records one run of a recovery action.
type ActionExecution struct {
	ID         string          `json:"id"`
	ActionID   string          `json:"action_id"`
	Status     ExecutionStatus `json:"status"`
	Output     string          `json:"output,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
