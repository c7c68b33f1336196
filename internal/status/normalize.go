// Package status normalizes provider-native states into the shared health
// vocabulary and tracks transitions between observations.
package status

import (
	"strings"
	"time"

	"github.com/jaslr/orchon/internal/domain"
)

// Budgets for non-terminal states. A build or probe still inside its budget
// is reported healthy; past it the service counts as degraded. Callers pass
// elapsed time in, so the mappings stay deterministic.
const (
	// BuildBudget is how long a CI run or deploy may stay in a
	// non-terminal state before it is reported as degraded.
	BuildBudget = 10 * time.Minute

	// ResponseBudget is the slowest acceptable uptime-probe response.
	ResponseBudget = 2 * time.Second
)

// NormalizeWorkflowRun maps a GitHub Actions run to a health status.
// Elapsed is the time since the run started; it decides whether a
// still-running workflow has exceeded its build budget.
func NormalizeWorkflowRun(runStatus, conclusion string, elapsed time.Duration) domain.HealthStatus {
	switch strings.ToLower(runStatus) {
	case "completed":
		switch strings.ToLower(conclusion) {
		case "success", "neutral", "skipped":
			return domain.StatusHealthy
		case "failure", "cancelled", "timed_out", "action_required", "startup_failure", "stale":
			return domain.StatusDown
		default:
			return domain.StatusUnknown
		}
	case "queued", "in_progress", "waiting", "requested", "pending":
		if elapsed > BuildBudget {
			return domain.StatusDegraded
		}
		return domain.StatusHealthy
	default:
		return domain.StatusUnknown
	}
}

// DeploymentStatusFromRun maps a GitHub Actions run to a deployment status.
func DeploymentStatusFromRun(runStatus, conclusion string) domain.DeploymentStatus {
	switch strings.ToLower(runStatus) {
	case "completed":
		if strings.EqualFold(conclusion, "success") {
			return domain.DeploySuccess
		}
		return domain.DeployFailure
	case "queued", "waiting", "requested", "pending":
		return domain.DeployQueued
	default:
		return domain.DeployInProgress
	}
}

// NormalizeFlyMachines maps Fly.io machine counts to a health status.
// With no machines there is nothing to judge, so the result is unknown
// rather than down: scale-to-zero apps are not failures.
func NormalizeFlyMachines(total, started int) domain.HealthStatus {
	switch {
	case total <= 0:
		return domain.StatusUnknown
	case started == total:
		return domain.StatusHealthy
	case started == 0:
		return domain.StatusDown
	default:
		return domain.StatusDegraded
	}
}

// NormalizeNetlifyDeploy maps a Netlify deploy state to a health status.
func NormalizeNetlifyDeploy(state string, elapsed time.Duration) domain.HealthStatus {
	switch strings.ToLower(state) {
	case "ready", "current":
		return domain.StatusHealthy
	case "error", "failed", "deleted":
		return domain.StatusDown
	case "new", "enqueued", "building", "uploading", "uploaded", "processing", "preparing":
		if elapsed > BuildBudget {
			return domain.StatusDegraded
		}
		return domain.StatusHealthy
	default:
		return domain.StatusUnknown
	}
}

// NormalizeSupabaseHealth maps a Supabase service health state to a health
// status. Paused projects are degraded, not down: the platform put the
// database to sleep on purpose and it wakes on the next connection.
func NormalizeSupabaseHealth(state string) domain.HealthStatus {
	switch strings.ToUpper(state) {
	case "ACTIVE_HEALTHY":
		return domain.StatusHealthy
	case "COMING_UP", "RESTARTING", "UPGRADING", "PAUSING", "RESUMING":
		return domain.StatusDegraded
	case "INACTIVE", "PAUSED":
		return domain.StatusDegraded
	case "ACTIVE_UNHEALTHY", "UNHEALTHY", "GOING_DOWN", "REMOVED":
		return domain.StatusDown
	default:
		return domain.StatusUnknown
	}
}

// NormalizeSSHCheck maps a remote check command's exit code to a health
// status, following the Nagios plugin convention.
func NormalizeSSHCheck(exitCode int) domain.HealthStatus {
	switch {
	case exitCode == 0:
		return domain.StatusHealthy
	case exitCode == 1:
		return domain.StatusDegraded
	case exitCode >= 2:
		return domain.StatusDown
	default:
		return domain.StatusUnknown
	}
}

// NormalizeUptime maps an HTTP probe result to a health status. A probe that
// got no response at all (statusCode 0) is down: unlike provider APIs, the
// probe target is the thing being judged, so unreachability is the failure.
func NormalizeUptime(statusCode int, responseTime time.Duration) domain.HealthStatus {
	switch {
	case statusCode >= 200 && statusCode < 400:
		if responseTime > ResponseBudget {
			return domain.StatusDegraded
		}
		return domain.StatusHealthy
	case statusCode > 0:
		return domain.StatusDown
	default:
		return domain.StatusDown
	}
}
