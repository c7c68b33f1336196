// Package github polls GitHub Actions workflow runs.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/provider"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/jaslr/orchon/internal/status"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.github.com"

// How many recent runs are recorded as deployments each cycle. Deployment
// history must capture every run, not just the latest state.
const runsPerFetch = 5

// Config holds GitHub client configuration.
type Config struct {
	Token          string
	BaseURL        string
	RequestTimeout time.Duration
	RatePerSecond  float64
}

// Client polls the GitHub Actions API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new GitHub client. With no token configured every
// fetch reports no data.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 8 * time.Second
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = 2
	}

	if cfg.Token == "" {
		slog.Warn("github token not configured, ci polling disabled")
	}

	return &Client{
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
	}
}

// Provider returns the provider identifier.
func (c *Client) Provider() domain.Provider {
	return domain.ProviderGitHub
}

type workflowRun struct {
	ID           int64      `json:"id"`
	Status       string     `json:"status"`
	Conclusion   string     `json:"conclusion"`
	HeadBranch   string     `json:"head_branch"`
	HeadSHA      string     `json:"head_sha"`
	HTMLURL      string     `json:"html_url"`
	CreatedAt    *time.Time `json:"created_at"`
	RunStartedAt *time.Time `json:"run_started_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

type workflowRunsResponse struct {
	WorkflowRuns []workflowRun `json:"workflow_runs"`
}

// Fetch returns the latest workflow state and recent runs for the target's
// repository.
func (c *Client) Fetch(ctx context.Context, target registry.Target) (*provider.State, error) {
	gh := target.Service.Config.GitHub
	if c.token == "" || gh == nil {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/repos/%s/actions/runs", c.baseURL, gh.Repo)
	query := url.Values{"per_page": {fmt.Sprint(runsPerFetch)}}
	if gh.Branch != "" {
		query.Set("branch", gh.Branch)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("github request failed", "repo", gh.Repo, "error", err)
		return nil, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("github returned non-ok", "repo", gh.Repo, "status", resp.StatusCode)
		return nil, nil
	}

	var payload workflowRunsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		slog.Debug("github response decode failed", "repo", gh.Repo, "error", err)
		return nil, nil
	}

	if len(payload.WorkflowRuns) == 0 {
		return nil, nil
	}

	latest := payload.WorkflowRuns[0]

	var elapsed time.Duration
	if latest.RunStartedAt != nil {
		elapsed = time.Since(*latest.RunStartedAt)
	}

	state := &provider.State{
		Observations: []provider.Observation{{
			Status:  status.NormalizeWorkflowRun(latest.Status, latest.Conclusion, elapsed),
			Message: fmt.Sprintf("run %d on %s: %s", latest.ID, latest.HeadBranch, runOutcome(latest)),
			Meta: map[string]any{
				"run_id":  latest.ID,
				"branch":  latest.HeadBranch,
				"run_url": latest.HTMLURL,
				"commit":  latest.HeadSHA,
			},
		}},
	}

	for _, run := range payload.WorkflowRuns {
		state.Deployments = append(state.Deployments, toDeployment(target.Service.ID, run))
	}

	return state, nil
}

func runOutcome(run workflowRun) string {
	if run.Conclusion != "" {
		return run.Conclusion
	}
	return run.Status
}

func toDeployment(serviceID string, run workflowRun) domain.Deployment {
	d := domain.Deployment{
		ID:          fmt.Sprintf("gh-%d", run.ID),
		ServiceID:   serviceID,
		Provider:    domain.ProviderGitHub,
		Status:      status.DeploymentStatusFromRun(run.Status, run.Conclusion),
		CommitSHA:   run.HeadSHA,
		Branch:      run.HeadBranch,
		RunURL:      run.HTMLURL,
		PushedAt:    run.CreatedAt,
		CIStartedAt: run.RunStartedAt,
	}
	if d.Status.IsTerminal() {
		d.CICompletedAt = run.UpdatedAt
	}
	return d
}
