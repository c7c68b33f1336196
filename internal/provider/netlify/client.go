// Package netlify polls Netlify site deploys.
package netlify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/provider"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/jaslr/orchon/internal/status"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.netlify.com/api/v1"

const deploysPerFetch = 5

// Config holds Netlify client configuration.
type Config struct {
	Token          string
	BaseURL        string
	RequestTimeout time.Duration
	RatePerSecond  float64
}

// Client polls the Netlify API.
type Client struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Netlify client. With no token configured every
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
		slog.Warn("netlify token not configured, netlify polling disabled")
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
	return domain.ProviderNetlify
}

type deploy struct {
	ID          string     `json:"id"`
	State       string     `json:"state"`
	Branch      string     `json:"branch"`
	CommitRef   string     `json:"commit_ref"`
	DeployURL   string     `json:"deploy_url"`
	CreatedAt   *time.Time `json:"created_at"`
	PublishedAt *time.Time `json:"published_at"`
}

// Fetch returns the latest deploy state and recent deploys for the target's
// Netlify site.
func (c *Client) Fetch(ctx context.Context, target registry.Target) (*provider.State, error) {
	site := target.Service.Config.Netlify
	if c.token == "" || site == nil {
		return nil, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/sites/%s/deploys?per_page=%d", c.baseURL, site.SiteID, deploysPerFetch)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("netlify request failed", "site", site.SiteID, "error", err)
		return nil, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("netlify returned non-ok", "site", site.SiteID, "status", resp.StatusCode)
		return nil, nil
	}

	var deploys []deploy
	if err := json.NewDecoder(resp.Body).Decode(&deploys); err != nil {
		slog.Debug("netlify response decode failed", "site", site.SiteID, "error", err)
		return nil, nil
	}

	if len(deploys) == 0 {
		return nil, nil
	}

	latest := deploys[0]

	var elapsed time.Duration
	if latest.CreatedAt != nil {
		elapsed = time.Since(*latest.CreatedAt)
	}

	state := &provider.State{
		Observations: []provider.Observation{{
			Status:  status.NormalizeNetlifyDeploy(latest.State, elapsed),
			Message: fmt.Sprintf("deploy %s: %s", latest.ID, latest.State),
			Meta: map[string]any{
				"deploy_id":  latest.ID,
				"branch":     latest.Branch,
				"deploy_url": latest.DeployURL,
			},
		}},
	}

	for _, d := range deploys {
		state.Deployments = append(state.Deployments, toDeployment(target.Service.ID, d))
	}

	return state, nil
}

func toDeployment(serviceID string, d deploy) domain.Deployment {
	return domain.Deployment{
		ID:              "nl-" + d.ID,
		ServiceID:       serviceID,
		Provider:        domain.ProviderNetlify,
		Status:          deployStatus(d.State),
		CommitSHA:       d.CommitRef,
		Branch:          d.Branch,
		RunURL:          d.DeployURL,
		DeployStartedAt: d.CreatedAt,
		DeployedAt:      d.PublishedAt,
	}
}

func deployStatus(state string) domain.DeploymentStatus {
	switch state {
	case "ready", "current":
		return domain.DeploySuccess
	case "error", "failed":
		return domain.DeployFailure
	case "new", "enqueued":
		return domain.DeployQueued
	default:
		return domain.DeployInProgress
	}
}
