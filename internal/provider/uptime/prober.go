// Package uptime probes project URLs directly over HTTP.
package uptime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jaslr/orchon/internal/domain"
	"github.com/jaslr/orchon/internal/provider"
	"github.com/jaslr/orchon/internal/registry"
	"github.com/jaslr/orchon/internal/status"
)

// Config holds uptime prober configuration.
type Config struct {
	RequestTimeout time.Duration
}

// Prober issues direct HTTP GETs against project URLs. Unlike the platform
// clients, an unreachable target here is a confirmed failure: the probed URL
// is the thing being judged.
type Prober struct {
	http *http.Client
}

// NewProber creates a new uptime prober.
func NewProber(cfg Config) *Prober {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Prober{
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Provider returns the provider identifier.
func (p *Prober) Provider() domain.Provider {
	return domain.ProviderUptime
}

// Fetch probes the target's check URL and reports both a health observation
// and an uptime sample.
func (p *Prober) Fetch(ctx context.Context, target registry.Target) (*provider.State, error) {
	checkURL := target.Service.CheckURL
	if checkURL == "" {
		checkURL = target.Project.URL
	}
	if checkURL == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "orchon-uptime/1.0")

	start := time.Now()
	resp, probeErr := p.http.Do(req)
	elapsed := time.Since(start)

	check := domain.UptimeCheck{
		ServiceID:    target.Service.ID,
		ResponseTime: elapsed,
		CheckedAt:    time.Now().UTC(),
	}

	if probeErr != nil {
		check.Error = probeErr.Error()
	} else {
		check.StatusCode = resp.StatusCode
		_ = resp.Body.Close()
	}

	healthStatus := status.NormalizeUptime(check.StatusCode, elapsed)
	check.Up = healthStatus != domain.StatusDown

	message := fmt.Sprintf("%d in %dms", check.StatusCode, elapsed.Milliseconds())
	if check.Error != "" {
		message = check.Error
	}

	return &provider.State{
		Observations: []provider.Observation{{
			Status:  healthStatus,
			Message: message,
			Meta: map[string]any{
				"url":              checkURL,
				"status_code":      check.StatusCode,
				"response_time_ms": elapsed.Milliseconds(),
			},
		}},
		Uptime: &check,
	}, nil
}
