// Package domain contains the shared types of the monitoring core.
package domain

// AlertTier controls how alerts for a project are delivered.
type AlertTier string

// Alert tiers.
const (
	TierHobby    AlertTier = "hobby"
	TierBusiness AlertTier = "business"
)

// IsValid checks if the alert tier is valid.
func (t AlertTier) IsValid() bool {
	return t == TierHobby || t == TierBusiness
}

// ServiceCategory classifies what capability of a project a service monitors.
type ServiceCategory string

// Service categories.
const (
	CategoryHosting    ServiceCategory = "hosting"
	CategoryDatabase   ServiceCategory = "database"
	CategoryAuth       ServiceCategory = "auth"
	CategoryCI         ServiceCategory = "ci"
	CategoryMonitoring ServiceCategory = "monitoring"
	CategoryStorage    ServiceCategory = "storage"
	CategoryDNS        ServiceCategory = "dns"
)

// Provider identifies the external platform behind a service.
type Provider string

// Providers.
const (
	ProviderGitHub   Provider = "github"
	ProviderFly      Provider = "fly"
	ProviderNetlify  Provider = "netlify"
	ProviderSupabase Provider = "supabase"
	ProviderSSH      Provider = "ssh"
	ProviderUptime   Provider = "uptime"
)

// Project is a monitored unit of ownership. Projects come from static
// configuration and are immutable once the registry is built.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Owner      string    `json:"owner"`
	Tier       AlertTier `json:"tier"`
	AlertEmail string    `json:"alert_email,omitempty"`
	URL        string    `json:"url,omitempty"`
	Services   []Service `json:"services"`
}

// Service is one monitored capability of a project.
type Service struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	Category  ServiceCategory `json:"category"`
	Provider  Provider        `json:"provider"`
	Label     string          `json:"label"`
	CheckURL  string          `json:"check_url,omitempty"`
	Config    ServiceConfig   `json:"config"`
}

// StatusKeys returns the keys this service's observations are tracked and
// persisted under. Most providers report a single aspect keyed by the
// service id; Supabase reports database and auth health separately.
func (s Service) StatusKeys() []string {
	if s.Provider == ProviderSupabase {
		return []string{s.ID + "-db", s.ID + "-auth"}
	}
	return []string{s.ID}
}

// ServiceConfig carries the provider-specific fields of a service. Exactly
// one member is set, matching Service.Provider.
type ServiceConfig struct {
	GitHub   *GitHubConfig   `json:"github,omitempty"`
	Fly      *FlyConfig      `json:"fly,omitempty"`
	Netlify  *NetlifyConfig  `json:"netlify,omitempty"`
	Supabase *SupabaseConfig `json:"supabase,omitempty"`
	SSH      *SSHConfig      `json:"ssh,omitempty"`
}

// GitHubConfig identifies a repository whose workflow runs are polled.
type GitHubConfig struct {
	Repo     string `json:"repo" koanf:"repo" validate:"required"`
	Workflow string `json:"workflow,omitempty" koanf:"workflow"`
	Branch   string `json:"branch,omitempty" koanf:"branch"`
}

// FlyConfig identifies a Fly.io application.
type FlyConfig struct {
	App string `json:"app" koanf:"app" validate:"required"`
}

// NetlifyConfig identifies a Netlify site.
type NetlifyConfig struct {
	SiteID string `json:"site_id" koanf:"site_id" validate:"required"`
}

// SupabaseConfig identifies a Supabase project reference.
type SupabaseConfig struct {
	ProjectRef string `json:"project_ref" koanf:"project_ref" validate:"required"`
}

// SSHConfig identifies a host reachable over SSH and the command used to
// probe it.
type SSHConfig struct {
	Host         string `json:"host" koanf:"host" validate:"required"`
	Port         int    `json:"port,omitempty" koanf:"port"`
	User         string `json:"user" koanf:"user" validate:"required"`
	KeyPath      string `json:"key_path" koanf:"key_path" validate:"required"`
	CheckCommand string `json:"check_command,omitempty" koanf:"check_command"`
}
