// Package config provides application configuration loading and validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jaslr/orchon/internal/domain"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Log       LogConfig       `koanf:"log"`
	CORS      CORSConfig      `koanf:"cors"`
	Auth      AuthConfig      `koanf:"auth"`
	Pollers   PollersConfig   `koanf:"pollers"`
	Providers ProvidersConfig `koanf:"providers"`
	Alerts    AlertsConfig    `koanf:"alerts"`
	Projects  []ProjectConfig `koanf:"projects" validate:"required,min=1,dive"`
	Actions   []ActionConfig  `koanf:"actions" validate:"dive"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=text json"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// AuthConfig contains the bearer token guarding the write surface.
type AuthConfig struct {
	Token string `koanf:"token"`
}

// PollersConfig contains scheduling settings shared by all pollers.
type PollersConfig struct {
	StartupDelay   time.Duration `koanf:"startup_delay"`
	CheckInterval  time.Duration `koanf:"check_interval"`
	UptimeInterval time.Duration `koanf:"uptime_interval"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	Concurrency    int           `koanf:"concurrency" validate:"omitempty,min=1"`
}

// ProvidersConfig contains credentials for the polled platforms. A missing
// credential disables the matching poller's requests (no-data), it is not an
// error.
type ProvidersConfig struct {
	GitHubToken   string  `koanf:"github_token"`
	FlyToken      string  `koanf:"fly_token"`
	NetlifyToken  string  `koanf:"netlify_token"`
	SupabaseKey   string  `koanf:"supabase_key"`
	RatePerSecond float64 `koanf:"rate_per_second"`
}

// AlertsConfig contains email alert delivery settings.
type AlertsConfig struct {
	Email EmailConfig `koanf:"email"`
}

// EmailConfig contains SMTP settings for outbound alert mail.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// ProjectConfig declares one monitored project and its services.
type ProjectConfig struct {
	ID         string           `koanf:"id" validate:"required"`
	Name       string           `koanf:"name" validate:"required"`
	Owner      string           `koanf:"owner"`
	Tier       domain.AlertTier `koanf:"tier" validate:"omitempty,oneof=hobby business"`
	AlertEmail string           `koanf:"alert_email" validate:"omitempty,email"`
	URL        string           `koanf:"url" validate:"omitempty,url"`
	Services   []ServiceConfig  `koanf:"services" validate:"required,min=1,dive"`
}

// ServiceConfig declares one monitored service of a project.
type ServiceConfig struct {
	ID       string                 `koanf:"id" validate:"required"`
	Category domain.ServiceCategory `koanf:"category" validate:"required,oneof=hosting database auth ci monitoring storage dns"`
	Provider domain.Provider        `koanf:"provider" validate:"required,oneof=github fly netlify supabase ssh uptime"`
	Label    string                 `koanf:"label"`
	CheckURL string                 `koanf:"check_url" validate:"omitempty,url"`

	GitHub   *domain.GitHubConfig   `koanf:"github"`
	Fly      *domain.FlyConfig      `koanf:"fly"`
	Netlify  *domain.NetlifyConfig  `koanf:"netlify"`
	Supabase *domain.SupabaseConfig `koanf:"supabase"`
	SSH      *domain.SSHConfig      `koanf:"ssh"`
}

// ActionConfig declares one recovery action.
type ActionConfig struct {
	ID        string            `koanf:"id" validate:"required"`
	ProjectID string            `koanf:"project_id" validate:"required"`
	Label     string            `koanf:"label"`
	Type      domain.ActionType `koanf:"type" validate:"required,oneof=ssh_command fly_restart workflow_dispatch"`

	SSH      *domain.SSHActionConfig      `koanf:"ssh"`
	Fly      *domain.FlyActionConfig      `koanf:"fly"`
	Workflow *domain.WorkflowActionConfig `koanf:"workflow"`
}

// Default returns the configuration defaults applied before file and
// environment loading.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      0, // live streams must not be cut off by the server
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Pollers: PollersConfig{
			StartupDelay:   10 * time.Second,
			CheckInterval:  60 * time.Second,
			UptimeInterval: 300 * time.Second,
			RequestTimeout: 8 * time.Second,
			Concurrency:    4,
		},
		Providers: ProvidersConfig{
			RatePerSecond: 2,
		},
		Alerts: AlertsConfig{
			Email: EmailConfig{
				SMTPPort: 587,
			},
		},
	}
}

// Load reads configuration from the given YAML file (optional) and the
// ORCHON_ environment, layered over defaults, and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// ORCHON_DATABASE_URL -> database.url. The first underscore separates
	// section from key so key names keep their own underscores.
	// alerts.email is the one nested section and gets its own rule, so
	// ORCHON_ALERTS_EMAIL_SMTP_HOST reaches alerts.email.smtp_host.
	if err := k.Load(env.ProviderWithValue("ORCHON_", ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, "ORCHON_"))
		if rest, ok := strings.CutPrefix(key, "alerts_email_"); ok {
			return "alerts.email." + rest, value
		}
		return strings.Replace(key, "_", ".", 1), value
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks structural constraints and cross-field consistency.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	for _, p := range c.Projects {
		for _, s := range p.Services {
			if err := validateServiceConfig(s); err != nil {
				return fmt.Errorf("project %s: %w", p.ID, err)
			}
		}
	}

	for _, a := range c.Actions {
		if err := validateActionConfig(a); err != nil {
			return err
		}
	}

	if c.Alerts.Email.Enabled {
		if c.Alerts.Email.SMTPHost == "" || c.Alerts.Email.FromAddress == "" {
			return fmt.Errorf("alerts.email: smtp_host and from_address are required when enabled")
		}
	}

	return nil
}

func validateServiceConfig(s ServiceConfig) error {
	switch s.Provider {
	case domain.ProviderGitHub:
		if s.GitHub == nil {
			return fmt.Errorf("service %s: github config is required", s.ID)
		}
	case domain.ProviderFly:
		if s.Fly == nil {
			return fmt.Errorf("service %s: fly config is required", s.ID)
		}
	case domain.ProviderNetlify:
		if s.Netlify == nil {
			return fmt.Errorf("service %s: netlify config is required", s.ID)
		}
	case domain.ProviderSupabase:
		if s.Supabase == nil {
			return fmt.Errorf("service %s: supabase config is required", s.ID)
		}
	case domain.ProviderSSH:
		if s.SSH == nil {
			return fmt.Errorf("service %s: ssh config is required", s.ID)
		}
	case domain.ProviderUptime:
		if s.CheckURL == "" {
			return fmt.Errorf("service %s: check_url is required for uptime services", s.ID)
		}
	}
	return nil
}

func validateActionConfig(a ActionConfig) error {
	switch a.Type {
	case domain.ActionSSHCommand:
		if a.SSH == nil {
			return fmt.Errorf("action %s: ssh config is required", a.ID)
		}
	case domain.ActionFlyRestart:
		if a.Fly == nil {
			return fmt.Errorf("action %s: fly config is required", a.ID)
		}
	case domain.ActionWorkflowDispatch:
		if a.Workflow == nil {
			return fmt.Errorf("action %s: workflow config is required", a.ID)
		}
	}
	return nil
}
