package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/recargaplus/storefront/internal/roles"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"24h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	BackendBaseURL string        `envconfig:"BACKEND_BASE_URL"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`

	// DashboardRoles lists who may enter /dashboard at all. Empty means
	// every canonical role.
	DashboardRoles []string `envconfig:"DASHBOARD_ROLES"`
	LoginRateLimit int      `envconfig:"LOGIN_RATE_LIMIT" default:"10"`

	dashboardRoles []roles.Role
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.SessionSecret == "" {
		return errors.New("session secret must be provided")
	}
	if c.CSRFSecret == "" {
		return errors.New("csrf secret must be provided")
	}
	if c.BackendTimeout <= 0 {
		return errors.New("backend timeout must be positive")
	}
	list, err := ParseRoleList(c.DashboardRoles)
	if err != nil {
		return fmt.Errorf("DASHBOARD_ROLES: %w", err)
	}
	c.dashboardRoles = list
	return nil
}

// DashboardRoleList returns the parsed DASHBOARD_ROLES.
func (c *Config) DashboardRoleList() []roles.Role {
	if c == nil || len(c.dashboardRoles) == 0 {
		return roles.All()
	}
	out := make([]roles.Role, len(c.dashboardRoles))
	copy(out, c.dashboardRoles)
	return out
}

// ParseRoleList resolves operator-supplied role names. Unknown names are an
// error rather than a silent CLIENT. SUPERUSER is always present so the
// dashboard can never lock out every account.
func ParseRoleList(raw []string) ([]roles.Role, error) {
	seen := make(map[roles.Role]bool)
	var unknown []string
	for _, entry := range raw {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		r, ok := roles.Parse(entry)
		if !ok {
			unknown = append(unknown, strings.TrimSpace(entry))
			continue
		}
		seen[r] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown roles %s", strings.Join(unknown, ", "))
	}
	if len(seen) == 0 {
		return roles.All(), nil
	}
	seen[roles.Superuser] = true
	out := make([]roles.Role, 0, len(seen))
	for _, r := range roles.All() {
		if seen[r] {
			out = append(out, r)
		}
	}
	return out, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
