package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries all service configuration, populated from UNILINK_* env vars.
type Config struct {
	ListenAddr      string        `envconfig:"LISTEN_ADDR" default:":8080"`
	PostgresDSN     string        `envconfig:"PG_DSN"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Chat platform REST API
	PlatformBaseURL string `envconfig:"PLATFORM_BASE_URL"`
	PlatformToken   string `envconfig:"PLATFORM_TOKEN"`
	GuildID         string `envconfig:"GUILD_ID"`

	// University directory services
	RegistryBaseURL  string `envconfig:"REGISTRY_BASE_URL"`
	RegistryToken    string `envconfig:"REGISTRY_TOKEN"`
	DirectoryBaseURL string `envconfig:"DIRECTORY_BASE_URL"`
	DirectoryToken   string `envconfig:"DIRECTORY_TOKEN"`
	SSOBaseURL       string `envconfig:"SSO_BASE_URL"`

	// Channel used for operator-facing warnings (duplicate accounts etc.)
	WarningChannelID string `envconfig:"WARNING_CHANNEL_ID"`

	// Lifetime of issued session tokens
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"1h"`

	// HTTP rate limiting (token bucket per client IP)
	RateLimitPerSecond int `envconfig:"RATE_LIMIT_PER_SECOND" default:"10"`
	RateLimitBurst     int `envconfig:"RATE_LIMIT_BURST" default:"20"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("unilink", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// Validate reports missing required settings for the serve mode.
func (c *Config) Validate() error {
	var missing []string
	if c.PostgresDSN == "" {
		missing = append(missing, "UNILINK_PG_DSN")
	}
	if c.PlatformBaseURL == "" {
		missing = append(missing, "UNILINK_PLATFORM_BASE_URL")
	}
	if c.GuildID == "" {
		missing = append(missing, "UNILINK_GUILD_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}
