// Package config manages environment variables.
//
// It reads variables from the process environment (and a `.env` file when
// present), loads them into structured Go types and validates that required
// values are present so they can be reused across the application runtime.
//
// Responsibilities:
//   - Load environment variables (optionally from a `.env` file).
//   - Map env vars into a structured Go config (structs).
//   - Validate required values so the app fails fast on bad/missing config.
//   - Provide sane defaults for optional config blocks (observability, rate limits).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	// Side-effect import: if a `.env` file exists it is loaded into the
	// process env before anything below reads it.
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

/*
	Env vars are read with the TRACKR_ prefix, lowercased, and nested with ".":

	  TRACKR_SERVER.PORT          -> server.port     -> Config.Server.Port
	  TRACKR_INTEGRATION.GITHUB_TOKEN -> integration.github_token
*/

// EnvPrefix is the prefix every configuration variable carries.
const EnvPrefix = "TRACKR_"

const minSigningSecret = 32

// Config is the root configuration object for the application.
//
// Observability and RateLimit are pointers because they are optional. If
// not provided, defaults are injected at load time.
type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Redis         RedisConfig          `koanf:"redis" validate:"required"`
	Auth          AuthConfig           `koanf:"auth" validate:"required"`
	Integration   IntegrationConfig    `koanf:"integration"`
	RateLimit     *RateLimitConfig     `koanf:"rate_limit"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

// Primary holds top-level information about the runtime environment.
type Primary struct {
	Env string `koanf:"env" validate:"required"`

	// SiloMode selects which half of the API this process serves:
	// "monolith" (everything), "control" or "region".
	SiloMode string `koanf:"silo_mode" validate:"omitempty,oneof=monolith control region"`
}

// ServerConfig groups settings for the HTTP server runtime.
// Timeouts are expressed in seconds.
type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`

	// PublicURL is the externally reachable base URL, used to build links in
	// redirects, notifications and MS Teams cards.
	PublicURL string `koanf:"public_url" validate:"required,url"`

	// TrustedProxies are the CIDRs of load balancers allowed to set
	// X-Forwarded-For. Empty means the client IP is the TCP peer.
	TrustedProxies []string `koanf:"trusted_proxies" validate:"omitempty,dive,cidr"`
}

// DatabaseConfig contains PostgreSQL connection parameters and pool tuning.
type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password" validate:"required"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int    `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time" validate:"required"`
}

// RedisConfig contains Redis connection details. Address is "host:port".
type RedisConfig struct {
	Address string `koanf:"address" validate:"required"`
}

// AuthConfig stores authentication-related secrets.
type AuthConfig struct {
	SecretKey string `koanf:"secret_key" validate:"required"`
}

// IntegrationConfig holds credentials and knobs for third-party services.
// Every block is optional: an empty value disables the matching feature.
type IntegrationConfig struct {
	ResendAPIKey string `koanf:"resend_api_key"`
	EmailFrom    string `koanf:"email_from"`

	GitHubToken         string `koanf:"github_token"`
	GitHubWebhookSecret string `koanf:"github_webhook_secret"`
	GitHubAPIURL        string `koanf:"github_api_url"`

	BitbucketAPIURL string `koanf:"bitbucket_api_url"`
	// BitbucketIPRanges are CIDRs Bitbucket Cloud sends webhooks from.
	BitbucketIPRanges []string `koanf:"bitbucket_ip_ranges"`
	BitbucketUsername string   `koanf:"bitbucket_username"`
	BitbucketPassword string   `koanf:"bitbucket_app_password"`

	VSTSAccessToken string `koanf:"vsts_access_token"`

	// The MS Teams bot is mounted only when MSTeamsAppID is set, and then
	// the password and signing secret are required.
	MSTeamsAppID       string `koanf:"msteams_app_id"`
	MSTeamsAppPassword string `koanf:"msteams_app_password"`
	MSTeamsTokenURL    string `koanf:"msteams_token_url"`
	// MSTeamsSigningSecret signs identity-link URLs.
	MSTeamsSigningSecret string `koanf:"msteams_signing_secret"`
	// MSTeamsOpenIDURL is where Bot Framework publishes its token keys.
	MSTeamsOpenIDURL string `koanf:"msteams_openid_url"`
	// MSTeamsServiceHosts limits where replies are posted.
	MSTeamsServiceHosts []string `koanf:"msteams_service_hosts"`

	OpsgenieAPIURL string `koanf:"opsgenie_api_url"`
}

// RateLimitConfig sets the global defaults applied to every rate-limited
// route that does not override them.
type RateLimitConfig struct {
	Enabled  bool `koanf:"enabled"`
	FailOpen bool `koanf:"fail_open"`

	DefaultLimit      int           `koanf:"default_limit" validate:"min=0"`
	DefaultWindow     time.Duration `koanf:"default_window"`
	ConcurrentLimit   int           `koanf:"concurrent_limit" validate:"min=0"`
	ConcurrentTimeout time.Duration `koanf:"concurrent_timeout"`
}

// DefaultRateLimitConfig mirrors the limits every endpoint gets unless a
// route declares its own.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled:           true,
		FailOpen:          true,
		DefaultLimit:      40,
		DefaultWindow:     time.Second,
		ConcurrentLimit:   25,
		ConcurrentTimeout: time.Minute,
	}
}

// ApplyIntegrationDefaults fills endpoints that have a single sensible
// public value.
func (c *IntegrationConfig) ApplyIntegrationDefaults() {
	if c.EmailFrom == "" {
		c.EmailFrom = "Trackr <notifications@trackr.dev>"
	}
	if c.GitHubAPIURL == "" {
		c.GitHubAPIURL = "https://api.github.com/"
	}
	if c.BitbucketAPIURL == "" {
		c.BitbucketAPIURL = "https://api.bitbucket.org"
	}
	if len(c.BitbucketIPRanges) == 0 {
		c.BitbucketIPRanges = []string{
			"104.192.136.0/21",
			"185.166.140.0/22",
			"18.205.93.0/25",
			"18.234.32.128/25",
			"13.52.5.0/25",
		}
	}
	if c.MSTeamsOpenIDURL == "" {
		c.MSTeamsOpenIDURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"
	}
	if len(c.MSTeamsServiceHosts) == 0 {
		c.MSTeamsServiceHosts = []string{"smba.trafficmanager.net", "*.botframework.com"}
	}
	if c.MSTeamsTokenURL == "" {
		c.MSTeamsTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"
	}
	if c.OpsgenieAPIURL == "" {
		c.OpsgenieAPIURL = "https://api.opsgenie.com"
	}
}

// MSTeamsEnabled reports whether the MS Teams bot is configured.
func (c *IntegrationConfig) MSTeamsEnabled() bool {
	return c.MSTeamsAppID != ""
}

// Validate checks the blocks that are all-or-nothing.
func (c *IntegrationConfig) Validate() error {
	if c.MSTeamsEnabled() {
		if c.MSTeamsAppPassword == "" {
			return fmt.Errorf("msteams_app_password is required when msteams_app_id is set")
		}
		if len(c.MSTeamsSigningSecret) < minSigningSecret {
			return fmt.Errorf("msteams_signing_secret must be at least %d characters when msteams_app_id is set", minSigningSecret)
		}
	}
	return nil
}

// SiloModeOrDefault returns the configured silo mode, "monolith" when unset.
func (p Primary) SiloModeOrDefault() string {
	if p.SiloMode == "" {
		return "monolith"
	}
	return p.SiloMode
}

// LoadConfig loads configuration from environment variables, unmarshals it
// into Config, validates it, applies defaults and returns the result.
func LoadConfig() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("could not load initial env variables: %w", err)
	}

	mainConfig := &Config{}
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("could not unmarshal main config: %w", err)
	}

	if err := mainConfig.finalize(); err != nil {
		return nil, err
	}

	return mainConfig, nil
}

// finalize validates struct tags, injects defaults and runs the custom
// validators of optional blocks.
func (c *Config) finalize() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Observability == nil {
		c.Observability = DefaultObservabilityConfig()
	}

	// Service name and environment are always derived, never configured.
	c.Observability.ServiceName = "trackr"
	c.Observability.Environment = c.Primary.Env

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	if c.RateLimit == nil {
		c.RateLimit = DefaultRateLimitConfig()
	}
	if c.RateLimit.DefaultWindow <= 0 {
		c.RateLimit.DefaultWindow = time.Second
	}
	if c.RateLimit.ConcurrentTimeout <= 0 {
		c.RateLimit.ConcurrentTimeout = time.Minute
	}

	if err := c.Integration.Validate(); err != nil {
		return fmt.Errorf("invalid integration config: %w", err)
	}
	c.Integration.ApplyIntegrationDefaults()

	return nil
}
