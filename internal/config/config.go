package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the membership lifecycle engine.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Bounce   BounceConfig   `yaml:"bounce"`
	MTA      MTAConfig      `yaml:"mta"`
	Devmode  DevmodeConfig  `yaml:"devmode"`
	Pending  PendingConfig  `yaml:"pending"`
	Site     SiteConfig     `yaml:"site"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the ops/health HTTP listener configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listener host, binding all interfaces on containers.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the Redis connection used for the bounce intake queue
// and the escalation lock. Optional: with no address the runner falls back
// to PG advisory locks and direct event inserts.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BounceConfig holds the bounce processor knobs.
type BounceConfig struct {
	// VERPProbes sends a probe before disabling a member whose score
	// crossed the list threshold.
	VERPProbes bool `yaml:"verp_probes"`

	// TickIntervalSeconds is how often the escalation pass runs.
	TickIntervalSeconds int `yaml:"tick_interval_seconds"`

	// QueueKey is the Redis list the intake collaborator feeds.
	QueueKey string `yaml:"queue_key"`
}

// TickInterval returns the escalation cadence as a duration.
func (c BounceConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// MTAConfig holds outbound transport tagging knobs the dispatcher reads.
type MTAConfig struct {
	// VERPPersonalizedDeliveries tags welcome/goodbye envelopes with VERP.
	VERPPersonalizedDeliveries bool `yaml:"verp_personalized_deliveries"`
	// SiteOwner receives unrecognized bounces routed site-wide.
	SiteOwner string `yaml:"site_owner"`
}

// DevmodeConfig redirects all outbound mail to a single recipient, for
// staging environments.
type DevmodeConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Recipient string `yaml:"recipient"`
}

// PendingConfig holds per-kind lifetimes for pending actions.
type PendingConfig struct {
	SubscriptionLifetimeHours int `yaml:"subscription_lifetime_hours"`
	InvitationLifetimeHours   int `yaml:"invitation_lifetime_hours"`
	ProbeLifetimeHours        int `yaml:"probe_lifetime_hours"`
}

// SubscriptionLifetime returns the confirmation-token lifetime.
func (c PendingConfig) SubscriptionLifetime() time.Duration {
	return time.Duration(c.SubscriptionLifetimeHours) * time.Hour
}

// InvitationLifetime returns the invitation-token lifetime.
func (c PendingConfig) InvitationLifetime() time.Duration {
	return time.Duration(c.InvitationLifetimeHours) * time.Hour
}

// ProbeLifetime returns the probe-token lifetime.
func (c PendingConfig) ProbeLifetime() time.Duration {
	return time.Duration(c.ProbeLifetimeHours) * time.Hour
}

// SiteConfig holds site-wide identity settings.
type SiteConfig struct {
	DefaultLanguage string `yaml:"default_language"`
	TemplateDir     string `yaml:"template_dir"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file, applying defaults for
// anything unset.
func Load(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		// A missing file is fine; everything can come from env overrides.
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Bounce.TickIntervalSeconds == 0 {
		cfg.Bounce.TickIntervalSeconds = 86400 // once per day
	}
	if cfg.Bounce.QueueKey == "" {
		cfg.Bounce.QueueKey = "listkeeper:bounces"
	}
	if cfg.Pending.SubscriptionLifetimeHours == 0 {
		cfg.Pending.SubscriptionLifetimeHours = 3 * 24
	}
	if cfg.Pending.InvitationLifetimeHours == 0 {
		cfg.Pending.InvitationLifetimeHours = 7 * 24
	}
	if cfg.Pending.ProbeLifetimeHours == 0 {
		cfg.Pending.ProbeLifetimeHours = 14 * 24
	}
	if cfg.Site.DefaultLanguage == "" {
		cfg.Site.DefaultLanguage = "en"
	}
	if cfg.Site.TemplateDir == "" {
		cfg.Site.TemplateDir = "templates"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars on the deployment host.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if v := os.Getenv("BOUNCE_VERP_PROBES"); v == "true" || v == "1" {
		cfg.Bounce.VERPProbes = true
	}
	if v := os.Getenv("DEVMODE_RECIPIENT"); v != "" {
		cfg.Devmode.Enabled = true
		cfg.Devmode.Recipient = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
