// Package config loads the YAML service configuration and applies secret overrides from
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigPath names the environment variable that points at the config file.
	EnvConfigPath     = "TICKET_ENGINE_CONFIG"
	defaultConfigPath = "config.yaml"
)

// ErrMissingDSN is returned when no database DSN is configured.
var ErrMissingDSN = errors.New("config: database dsn is required")

// AppConfig carries process level flags.
type AppConfig struct {
	ConfigPath  string
	MigrateOnly bool
}

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	JWT       JWTConfig       `yaml:"jwt"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	CMS       CMSConfig       `yaml:"cms"`
	Redis     RedisConfig     `yaml:"redis"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
	Sequencer SequencerConfig `yaml:"sequencer"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Listen address, e.g. ":8080".
	Mode string `yaml:"mode"` // Gin mode: debug/release/test.
}

// DatabaseConfig configures the primary database.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`               // Postgres DSN or sqlite path.
	MaxOpenConns    int           `yaml:"max_open_conns"`    // Pool size.
	MaxIdleConns    int           `yaml:"max_idle_conns"`    // Idle pool size.
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"` // Connection recycle interval.
}

// LogConfig configures logrus output.
type LogConfig struct {
	Level      string `yaml:"level"`        // trace/debug/info/warn/error.
	Format     string `yaml:"format"`       // text or json.
	File       string `yaml:"file"`         // Optional log file; stdout when empty.
	MaxSizeMB  int    `yaml:"max_size_mb"`  // Rotation size.
	MaxBackups int    `yaml:"max_backups"`  // Rotated files kept.
	MaxAgeDays int    `yaml:"max_age_days"` // Rotated file retention.
}

// JWTConfig holds token secrets for users and admins.
type JWTConfig struct {
	Secret      string        `yaml:"secret"`       // Identity provider shared secret.
	AdminSecret string        `yaml:"admin_secret"` // Admin token secret.
	Expiry      time.Duration `yaml:"expiry"`       // Admin token lifetime.
}

// GatewayConfig configures the card payment gateway.
type GatewayConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
	SuccessCode string        `yaml:"success_code"`
	Currency    string        `yaml:"currency"`
}

// CMSConfig configures the read-only content service.
type CMSConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// RedisConfig configures the optional redis instance.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// CheckoutConfig tunes the checkout coordinator.
type CheckoutConfig struct {
	MaxAttempts               int           `yaml:"max_attempts"`
	BaseBackoff               time.Duration `yaml:"base_backoff"`
	MaxBackoff                time.Duration `yaml:"max_backoff"`
	MaxQuantityPerLine        int64         `yaml:"max_quantity_per_line"`
	RefundFailedLinesToWallet *bool         `yaml:"refund_failed_lines_to_wallet"`
	PendingOrderTTL           time.Duration `yaml:"pending_order_ttl"`
	ReaperInterval            time.Duration `yaml:"reaper_interval"`
}

// RefundToWallet reports whether failed lines are credited back to the wallet. Defaults to true.
func (c CheckoutConfig) RefundToWallet() bool {
	return c.RefundFailedLinesToWallet == nil || *c.RefundFailedLinesToWallet
}

// SequencerConfig tunes ticket reservation.
type SequencerConfig struct {
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// ResolveConfigPath picks the config file: explicit flag, then TICKET_ENGINE_CONFIG, then ./config.yaml.
func ResolveConfigPath(flagPath string) string {
	if p := strings.TrimSpace(flagPath); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p
	}
	return defaultConfigPath
}

// Load reads the YAML file at path, loads .env when present and applies environment
// overrides for secrets. A missing config file is allowed when the environment supplies
// the DSN.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	raw, errRead := os.ReadFile(path)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(raw, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, errRead)
	}

	overrideFromEnv(cfg)
	cfg.applyDefaults()
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, ErrMissingDSN
	}
	return cfg, nil
}

// LoadDatabaseDSN returns only the database DSN, for migrate-only runs.
func LoadDatabaseDSN(path string) (string, error) {
	cfg, errLoad := Load(path)
	if errLoad != nil {
		return "", errLoad
	}
	return cfg.Database.DSN, nil
}

func overrideFromEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Database.DSN, "DATABASE_DSN")
	setString(&cfg.JWT.Secret, "JWT_SECRET")
	setString(&cfg.JWT.AdminSecret, "ADMIN_JWT_SECRET")
	setString(&cfg.Gateway.APIKey, "GATEWAY_API_KEY")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.CMS.APIKey, "CMS_API_KEY")
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if n, errParse := strconv.Atoi(v); errParse == nil {
			cfg.Redis.DB = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.JWT.Expiry <= 0 {
		c.JWT.Expiry = 12 * time.Hour
	}
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = 15 * time.Second
	}
	if c.Gateway.Currency == "" {
		c.Gateway.Currency = "GBP"
	}
	if c.CMS.Timeout <= 0 {
		c.CMS.Timeout = 5 * time.Second
	}
	if c.CMS.CacheTTL <= 0 {
		c.CMS.CacheTTL = 10 * time.Minute
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "ticket-engine"
	}
	if c.Checkout.PendingOrderTTL <= 0 {
		c.Checkout.PendingOrderTTL = 15 * time.Minute
	}
	if c.Checkout.ReaperInterval <= 0 {
		c.Checkout.ReaperInterval = time.Minute
	}
	if c.Sequencer.LockTimeout <= 0 {
		c.Sequencer.LockTimeout = 5 * time.Second
	}
}
