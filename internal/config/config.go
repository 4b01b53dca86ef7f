// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"freightquote/internal/logging"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "FREIGHTQUOTE_"

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Server contains HTTP server configuration
	Server ServerConfig `json:"server"`

	// Pricing contains pricing configuration
	Pricing PricingConfig `json:"pricing"`

	// FX contains currency conversion configuration
	FX FXConfig `json:"fx"`

	// Database contains the tenant configuration database settings
	Database DatabaseConfig `json:"database"`

	// Redis contains Redis connection settings
	Redis RedisConfig `json:"redis"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Address to listen on
	Address string `json:"address"`

	// ReadTimeoutSeconds bounds request reads
	ReadTimeoutSeconds int `json:"read_timeout_seconds"`

	// WriteTimeoutSeconds bounds response writes
	WriteTimeoutSeconds int `json:"write_timeout_seconds"`
}

// PricingConfig contains pricing-related settings
type PricingConfig struct {
	// ConfigPath is an HCL file with tenants, rate cards, surcharges, add-ons and plans.
	// Used when no database DSN is configured.
	ConfigPath string `json:"config_path"`
}

// FXConfig contains currency conversion settings
type FXConfig struct {
	// Source selects the rate source (static, http, redis)
	Source string `json:"source"`

	// ReferenceCurrency is the pivot currency
	ReferenceCurrency string `json:"reference_currency"`

	// URL is the HTTP rate feed
	URL string `json:"url,omitempty"`

	// RedisKeyPrefix is the hash key prefix for the redis source
	RedisKeyPrefix string `json:"redis_key_prefix,omitempty"`

	// StaticRates are units of currency per one reference unit
	StaticRates map[string]string `json:"static_rates,omitempty"`

	// CacheTTLSeconds is how long fetched rates stay fresh
	CacheTTLSeconds int `json:"cache_ttl_seconds"`

	// RefreshTimeoutSeconds bounds a whole refresh, retries included
	RefreshTimeoutSeconds int `json:"refresh_timeout_seconds"`

	// RetryAttempts is the number of fetch attempts per refresh
	RetryAttempts int `json:"retry_attempts"`

	// RetryBackoffMillis is the delay before the second attempt; it doubles after that
	RetryBackoffMillis int `json:"retry_backoff_millis"`

	// FailureCooldownSeconds is how long stale rates are served after a failed refresh
	FailureCooldownSeconds int `json:"failure_cooldown_seconds"`
}

// DatabaseConfig contains Postgres settings
type DatabaseConfig struct {
	// DSN is the connection string; empty disables the database store
	DSN string `json:"dsn,omitempty"`

	// MigrateOnStart applies the embedded schema at startup
	MigrateOnStart bool `json:"migrate_on_start"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db"`
}

// CacheTTL returns the FX cache TTL
func (c FXConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RefreshTimeout returns the FX refresh timeout
func (c FXConfig) RefreshTimeout() time.Duration {
	return time.Duration(c.RefreshTimeoutSeconds) * time.Second
}

// RetryBackoff returns the initial FX retry backoff
func (c FXConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMillis) * time.Millisecond
}

// FailureCooldown returns how long to wait after a failed refresh
func (c FXConfig) FailureCooldown() time.Duration {
	return time.Duration(c.FailureCooldownSeconds) * time.Second
}

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	pricingPath := filepath.Join(homeDir, ".freightquote", "pricing.hcl")

	return &Config{
		Version: "1.0",
		Server: ServerConfig{
			Address:             ":8080",
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 30,
		},
		Pricing: PricingConfig{
			ConfigPath: pricingPath,
		},
		FX: FXConfig{
			Source:                 "static",
			ReferenceCurrency:      "USD",
			RedisKeyPrefix:         "fx:rates",
			StaticRates: map[string]string{
				"EUR": "0.92",
				"GBP": "0.79",
				"CNY": "7.24",
				"XOF": "603.5",
				"NGN": "1550",
				"KES": "129.4",
				"JPY": "151.2",
			},
			CacheTTLSeconds:        900, // 15 minutes
			RefreshTimeoutSeconds:  5,
			RetryAttempts:          3,
			RetryBackoffMillis:     200,
			FailureCooldownSeconds: 30,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file, then applies environment overrides
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, err
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	config.ApplyEnv()
	return config, nil
}

// LoadDotEnv loads variables from a .env file if present
func LoadDotEnv(paths ...string) {
	if err := godotenv.Load(paths...); err != nil && !os.IsNotExist(err) {
		logging.Or(nil).Debug("no .env file loaded", zap.Error(err))
	}
}

// ApplyEnv overrides fields from FREIGHTQUOTE_* environment variables
func (c *Config) ApplyEnv() {
	c.Server.Address = getEnv("ADDR", c.Server.Address)
	c.Pricing.ConfigPath = getEnv("PRICING_CONFIG", c.Pricing.ConfigPath)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("REDIS_DB", c.Redis.DB)
	c.FX.Source = getEnv("FX_SOURCE", c.FX.Source)
	c.FX.URL = getEnv("FX_URL", c.FX.URL)
	c.FX.ReferenceCurrency = strings.ToUpper(getEnv("FX_REFERENCE", c.FX.ReferenceCurrency))
	c.FX.CacheTTLSeconds = getIntEnv("FX_TTL_SECONDS", c.FX.CacheTTLSeconds)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("LOG_FORMAT", c.Logging.Format)
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func getEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(EnvPrefix + key); ok && val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(EnvPrefix + key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}
