// Package config loads CLI configuration from the environment and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends accepted in IPTRAIL_STORE.
const (
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds CLI configuration loaded from the environment.
type Config struct {
	// APIURL is the API root (e.g. http://localhost:8000/api).
	APIURL string `mapstructure:"IPTRAIL_API_URL"`
	// Timeout is the per-request timeout (e.g. "15s").
	Timeout string `mapstructure:"IPTRAIL_TIMEOUT"`
	// UserAgent is sent with every request.
	UserAgent string `mapstructure:"IPTRAIL_USER_AGENT"`

	// Store selects the credential backend: sqlite, mysql, redis or memory.
	Store string `mapstructure:"IPTRAIL_STORE"`
	// DBPath is the SQLite file used when Store is sqlite.
	DBPath string `mapstructure:"IPTRAIL_DB_PATH"`
	// MySQLDSN is required when Store is mysql (user:password@tcp(host:port)/database).
	MySQLDSN string `mapstructure:"IPTRAIL_MYSQL_DSN"`
	// Profile namespaces credentials in shared backends (mysql, redis).
	Profile string `mapstructure:"IPTRAIL_PROFILE"`
	// RedisAddr is required when Store is redis.
	RedisAddr     string `mapstructure:"IPTRAIL_REDIS_ADDR"`
	RedisPassword string `mapstructure:"IPTRAIL_REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"IPTRAIL_REDIS_DB"`

	// GeoIPDB is an optional MaxMind GeoLite2-City database for offline lookups.
	GeoIPDB string `mapstructure:"IPTRAIL_GEOIP_DB"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("IPTRAIL_API_URL", "http://localhost:8000/api")
	v.SetDefault("IPTRAIL_TIMEOUT", "15s")
	v.SetDefault("IPTRAIL_USER_AGENT", "iptrail/1.0")
	v.SetDefault("IPTRAIL_STORE", StoreSQLite)
	v.SetDefault("IPTRAIL_DB_PATH", "iptrail.db")
	v.SetDefault("IPTRAIL_MYSQL_DSN", "")
	v.SetDefault("IPTRAIL_PROFILE", "default")
	v.SetDefault("IPTRAIL_REDIS_ADDR", "")
	v.SetDefault("IPTRAIL_REDIS_PASSWORD", "")
	v.SetDefault("IPTRAIL_REDIS_DB", 0)
	v.SetDefault("IPTRAIL_GEOIP_DB", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))

	if cfg.APIURL == "" {
		return nil, errors.New("config: IPTRAIL_API_URL must be set")
	}
	if d, err := time.ParseDuration(cfg.Timeout); err != nil || d <= 0 {
		return nil, fmt.Errorf("config: IPTRAIL_TIMEOUT %q is not a positive duration", cfg.Timeout)
	}

	switch cfg.Store {
	case StoreSQLite:
		if cfg.DBPath == "" {
			return nil, errors.New("config: IPTRAIL_DB_PATH must be set when IPTRAIL_STORE=sqlite")
		}
	case StoreMySQL:
		if cfg.MySQLDSN == "" {
			return nil, errors.New("config: IPTRAIL_MYSQL_DSN must be set when IPTRAIL_STORE=mysql")
		}
	case StoreRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: IPTRAIL_REDIS_ADDR must be set when IPTRAIL_STORE=redis")
		}
		if cfg.RedisDB < 0 || cfg.RedisDB > 15 {
			return nil, errors.New("config: IPTRAIL_REDIS_DB must be between 0 and 15")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("config: unknown IPTRAIL_STORE %q", cfg.Store)
	}

	return &cfg, nil
}

// RequestTimeout parses Timeout as a time.Duration. Returns 15s if unset or invalid.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 15 * time.Second
	}
	return d
}

// RedisKeyPrefix returns the key prefix for the configured profile.
func (c *Config) RedisKeyPrefix() string {
	return "iptrail:" + c.Profile + ":"
}
