package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the shopapp backend.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string            `mapstructure:"driver"`
	Path            string            `mapstructure:"path"`
	DSN             string            `mapstructure:"dsn"`
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Name            string            `mapstructure:"name"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	Options         map[string]string `mapstructure:"options"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration     `mapstructure:"conn_max_lifetime"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT     JWTSettings     `mapstructure:"jwt"`
	Session SessionSettings `mapstructure:"session"`
	Admin   AdminSettings   `mapstructure:"admin"`
}

// JWTSettings configures bearer tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// SessionSettings configures rotation tokens and the per-user session cap.
type SessionSettings struct {
	RefreshTTL   time.Duration `mapstructure:"refresh_token_ttl"`
	MaxSessions  int           `mapstructure:"max_sessions"`
	CacheEnabled bool          `mapstructure:"cache_enabled"`
}

// AdminSettings bootstraps the administrator account on start-up when both fields are set.
type AdminSettings struct {
	PhoneNumber string `mapstructure:"phone_number"`
	Password    string `mapstructure:"password"`
}

// RateLimitConfig throttles the public login and refresh endpoints per client IP.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// MaintenanceConfig holds cron specs for background cleanup. An empty spec disables the job.
type MaintenanceConfig struct {
	SessionCleanup string `mapstructure:"session_cleanup"`
	CacheCleanup   string `mapstructure:"cache_cleanup"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("SHOPAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the session lifecycle cannot honour.
func (c *Config) Validate() error {
	if c.Auth.Session.MaxSessions < 0 {
		return fmt.Errorf("config: auth.session.max_sessions must not be negative, got %d", c.Auth.Session.MaxSessions)
	}
	access := c.Auth.JWT.TTL
	refresh := c.Auth.Session.RefreshTTL
	if access > 0 && refresh > 0 && refresh <= access {
		return fmt.Errorf("config: auth.session.refresh_token_ttl (%s) must exceed auth.jwt.access_token_ttl (%s)", refresh, access)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8088)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/shopapp.sqlite")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "0s")

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.issuer", "shopapp")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.session.refresh_token_ttl", "720h") // 30 days
	v.SetDefault("auth.session.max_sessions", 3)
	v.SetDefault("auth.session.cache_enabled", false)
	v.SetDefault("auth.admin.phone_number", "")
	v.SetDefault("auth.admin.password", "")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 20)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("maintenance.session_cleanup", "@hourly")
	v.SetDefault("maintenance.cache_cleanup", "@daily")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
