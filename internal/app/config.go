package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the multiguard service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Session     SessionConfig     `mapstructure:"session"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Email       EmailConfig       `mapstructure:"email"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	BaseURL   string `mapstructure:"base_url"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	HSTS      bool   `mapstructure:"hsts"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// CacheConfig selects the store behind throttle counters, sessions and
// reset-link throttling.
type CacheConfig struct {
	// Driver is "memory", "database" or "redis".
	Driver string           `mapstructure:"driver"`
	Redis  RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options.
type RedisCacheConfig struct {
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

// SessionConfig configures the session cookie and its storage.
type SessionConfig struct {
	// Driver is "cache" or "database".
	Driver     string        `mapstructure:"driver"`
	CookieName string        `mapstructure:"cookie_name"`
	Lifetime   time.Duration `mapstructure:"lifetime"`
	Domain     string        `mapstructure:"domain"`
	Secure     bool          `mapstructure:"secure"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	AppKey              string           `mapstructure:"app_key"`
	Throttle            ThrottleSettings `mapstructure:"throttle"`
	ConfirmationTimeout time.Duration    `mapstructure:"password_timeout"`
	VerificationTTL     time.Duration    `mapstructure:"verification_ttl"`
	Reset               ResetSettings    `mapstructure:"reset"`
	RememberLifetime    time.Duration    `mapstructure:"remember_lifetime"`
	VerifyRateLimit     int              `mapstructure:"verify_rate_limit"`
	KDF                 KDFSettings      `mapstructure:"kdf"`
}

// ThrottleSettings bounds failed logins per email and guard.
type ThrottleSettings struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Decay       time.Duration `mapstructure:"decay"`
}

// ResetSettings configures password reset tokens.
type ResetSettings struct {
	TTL      time.Duration `mapstructure:"ttl"`
	Throttle time.Duration `mapstructure:"throttle"`
}

// KDFSettings tunes the Argon2id derivation of subkeys from the app key.
type KDFSettings struct {
	Time      uint32 `mapstructure:"time"`
	MemoryKiB uint32 `mapstructure:"memory_kib"`
	Threads   uint8  `mapstructure:"threads"`
}

// EmailConfig captures outbound email settings.
type EmailConfig struct {
	AppName string     `mapstructure:"app_name"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
}

// SMTPConfig defines SMTP dialer settings for sending email.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MaintenanceConfig schedules the background prune job.
type MaintenanceConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("MULTIGUARD")
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

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Cache.Driver) {
	case "memory", "database", "redis":
	default:
		return fmt.Errorf("config: unsupported cache driver %q", c.Cache.Driver)
	}
	switch strings.ToLower(c.Session.Driver) {
	case "cache", "database":
	default:
		return fmt.Errorf("config: unsupported session driver %q", c.Session.Driver)
	}
	if key := strings.TrimSpace(c.Auth.AppKey); key != "" {
		n, err := KeyByteLength(key)
		if err != nil {
			return fmt.Errorf("config: auth.app_key: %w", err)
		}
		if n < minAppKeyBytes {
			return fmt.Errorf("config: auth.app_key must decode to at least %d bytes, got %d", minAppKeyBytes, n)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.hsts", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/multiguard.sqlite")

	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")
	v.SetDefault("cache.redis.prefix", "multiguard:")

	v.SetDefault("session.driver", "cache")
	v.SetDefault("session.cookie_name", "multiguard_session")
	v.SetDefault("session.lifetime", "120m")
	v.SetDefault("session.secure", false)

	v.SetDefault("auth.app_key", "")
	v.SetDefault("auth.throttle.max_attempts", 5)
	v.SetDefault("auth.throttle.decay", "1m")
	v.SetDefault("auth.password_timeout", "3h")
	v.SetDefault("auth.verification_ttl", "60m")
	v.SetDefault("auth.reset.ttl", "60m")
	v.SetDefault("auth.reset.throttle", "60s")
	v.SetDefault("auth.remember_lifetime", "9600h") // 400 days
	v.SetDefault("auth.verify_rate_limit", 6)
	v.SetDefault("auth.kdf.time", 2)
	v.SetDefault("auth.kdf.memory_kib", 64*1024)
	v.SetDefault("auth.kdf.threads", 4)

	v.SetDefault("email.app_name", "Multiguard")
	v.SetDefault("email.smtp.enabled", false)
	v.SetDefault("email.smtp.host", "")
	v.SetDefault("email.smtp.port", 587)
	v.SetDefault("email.smtp.use_tls", true)
	v.SetDefault("email.smtp.timeout", "10s")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.schedule", "@every 15m")
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
