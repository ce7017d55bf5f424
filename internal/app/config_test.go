package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "https://auth.example.com", cfg.Server.BaseURL)
	require.Equal(t, "console", cfg.Server.LogFormat)
	require.True(t, cfg.Server.HSTS)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)

	require.Equal(t, "redis", cfg.Cache.Driver)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)
	require.Equal(t, "mg:", cfg.Cache.Redis.Prefix)

	require.Equal(t, "database", cfg.Session.Driver)
	require.Equal(t, "mg_session", cfg.Session.CookieName)
	require.Equal(t, 90*time.Minute, cfg.Session.Lifetime)

	require.Equal(t, 3, cfg.Auth.Throttle.MaxAttempts)
	require.Equal(t, 2*time.Minute, cfg.Auth.Throttle.Decay)
	require.Equal(t, time.Hour, cfg.Auth.ConfirmationTimeout)
	require.Equal(t, 30*time.Minute, cfg.Auth.VerificationTTL)
	require.Equal(t, 45*time.Minute, cfg.Auth.Reset.TTL)
	require.Equal(t, 30*time.Second, cfg.Auth.Reset.Throttle)
	require.Equal(t, 720*time.Hour, cfg.Auth.RememberLifetime)
	require.Equal(t, 10, cfg.Auth.VerifyRateLimit)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "Acme", cfg.Email.AppName)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@every 5m", cfg.Maintenance.Schedule)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "memory", cfg.Cache.Driver)
	require.Equal(t, "cache", cfg.Session.Driver)
	require.Equal(t, "multiguard_session", cfg.Session.CookieName)
	require.Equal(t, 120*time.Minute, cfg.Session.Lifetime)
	require.Equal(t, 5, cfg.Auth.Throttle.MaxAttempts)
	require.Equal(t, time.Minute, cfg.Auth.Throttle.Decay)
	require.Equal(t, 3*time.Hour, cfg.Auth.ConfirmationTimeout)
	require.Equal(t, 60*time.Minute, cfg.Auth.VerificationTTL)
	require.Equal(t, 60*time.Minute, cfg.Auth.Reset.TTL)
	require.Equal(t, 60*time.Second, cfg.Auth.Reset.Throttle)
	require.Equal(t, 6, cfg.Auth.VerifyRateLimit)
	require.Empty(t, cfg.Auth.AppKey)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("MULTIGUARD_SERVER_PORT", "7070")
	t.Setenv("MULTIGUARD_AUTH_THROTTLE_MAX_ATTEMPTS", "9")
	t.Setenv("MULTIGUARD_CACHE_REDIS_ADDRESS", "cache:6379")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, 9, cfg.Auth.Throttle.MaxAttempts)
	require.Equal(t, "cache:6379", cfg.Cache.Redis.Address)
}

func TestLoadConfigRejectsShortAppKey(t *testing.T) {
	dir := t.TempDir()
	body := []byte("auth:\n  app_key: \"too-short\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), body, 0o600))

	_, err := LoadConfig(dir)
	require.ErrorContains(t, err, "at least 32 bytes")
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	cfg := Config{Cache: CacheConfig{Driver: "memcached"}, Session: SessionConfig{Driver: "cache"}}
	require.ErrorContains(t, cfg.Validate(), "cache driver")

	cfg = Config{Cache: CacheConfig{Driver: "memory"}, Session: SessionConfig{Driver: "cookie"}}
	require.ErrorContains(t, cfg.Validate(), "session driver")
}

func TestAdapters(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("testdata"))
	require.NoError(t, err)

	key, err := DecodeKey(cfg.Auth.AppKey)
	require.NoError(t, err)
	require.Len(t, key, 32)

	authCfg := cfg.Auth.ManagerConfig(key, cfg.Server.BaseURL, cfg.Session)
	require.Equal(t, key, authCfg.AppKey)
	require.Equal(t, "https://auth.example.com", authCfg.BaseURL)
	require.Equal(t, 3, authCfg.Throttle.MaxAttempts)
	require.Equal(t, 45*time.Minute, authCfg.ResetTTL)
	require.Equal(t, uint32(1), authCfg.KDF.Time)
	require.Equal(t, uint32(8192), authCfg.KDF.Memory)
	require.Equal(t, uint8(1), authCfg.KDF.Threads)
	require.Equal(t, uint32(32), authCfg.KDF.KeyLength)
	require.True(t, authCfg.Remember.Secure)
	require.Equal(t, 720*time.Hour, authCfg.Remember.Lifetime)

	dbCfg := cfg.Database.Connection()
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.example.com", dbCfg.Host)
	require.Equal(t, "multiguard", dbCfg.Name)
	require.Equal(t, "app", dbCfg.User)

	redisCfg := cfg.Cache.RedisClientConfig()
	require.Equal(t, "redis.example.com:6380", redisCfg.Address)
	require.Equal(t, 2, redisCfg.DB)
	require.Equal(t, "mg:", redisCfg.Prefix)

	sessCfg := cfg.Session.ManagerConfig()
	require.Equal(t, "mg_session", sessCfg.CookieName)
	require.Equal(t, "/", sessCfg.Path)
	require.True(t, sessCfg.Secure)

	smtp := cfg.Email.SMTPSettings()
	require.Equal(t, "smtp.example.com", smtp.Host)
	require.Equal(t, 2525, smtp.Port)
}
