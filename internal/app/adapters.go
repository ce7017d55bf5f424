package app

import (
	"strings"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/cache"
	"github.com/charlesng35/multiguard/internal/database"
	"github.com/charlesng35/multiguard/internal/session"
	"github.com/charlesng35/multiguard/pkg/crypto"
	"github.com/charlesng35/multiguard/pkg/mail"
)

// The adapters below translate the decoded configuration into the option
// types owned by each package, so those packages never import app.

// ManagerConfig converts the auth settings into the auth package
// configuration. appKey is the decoded application key.
func (c AuthConfig) ManagerConfig(appKey []byte, baseURL string, sess SessionConfig) auth.Config {
	kdf := crypto.DefaultArgon2Params()
	if c.KDF.Time > 0 {
		kdf.Time = c.KDF.Time
	}
	if c.KDF.MemoryKiB > 0 {
		kdf.Memory = c.KDF.MemoryKiB
	}
	if c.KDF.Threads > 0 {
		kdf.Threads = c.KDF.Threads
	}

	return auth.Config{
		AppKey:  appKey,
		BaseURL: baseURL,
		KDF:     kdf,
		Throttle: auth.ThrottleConfig{
			MaxAttempts: c.Throttle.MaxAttempts,
			Decay:       c.Throttle.Decay,
		},
		ConfirmationTimeout: c.ConfirmationTimeout,
		VerificationTTL:     c.VerificationTTL,
		ResetTTL:            c.Reset.TTL,
		ResetThrottle:       c.Reset.Throttle,
		Remember: auth.RememberCookieConfig{
			Lifetime: c.RememberLifetime,
			Domain:   sess.Domain,
			Secure:   sess.Secure,
		},
	}
}

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
		Prefix:   c.Redis.Prefix,
	}
}

// ManagerConfig converts the session settings for the session manager.
func (c SessionConfig) ManagerConfig() session.Config {
	return session.Config{
		CookieName: strings.TrimSpace(c.CookieName),
		Lifetime:   c.Lifetime,
		Path:       "/",
		Domain:     strings.TrimSpace(c.Domain),
		Secure:     c.Secure,
	}
}

// Connection converts DatabaseConfig into the database package representation.
func (c DatabaseConfig) Connection() database.Config {
	cfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   c.Path,
		DSN:    c.DSN,
	}

	var host DBAuthConfig
	switch cfg.Driver {
	case "postgres", "postgresql":
		host = c.Postgres
	case "mysql", "mariadb":
		host = c.MySQL
	default:
		return cfg
	}

	cfg.Host = host.Host
	cfg.Port = host.Port
	cfg.Name = host.Database
	cfg.User = host.Username
	cfg.Password = host.Password
	return cfg
}

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     c.SMTP.From,
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}
