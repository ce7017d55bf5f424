package auth

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/cache"
	"github.com/charlesng35/multiguard/internal/events"
	"github.com/charlesng35/multiguard/pkg/crypto"
)

// Config carries the typed auth settings resolved at start-up.
type Config struct {
	AppKey              []byte
	BaseURL             string
	KDF                 crypto.Argon2Parameters
	Throttle            ThrottleConfig
	ConfirmationTimeout time.Duration
	VerificationTTL     time.Duration
	ResetTTL            time.Duration
	ResetThrottle       time.Duration
	Remember            RememberCookieConfig
}

// Dependencies are the collaborators shared by every guard.
type Dependencies struct {
	DB         *gorm.DB
	Principals PrincipalStore
	Cache      cache.Store
	Notifier   Notifier
	Events     *events.Dispatcher
	Clock      func() time.Time
}

// GuardServices groups the per-guard operations exposed to handlers.
type GuardServices struct {
	Guard        Guard
	Session      *SessionGuard
	Login        *LoginFlow
	Confirmation *PasswordConfirmationGate
	Verification *VerificationFlow
	Passwords    *PasswordBroker
}

// Manager owns the fixed guard set and their services.
type Manager struct {
	registry    *Registry
	credentials *CredentialStore
	throttle    *LoginThrottle
	signer      *LinkSigner
	principals  PrincipalStore
	events      *events.Dispatcher
	services    map[GuardName]*GuardServices
}

// NewManager derives the cookie and link keys from the app key and builds
// services for every guard in registry.
func NewManager(registry *Registry, cfg Config, deps Dependencies) (*Manager, error) {
	if registry == nil {
		return nil, errors.New("auth manager: registry is required")
	}
	if len(cfg.AppKey) == 0 {
		return nil, errors.New("auth manager: app key is required")
	}
	if deps.DB == nil || deps.Principals == nil || deps.Cache == nil || deps.Notifier == nil {
		return nil, errors.New("auth manager: db, principals, cache and notifier are required")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if cfg.KDF == (crypto.Argon2Parameters{}) {
		cfg.KDF = crypto.DefaultArgon2Params()
	}

	cookieKey, err := crypto.DeriveSubkey(cfg.AppKey, "remember-cookie", cfg.KDF)
	if err != nil {
		return nil, fmt.Errorf("auth manager: derive cookie key: %w", err)
	}
	linkKey, err := crypto.DeriveSubkey(cfg.AppKey, "signed-link", cfg.KDF)
	if err != nil {
		return nil, fmt.Errorf("auth manager: derive link key: %w", err)
	}
	signer, err := NewLinkSigner(linkKey, registry, cfg.BaseURL, deps.Clock)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		registry:    registry,
		credentials: NewCredentialStore(deps.Principals),
		throttle:    NewLoginThrottle(deps.Cache, cfg.Throttle),
		signer:      signer,
		principals:  deps.Principals,
		events:      deps.Events,
		services:    make(map[GuardName]*GuardServices),
	}

	for _, guard := range registry.All() {
		sessionGuard, err := NewSessionGuard(guard, deps.Principals, cookieKey,
			WithGuardClock(deps.Clock),
			WithGuardEvents(deps.Events),
			WithRememberCookie(cfg.Remember),
		)
		if err != nil {
			return nil, err
		}
		verification, err := NewVerificationFlow(guard, VerificationConfig{
			Principals: deps.Principals,
			Signer:     signer,
			Notifier:   deps.Notifier,
			Events:     deps.Events,
			TTL:        cfg.VerificationTTL,
			Clock:      deps.Clock,
		})
		if err != nil {
			return nil, err
		}
		passwords, err := NewPasswordBroker(guard, PasswordBrokerConfig{
			DB:         deps.DB,
			Principals: deps.Principals,
			Cache:      deps.Cache,
			Notifier:   deps.Notifier,
			Events:     deps.Events,
			BaseURL:    cfg.BaseURL,
			TTL:        cfg.ResetTTL,
			Throttle:   cfg.ResetThrottle,
			Clock:      deps.Clock,
		})
		if err != nil {
			return nil, err
		}

		m.services[guard.Name] = &GuardServices{
			Guard:        guard,
			Session:      sessionGuard,
			Login:        NewLoginFlow(sessionGuard, m.throttle, deps.Events),
			Confirmation: NewPasswordConfirmationGate(guard, m.credentials, cfg.ConfirmationTimeout, deps.Clock),
			Verification: verification,
			Passwords:    passwords,
		}
	}
	return m, nil
}

// Registry returns the guard registry.
func (m *Manager) Registry() *Registry { return m.registry }

// Guard returns the services for name.
func (m *Manager) Guard(name GuardName) (*GuardServices, bool) {
	svc, ok := m.services[name]
	return svc, ok
}

// MustGuard returns the services for name and panics when the guard is not registered.
func (m *Manager) MustGuard(name GuardName) *GuardServices {
	svc, ok := m.services[name]
	if !ok {
		panic(fmt.Sprintf("auth manager: guard %q is not registered", name))
	}
	return svc
}

// Credentials returns the shared credential store.
func (m *Manager) Credentials() *CredentialStore { return m.credentials }

// Principals returns the shared principal store.
func (m *Manager) Principals() PrincipalStore { return m.principals }

// Throttle returns the shared login throttle.
func (m *Manager) Throttle() *LoginThrottle { return m.throttle }

// Signer returns the link signer.
func (m *Manager) Signer() *LinkSigner { return m.signer }

// Events returns the dispatcher, which may be nil.
func (m *Manager) Events() *events.Dispatcher { return m.events }
