package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/multierr"

	"github.com/charlesng35/multiguard/pkg/crypto"
)

const idLength = 40

// Config controls the session cookie.
type Config struct {
	CookieName string
	Lifetime   time.Duration
	Path       string
	Domain     string
	Secure     bool
	SameSite   http.SameSite
}

func (c Config) withDefaults() Config {
	if c.CookieName == "" {
		c.CookieName = "multiguard_session"
	}
	if c.Lifetime <= 0 {
		c.Lifetime = 120 * time.Minute
	}
	if c.Path == "" {
		c.Path = "/"
	}
	if c.SameSite == 0 {
		c.SameSite = http.SameSiteLaxMode
	}
	return c
}

// Manager starts and persists sessions through a Handler.
type Manager struct {
	handler Handler
	cfg     Config
}

// NewManager constructs a Manager.
func NewManager(handler Handler, cfg Config) *Manager {
	return &Manager{handler: handler, cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Start loads the session named by the request cookie, or begins a new one
// when the cookie is absent, malformed or unknown.
func (m *Manager) Start(ctx context.Context, r *http.Request) (*Session, error) {
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}

	if id, ok := cookies[m.cfg.CookieName]; ok && validID(id) {
		values, err := m.handler.Read(ctx, id)
		if err != nil {
			return nil, err
		}
		if values != nil {
			return newSession(id, values, cookies), nil
		}
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}
	return newSession(id, nil, cookies), nil
}

// Save ages flash data, writes the session and destroys identifiers retired
// by Regenerate.
func (m *Manager) Save(ctx context.Context, sess *Session, meta Meta) error {
	sess.ageFlash()
	meta.Lifetime = m.cfg.Lifetime

	if err := m.handler.Write(ctx, sess.id, sess.snapshot(), meta); err != nil {
		return err
	}

	var errs error
	for _, stale := range sess.staleIDs {
		errs = multierr.Append(errs, m.handler.Destroy(ctx, stale))
	}
	sess.staleIDs = nil
	return errs
}

// Cookie builds the session cookie for sess.
func (m *Manager) Cookie(sess *Session) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    sess.id,
		Path:     m.cfg.Path,
		Domain:   m.cfg.Domain,
		MaxAge:   int(m.cfg.Lifetime / time.Second),
		Secure:   m.cfg.Secure,
		HttpOnly: true,
		SameSite: m.cfg.SameSite,
	}
}

func newID() (string, error) {
	id, err := crypto.RandomString(idLength)
	if err != nil {
		return "", fmt.Errorf("session: generate id: %w", err)
	}
	return id, nil
}

func validID(id string) bool {
	if len(id) != idLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}
