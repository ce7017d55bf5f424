package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/multiguard/internal/events"
	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/internal/session"
	"github.com/charlesng35/multiguard/pkg/crypto"
	apperrors "github.com/charlesng35/multiguard/pkg/errors"
	"github.com/charlesng35/multiguard/pkg/logger"
	"github.com/charlesng35/multiguard/pkg/metrics"
)

const rememberTokenLength = 60

// RememberCookieConfig controls the long-lived remember-me cookie.
type RememberCookieConfig struct {
	Lifetime time.Duration
	Path     string
	Domain   string
	Secure   bool
}

func (c RememberCookieConfig) withDefaults() RememberCookieConfig {
	if c.Lifetime <= 0 {
		c.Lifetime = 400 * 24 * time.Hour
	}
	if c.Path == "" {
		c.Path = "/"
	}
	return c
}

// SessionGuard binds principals of one guard to a session. It only reads and
// writes keys under its own session prefix and its own remember cookie.
type SessionGuard struct {
	guard       Guard
	principals  PrincipalStore
	credentials *CredentialStore
	cookieKey   []byte
	cookie      RememberCookieConfig
	events      *events.Dispatcher
	clock       func() time.Time
	log         *zap.Logger
}

// GuardOption customises a SessionGuard.
type GuardOption func(*SessionGuard)

// WithGuardClock overrides the time source.
func WithGuardClock(clock func() time.Time) GuardOption {
	return func(g *SessionGuard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithGuardEvents attaches the event dispatcher.
func WithGuardEvents(dispatcher *events.Dispatcher) GuardOption {
	return func(g *SessionGuard) { g.events = dispatcher }
}

// WithRememberCookie overrides the remember cookie attributes.
func WithRememberCookie(cfg RememberCookieConfig) GuardOption {
	return func(g *SessionGuard) { g.cookie = cfg.withDefaults() }
}

// NewSessionGuard constructs a guard. cookieKey encrypts the remember cookie
// and must be 32 bytes.
func NewSessionGuard(guard Guard, principals PrincipalStore, cookieKey []byte, opts ...GuardOption) (*SessionGuard, error) {
	if principals == nil {
		return nil, errors.New("session guard: principal store is required")
	}
	if len(cookieKey) != 32 {
		return nil, errors.New("session guard: cookie key must be 32 bytes")
	}
	g := &SessionGuard{
		guard:       guard,
		principals:  principals,
		credentials: NewCredentialStore(principals),
		cookieKey:   append([]byte(nil), cookieKey...),
		cookie:      RememberCookieConfig{}.withDefaults(),
		clock:       time.Now,
		log:         logger.WithGuard("auth", string(guard.Name)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Guard returns the namespace this guard serves.
func (g *SessionGuard) Guard() Guard { return g.guard }

// ID returns the principal ID bound in sess, if any. It does not consult the
// remember cookie.
func (g *SessionGuard) ID(sess *session.Session) (string, bool) {
	id, ok := sess.Get(g.guard.LoginKey())
	return id, ok && id != ""
}

// Check reports whether the request resolves to a principal.
func (g *SessionGuard) Check(ctx context.Context, sess *session.Session) bool {
	_, err := g.Resolve(ctx, sess)
	return err == nil
}

// Login binds principal to sess and regenerates the session identifier. With
// remember set, a fresh remember token is stored and the cookie queued.
func (g *SessionGuard) Login(ctx context.Context, sess *session.Session, principal *models.Principal, remember bool) error {
	if principal == nil || principal.ID == "" {
		return errors.New("session guard: principal is required")
	}
	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Put(g.guard.LoginKey(), principal.ID)

	if remember {
		if err := g.remember(ctx, sess, principal); err != nil {
			return err
		}
	}

	g.log.Info("principal logged in", zap.String("principal_id", principal.ID), zap.Bool("remember", remember))
	g.dispatch(ctx, events.Login, principal, remember)
	return nil
}

// LoginUsingID looks the principal up in this guard's partition and logs it in.
func (g *SessionGuard) LoginUsingID(ctx context.Context, sess *session.Session, id string, remember bool) (*models.Principal, error) {
	principal, err := g.principals.FindByID(ctx, g.guard.Partition, id)
	if err != nil {
		return nil, err
	}
	if err := g.Login(ctx, sess, principal, remember); err != nil {
		return nil, err
	}
	return principal, nil
}

// Validate checks credentials against this guard's partition without logging in.
func (g *SessionGuard) Validate(ctx context.Context, email, password string) (*models.Principal, error) {
	return g.credentials.Validate(ctx, g.guard, email, password)
}

// Attempt validates credentials and logs the principal in on success.
func (g *SessionGuard) Attempt(ctx context.Context, sess *session.Session, email, password string, remember bool) (*models.Principal, error) {
	principal, err := g.Validate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := g.Login(ctx, sess, principal, remember); err != nil {
		return nil, err
	}
	return principal, nil
}

// Resolve returns the authenticated principal. The session binding wins; when
// absent, a valid remember cookie silently re-establishes it. Anonymous
// requests yield ErrUnauthenticated.
func (g *SessionGuard) Resolve(ctx context.Context, sess *session.Session) (*models.Principal, error) {
	if id, ok := g.ID(sess); ok {
		principal, err := g.principals.FindByID(ctx, g.guard.Partition, id)
		if err == nil {
			return principal, nil
		}
		if !errors.Is(err, ErrPrincipalNotFound) {
			return nil, err
		}
		sess.Forget(g.guard.LoginKey(), g.guard.ConfirmedAtKey())
	}

	raw, ok := sess.Cookie(g.guard.RememberCookie())
	if !ok {
		return nil, apperrors.ErrUnauthenticated
	}

	principal, err := g.principalFromRecaller(ctx, raw)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnauthenticated) {
			sess.QueueCookie(g.forgetCookie())
		}
		return nil, err
	}

	if err := sess.Regenerate(); err != nil {
		return nil, err
	}
	sess.Put(g.guard.LoginKey(), principal.ID)

	metrics.RememberLogins.WithLabelValues(string(g.guard.Name)).Inc()
	g.log.Info("principal restored from remember cookie", zap.String("principal_id", principal.ID))
	g.dispatch(ctx, events.Login, principal, true)
	return principal, nil
}

// Logout clears this guard's binding, regenerates the session, drops the
// stored remember token and expires the cookie. Other guards stay signed in.
func (g *SessionGuard) Logout(ctx context.Context, sess *session.Session) error {
	id, bound := g.ID(sess)
	sess.Forget(g.guard.LoginKey(), g.guard.ConfirmedAtKey())
	sess.QueueCookie(g.forgetCookie())

	var principal *models.Principal
	if bound {
		updated, err := g.principals.Update(ctx, g.guard.Partition, id, func(p *models.Principal) error {
			p.RememberToken = nil
			return nil
		})
		switch {
		case err == nil:
			principal = updated
		case errors.Is(err, ErrPrincipalNotFound):
		default:
			return fmt.Errorf("session guard: clear remember token: %w", err)
		}
	}

	if err := sess.Regenerate(); err != nil {
		return err
	}

	if principal != nil {
		g.log.Info("principal logged out", zap.String("principal_id", principal.ID))
		g.dispatch(ctx, events.Logout, principal, false)
	}
	return nil
}

func (g *SessionGuard) remember(ctx context.Context, sess *session.Session, principal *models.Principal) error {
	token, err := crypto.RandomString(rememberTokenLength)
	if err != nil {
		return fmt.Errorf("session guard: generate remember token: %w", err)
	}
	updated, err := g.principals.Update(ctx, g.guard.Partition, principal.ID, func(p *models.Principal) error {
		p.RememberToken = &token
		return nil
	})
	if err != nil {
		return fmt.Errorf("session guard: store remember token: %w", err)
	}
	*principal = *updated

	value, err := crypto.Encrypt([]byte(principal.ID+"|"+token+"|"+principal.Password), g.cookieKey)
	if err != nil {
		return fmt.Errorf("session guard: encrypt remember cookie: %w", err)
	}
	sess.QueueCookie(&http.Cookie{
		Name:     g.guard.RememberCookie(),
		Value:    value,
		Path:     g.cookie.Path,
		Domain:   g.cookie.Domain,
		MaxAge:   int(g.cookie.Lifetime / time.Second),
		Expires:  g.clock().Add(g.cookie.Lifetime),
		Secure:   g.cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// principalFromRecaller decodes id|token|password_hash and checks both
// secrets against the stored principal in constant time.
func (g *SessionGuard) principalFromRecaller(ctx context.Context, raw string) (*models.Principal, error) {
	plain, err := crypto.Decrypt(raw, g.cookieKey)
	if err != nil {
		return nil, apperrors.ErrUnauthenticated
	}
	parts := strings.SplitN(string(plain), "|", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return nil, apperrors.ErrUnauthenticated
	}

	principal, err := g.principals.FindByID(ctx, g.guard.Partition, parts[0])
	if errors.Is(err, ErrPrincipalNotFound) {
		return nil, apperrors.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}

	tokenOK := crypto.Equal(principal.RememberTokenValue(), parts[1])
	hashOK := crypto.Equal(principal.Password, parts[2])
	if !tokenOK || !hashOK || principal.RememberToken == nil {
		return nil, apperrors.ErrUnauthenticated
	}
	return principal, nil
}

func (g *SessionGuard) forgetCookie() *http.Cookie {
	return &http.Cookie{
		Name:     g.guard.RememberCookie(),
		Value:    "",
		Path:     g.cookie.Path,
		Domain:   g.cookie.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   g.cookie.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func (g *SessionGuard) dispatch(ctx context.Context, name events.Name, principal *models.Principal, remember bool) {
	_ = g.events.Dispatch(ctx, events.Event{
		Name:        name,
		Guard:       string(g.guard.Name),
		PrincipalID: principal.ID,
		Email:       principal.Email,
		Remember:    remember,
		OccurredAt:  g.clock(),
	})
}
