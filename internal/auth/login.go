package auth

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/charlesng35/multiguard/internal/events"
	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/internal/session"
	apperrors "github.com/charlesng35/multiguard/pkg/errors"
	"github.com/charlesng35/multiguard/pkg/logger"
	"github.com/charlesng35/multiguard/pkg/metrics"
)

// Credentials is a login form submission.
type Credentials struct {
	Email    string
	Password string
	Remember bool
}

// LoginFlow runs a throttled login for one guard: throttle check, credential
// check, session establishment.
type LoginFlow struct {
	guard    *SessionGuard
	throttle *LoginThrottle
	events   *events.Dispatcher
}

// NewLoginFlow wires a guard to a throttle.
func NewLoginFlow(guard *SessionGuard, throttle *LoginThrottle, dispatcher *events.Dispatcher) *LoginFlow {
	return &LoginFlow{guard: guard, throttle: throttle, events: dispatcher}
}

// Login authenticates creds. The throttle slot is taken before the credential
// store is touched, so a locked-out key never reaches it; a success clears the
// counter. A throttle store failure rejects the attempt.
func (f *LoginFlow) Login(ctx context.Context, sess *session.Session, creds Credentials) (*models.Principal, error) {
	name := string(f.guard.Guard().Name)
	key := ThrottleKey(creds.Email, f.guard.Guard().Name)
	log := logger.WithGuard("auth", name)

	if err := f.throttle.Attempt(ctx, key); err != nil {
		var throttled *ThrottledError
		if errors.As(err, &throttled) {
			metrics.AuthAttempts.WithLabelValues(name, "throttled").Inc()
			f.lockout(ctx, creds.Email)
			return nil, err
		}
		log.Error("login throttle unavailable", zap.Error(err))
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	principal, err := f.guard.Attempt(ctx, sess, creds.Email, creds.Password, creds.Remember)
	if err != nil {
		if !errors.Is(err, apperrors.ErrInvalidCredentials) {
			return nil, err
		}
		metrics.AuthAttempts.WithLabelValues(name, "failure").Inc()
		_ = f.events.Dispatch(ctx, events.Event{Name: events.Failed, Guard: name, Email: creds.Email})
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues(name, "success").Inc()
	if err := f.throttle.Clear(ctx, key); err != nil {
		log.Warn("failed to clear login throttle", zap.Error(err))
	}
	return principal, nil
}

func (f *LoginFlow) lockout(ctx context.Context, email string) {
	name := string(f.guard.Guard().Name)
	metrics.Lockouts.WithLabelValues(name).Inc()
	logger.WithGuard("auth", name).Warn("login locked out")
	_ = f.events.Dispatch(ctx, events.Event{Name: events.Lockout, Guard: name, Email: email})
}
