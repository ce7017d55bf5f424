package auth

import (
	"context"
	"strconv"
	"time"

	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/internal/session"
	apperrors "github.com/charlesng35/multiguard/pkg/errors"
)

// DefaultConfirmationTimeout is how long a password confirmation stays valid.
const DefaultConfirmationTimeout = 3 * time.Hour

// PasswordConfirmationGate tracks recent password re-entry per guard.
type PasswordConfirmationGate struct {
	guard       Guard
	credentials *CredentialStore
	timeout     time.Duration
	clock       func() time.Time
}

// NewPasswordConfirmationGate constructs a gate. A non-positive timeout uses
// DefaultConfirmationTimeout.
func NewPasswordConfirmationGate(guard Guard, credentials *CredentialStore, timeout time.Duration, clock func() time.Time) *PasswordConfirmationGate {
	if timeout <= 0 {
		timeout = DefaultConfirmationTimeout
	}
	if clock == nil {
		clock = time.Now
	}
	return &PasswordConfirmationGate{guard: guard, credentials: credentials, timeout: timeout, clock: clock}
}

// Timeout returns the configured validity window.
func (g *PasswordConfirmationGate) Timeout() time.Duration { return g.timeout }

// IsConfirmed reports whether a confirmation was recorded no more than the
// timeout ago. A confirmation exactly timeout old still counts.
func (g *PasswordConfirmationGate) IsConfirmed(sess *session.Session) bool {
	raw, ok := sess.Get(g.guard.ConfirmedAtKey())
	if !ok {
		return false
	}
	confirmedAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	elapsed := g.clock().Unix() - confirmedAt
	return elapsed >= 0 && elapsed <= int64(g.timeout/time.Second)
}

// Confirm re-checks password and records the confirmation time on success.
func (g *PasswordConfirmationGate) Confirm(ctx context.Context, sess *session.Session, principal *models.Principal, password string) error {
	if !g.credentials.VerifyPassword(principal, password) {
		return apperrors.ErrInvalidPassword
	}
	g.Mark(sess)
	return nil
}

// Mark records a confirmation at the current time.
func (g *PasswordConfirmationGate) Mark(sess *session.Session) {
	sess.Put(g.guard.ConfirmedAtKey(), strconv.FormatInt(g.clock().Unix(), 10))
}
