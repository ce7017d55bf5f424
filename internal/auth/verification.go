package auth

import (
	"context"
	"errors"
	"fmt"
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

// DefaultVerificationTTL bounds how long an email verification link stays valid.
const DefaultVerificationTTL = 60 * time.Minute

// StatusVerificationLinkSent is the status flashed after a resend.
const StatusVerificationLinkSent = "verification-link-sent"

// OutcomeKind tells the transport layer how to answer.
type OutcomeKind int

const (
	OutcomeRedirect OutcomeKind = iota
	OutcomeView
	OutcomeStatus
)

// Outcome is a transport-neutral result of a flow step.
type Outcome struct {
	Kind     OutcomeKind
	Location string
	View     string
	Status   string
}

// Redirect builds a redirect outcome.
func Redirect(location string) Outcome { return Outcome{Kind: OutcomeRedirect, Location: location} }

// Notifier delivers auth links to principals. Implementations own the transport.
type Notifier interface {
	SendVerificationLink(ctx context.Context, guard Guard, principal *models.Principal, link string) error
	SendPasswordResetLink(ctx context.Context, guard Guard, email, link string) error
}

// VerificationFlow drives the Unverified to Verified transition for one guard.
type VerificationFlow struct {
	guard      Guard
	principals PrincipalStore
	signer     *LinkSigner
	notifier   Notifier
	events     *events.Dispatcher
	ttl        time.Duration
	clock      func() time.Time
	log        *zap.Logger
}

// VerificationConfig wires a VerificationFlow.
type VerificationConfig struct {
	Principals PrincipalStore
	Signer     *LinkSigner
	Notifier   Notifier
	Events     *events.Dispatcher
	TTL        time.Duration
	Clock      func() time.Time
}

// NewVerificationFlow constructs a flow.
func NewVerificationFlow(guard Guard, cfg VerificationConfig) (*VerificationFlow, error) {
	if cfg.Principals == nil || cfg.Signer == nil || cfg.Notifier == nil {
		return nil, errors.New("verification flow: principals, signer and notifier are required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultVerificationTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &VerificationFlow{
		guard:      guard,
		principals: cfg.Principals,
		signer:     cfg.Signer,
		notifier:   cfg.Notifier,
		events:     cfg.Events,
		ttl:        cfg.TTL,
		clock:      cfg.Clock,
		log:        logger.WithGuard("verification", string(guard.Name)),
	}, nil
}

// Show answers the verification notice route.
func (f *VerificationFlow) Show(sess *session.Session, principal *models.Principal) Outcome {
	if principal.HasVerifiedEmail() {
		return Redirect(Intended(sess, f.guard.HomePath))
	}
	return Outcome{Kind: OutcomeView, View: string(f.guard.Name) + ".verify-email"}
}

// VerifiedRedirect is where a successful verification lands.
func (f *VerificationFlow) VerifiedRedirect() string {
	return f.guard.HomePath + "?verified=1"
}

// Verify validates link for principal. A link for another principal or a
// stale email is Forbidden even when correctly signed and unexpired. The first
// success stamps EmailVerifiedAt and emits Verified; later ones change nothing.
func (f *VerificationFlow) Verify(ctx context.Context, sess *session.Session, principal *models.Principal, link SignedLink) (Outcome, error) {
	outcome, err := f.verify(ctx, principal, link)
	metrics.Verifications.WithLabelValues(string(f.guard.Name), outcome).Inc()
	if err != nil {
		return Outcome{}, err
	}
	return Redirect(Intended(sess, f.VerifiedRedirect())), nil
}

func (f *VerificationFlow) verify(ctx context.Context, principal *models.Principal, link SignedLink) (string, error) {
	if link.Purpose != PurposeEmailVerification || link.Guard != f.guard.Name {
		return "invalid", ErrLinkInvalid
	}
	if err := f.signer.Verify(link); err != nil {
		if errors.Is(err, ErrLinkExpired) {
			return "expired", err
		}
		return "invalid", err
	}

	idOK := crypto.Equal(link.PrincipalID, principal.ID)
	hashOK := crypto.Equal(link.Hash, crypto.SHA1Hex(principal.Email))
	if !idOK || !hashOK {
		f.log.Warn("verification link does not match principal", zap.String("principal_id", principal.ID))
		return "forbidden", apperrors.ErrForbidden
	}

	if principal.HasVerifiedEmail() {
		return "already_verified", nil
	}

	var firstVerification bool
	updated, err := f.principals.Update(ctx, f.guard.Partition, principal.ID, func(p *models.Principal) error {
		if p.EmailVerifiedAt != nil {
			return nil
		}
		if !crypto.Equal(crypto.SHA1Hex(p.Email), link.Hash) {
			return apperrors.ErrForbidden
		}
		now := f.clock()
		p.EmailVerifiedAt = &now
		firstVerification = true
		return nil
	})
	if errors.Is(err, apperrors.ErrForbidden) {
		return "forbidden", err
	}
	if err != nil {
		return "error", fmt.Errorf("verification flow: mark verified: %w", err)
	}
	*principal = *updated

	if !firstVerification {
		return "already_verified", nil
	}
	f.log.Info("email verified", zap.String("principal_id", principal.ID))
	_ = f.events.Dispatch(ctx, events.Event{
		Name:        events.Verified,
		Guard:       string(f.guard.Name),
		PrincipalID: principal.ID,
		Email:       principal.Email,
		OccurredAt:  f.clock(),
	})
	return "verified", nil
}

// Resend dispatches a fresh link for an unverified principal.
func (f *VerificationFlow) Resend(ctx context.Context, principal *models.Principal) (Outcome, error) {
	if principal.HasVerifiedEmail() {
		return Redirect(f.guard.HomePath), nil
	}
	if err := f.SendLink(ctx, principal); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeStatus, Status: StatusVerificationLinkSent}, nil
}

// SendLink issues a link bound to the principal's current email and hands it
// to the notifier.
func (f *VerificationFlow) SendLink(ctx context.Context, principal *models.Principal) error {
	link, err := f.IssueLink(principal)
	if err != nil {
		return err
	}
	url, err := f.signer.URL(link)
	if err != nil {
		return err
	}
	if err := f.notifier.SendVerificationLink(ctx, f.guard, principal, url); err != nil {
		return fmt.Errorf("verification flow: notify: %w", err)
	}
	return nil
}

// IssueLink signs a verification link for principal.
func (f *VerificationFlow) IssueLink(principal *models.Principal) (SignedLink, error) {
	return f.signer.Issue(PurposeEmailVerification, f.guard, principal.ID, crypto.SHA1Hex(principal.Email), f.ttl)
}
