package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/cache"
	"github.com/charlesng35/multiguard/internal/events"
	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/pkg/crypto"
	apperrors "github.com/charlesng35/multiguard/pkg/errors"
	"github.com/charlesng35/multiguard/pkg/logger"
)

const (
	// StatusResetLinkSent is returned for every forgot-password request that
	// was not throttled, whether or not the email exists.
	StatusResetLinkSent = "reset-link-sent"
	// StatusPasswordReset is returned after a successful reset.
	StatusPasswordReset = "password-reset"

	resetTokenLength  = 64
	resetThrottleKey  = "password-reset:"
	defaultResetTTL   = 60 * time.Minute
	defaultResetDelay = 60 * time.Second
)

// ErrResetThrottled is returned when a reset link was requested too recently.
var ErrResetThrottled = apperrors.ErrRateLimit.WithMessage("Please wait before retrying.").WithField("email")

// PasswordBrokerConfig wires a PasswordBroker.
type PasswordBrokerConfig struct {
	DB         *gorm.DB
	Principals PrincipalStore
	Cache      cache.Store
	Notifier   Notifier
	Events     *events.Dispatcher
	BaseURL    string
	TTL        time.Duration
	Throttle   time.Duration
	Clock      func() time.Time
}

// PasswordBroker issues and redeems password reset tokens for one guard.
// Only the sha256 of a token is stored.
type PasswordBroker struct {
	guard      Guard
	db         *gorm.DB
	principals PrincipalStore
	cache      cache.Store
	notifier   Notifier
	events     *events.Dispatcher
	baseURL    string
	ttl        time.Duration
	throttle   time.Duration
	clock      func() time.Time
	log        *zap.Logger
}

// ResetRequest is a submitted reset form.
type ResetRequest struct {
	Token    string
	Email    string
	Password string
}

// NewPasswordBroker constructs a broker.
func NewPasswordBroker(guard Guard, cfg PasswordBrokerConfig) (*PasswordBroker, error) {
	if cfg.DB == nil || cfg.Principals == nil || cfg.Cache == nil || cfg.Notifier == nil {
		return nil, errors.New("password broker: db, principals, cache and notifier are required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultResetTTL
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = defaultResetDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &PasswordBroker{
		guard:      guard,
		db:         cfg.DB,
		principals: cfg.Principals,
		cache:      cfg.Cache,
		notifier:   cfg.Notifier,
		events:     cfg.Events,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		ttl:        cfg.TTL,
		throttle:   cfg.Throttle,
		clock:      cfg.Clock,
		log:        logger.WithGuard("passwords", string(guard.Name)),
	}, nil
}

// SendResetLink mails a reset link when email belongs to this guard. The
// answer is the same for unknown addresses.
func (b *PasswordBroker) SendResetLink(ctx context.Context, email string) (string, error) {
	email = NormalizeEmail(email)
	throttleKey := resetThrottleKey + string(b.guard.Name) + "|" + email

	if _, recent, err := b.cache.Get(ctx, throttleKey); err != nil {
		return "", fmt.Errorf("password broker: read throttle: %w", err)
	} else if recent {
		return "", ErrResetThrottled
	}
	if err := b.cache.Set(ctx, throttleKey, []byte("1"), b.throttle); err != nil {
		return "", fmt.Errorf("password broker: write throttle: %w", err)
	}

	principal, err := b.principals.FindByEmail(ctx, b.guard.Partition, email)
	if errors.Is(err, ErrPrincipalNotFound) {
		b.log.Debug("reset requested for unknown email")
		return StatusResetLinkSent, nil
	}
	if err != nil {
		return "", err
	}

	token, err := b.createToken(ctx, principal.Email)
	if err != nil {
		return "", err
	}
	if err := b.notifier.SendPasswordResetLink(ctx, b.guard, principal.Email, b.ResetURL(token, principal.Email)); err != nil {
		return "", fmt.Errorf("password broker: notify: %w", err)
	}
	return StatusResetLinkSent, nil
}

// ResetURL renders the link a principal follows to reset their password.
func (b *PasswordBroker) ResetURL(token, email string) string {
	return b.baseURL + b.guard.Path("/reset-password/"+url.PathEscape(token)) + "?email=" + url.QueryEscape(email)
}

// Reset redeems a token. Unknown, mismatched and expired tokens all yield
// ErrResetTokenInvalid. Success stores the new hash, rotates the remember
// token so existing remember cookies stop working, and deletes the token.
func (b *PasswordBroker) Reset(ctx context.Context, req ResetRequest) (*models.Principal, error) {
	email := NormalizeEmail(req.Email)
	record, err := b.findToken(ctx, email)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Expired(b.clock()) || !crypto.Equal(record.TokenHash, crypto.SHA256Hex(req.Token)) {
		return nil, ErrResetTokenInvalid
	}

	principal, err := b.principals.FindByEmail(ctx, b.guard.Partition, email)
	if errors.Is(err, ErrPrincipalNotFound) {
		return nil, ErrResetTokenInvalid
	}
	if err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("password broker: hash password: %w", err)
	}
	remember, err := crypto.RandomString(rememberTokenLength)
	if err != nil {
		return nil, fmt.Errorf("password broker: generate remember token: %w", err)
	}

	updated, err := b.principals.Update(ctx, b.guard.Partition, principal.ID, func(p *models.Principal) error {
		p.Password = hash
		p.RememberToken = &remember
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("password broker: update password: %w", err)
	}

	if err := b.deleteToken(ctx, email); err != nil {
		b.log.Warn("failed to delete used reset token", zap.Error(err))
	}

	b.log.Info("password reset", zap.String("principal_id", updated.ID))
	_ = b.events.Dispatch(ctx, events.Event{
		Name:        events.PasswordReset,
		Guard:       string(b.guard.Name),
		PrincipalID: updated.ID,
		Email:       updated.Email,
		OccurredAt:  b.clock(),
	})
	return updated, nil
}

// createToken stores a fresh token for email, replacing any previous one,
// and returns the plaintext.
func (b *PasswordBroker) createToken(ctx context.Context, email string) (string, error) {
	token, err := crypto.RandomString(resetTokenLength)
	if err != nil {
		return "", fmt.Errorf("password broker: generate token: %w", err)
	}
	record := &models.PasswordResetToken{
		Guard:     string(b.guard.Name),
		Email:     email,
		TokenHash: crypto.SHA256Hex(token),
		ExpiresAt: b.clock().Add(b.ttl),
	}
	err = b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guard = ? AND email = ?", record.Guard, email).Delete(&models.PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return "", fmt.Errorf("password broker: store token: %w", err)
	}
	return token, nil
}

func (b *PasswordBroker) findToken(ctx context.Context, email string) (*models.PasswordResetToken, error) {
	var record models.PasswordResetToken
	err := b.db.WithContext(ctx).
		Where("guard = ? AND email = ?", string(b.guard.Name), email).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("password broker: load token: %w", err)
	}
	return &record, nil
}

func (b *PasswordBroker) deleteToken(ctx context.Context, email string) error {
	return b.db.WithContext(ctx).
		Where("guard = ? AND email = ?", string(b.guard.Name), email).
		Delete(&models.PasswordResetToken{}).Error
}

// PruneExpiredResetTokens removes expired reset tokens for every guard.
func PruneExpiredResetTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&models.PasswordResetToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("password broker: prune tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
