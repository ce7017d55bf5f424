package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/events"
	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/internal/session"
	"github.com/charlesng35/multiguard/pkg/crypto"
	apperrors "github.com/charlesng35/multiguard/pkg/errors"
	"github.com/charlesng35/multiguard/pkg/logger"
)

const (
	// StatusProfileUpdated is flashed after a profile change.
	StatusProfileUpdated = "profile-updated"
	// StatusPasswordUpdated is flashed after a password change.
	StatusPasswordUpdated = "password-updated"
)

var (
	// ErrEmailTaken is the field error for a duplicate email within a guard.
	ErrEmailTaken = apperrors.NewValidation("email", "The email has already been taken.")
	// ErrCurrentPasswordIncorrect rejects a wrong current_password.
	ErrCurrentPasswordIncorrect = apperrors.NewValidation("current_password", "The password is incorrect.")
	// ErrPasswordIncorrect rejects a wrong password on account deletion.
	ErrPasswordIncorrect = apperrors.NewValidation("password", "The password is incorrect.")
)

// RegisterInput is a registration form.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// ProfileInput is a profile update form.
type ProfileInput struct {
	Name  string
	Email string
}

// AccountService implements registration and self-service account changes
// for any guard.
type AccountService struct {
	manager *auth.Manager
	events  *events.Dispatcher
}

// NewAccountService constructs an AccountService.
func NewAccountService(manager *auth.Manager) (*AccountService, error) {
	if manager == nil {
		return nil, errors.New("account service: auth manager is required")
	}
	return &AccountService{manager: manager, events: manager.Events()}, nil
}

// Register creates a principal in the guard's partition, emits Registered and
// logs the new principal in.
func (s *AccountService) Register(ctx context.Context, guard auth.GuardName, sess *session.Session, input RegisterInput) (*models.Principal, error) {
	svc, err := s.guard(guard)
	if err != nil {
		return nil, err
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("account service: hash password: %w", err)
	}
	principal := &models.Principal{
		Name:     strings.TrimSpace(input.Name),
		Email:    input.Email,
		Password: hash,
	}
	if err := s.manager.Principals().Create(ctx, svc.Guard.Partition, principal); err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("account service: create principal: %w", err)
	}

	logger.WithGuard("accounts", string(guard)).Info("principal registered", zap.String("principal_id", principal.ID))
	_ = s.events.Dispatch(ctx, events.Event{
		Name:        events.Registered,
		Guard:       string(guard),
		PrincipalID: principal.ID,
		Email:       principal.Email,
	})

	if err := svc.Session.Login(ctx, sess, principal, false); err != nil {
		return nil, err
	}
	return principal, nil
}

// UpdateProfile changes name and email. A new email clears the verified state.
func (s *AccountService) UpdateProfile(ctx context.Context, guard auth.GuardName, principalID string, input ProfileInput) (*models.Principal, error) {
	svc, err := s.guard(guard)
	if err != nil {
		return nil, err
	}

	updated, err := s.manager.Principals().Update(ctx, svc.Guard.Partition, principalID, func(p *models.Principal) error {
		p.Name = strings.TrimSpace(input.Name)
		email := auth.NormalizeEmail(input.Email)
		if email != p.Email {
			p.Email = email
			p.EmailVerifiedAt = nil
		}
		return nil
	})
	if errors.Is(err, auth.ErrEmailTaken) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("account service: update profile: %w", err)
	}
	return updated, nil
}

// UpdatePassword replaces the password after checking the current one. The
// new hash invalidates every outstanding remember cookie.
func (s *AccountService) UpdatePassword(ctx context.Context, guard auth.GuardName, principal *models.Principal, current, password string) error {
	svc, err := s.guard(guard)
	if err != nil {
		return err
	}
	if !s.manager.Credentials().VerifyPassword(principal, current) {
		return ErrCurrentPasswordIncorrect
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("account service: hash password: %w", err)
	}
	updated, err := s.manager.Principals().Update(ctx, svc.Guard.Partition, principal.ID, func(p *models.Principal) error {
		p.Password = hash
		return nil
	})
	if err != nil {
		return fmt.Errorf("account service: update password: %w", err)
	}
	*principal = *updated
	return nil
}

// DeleteAccount logs the principal out of this guard and removes it.
func (s *AccountService) DeleteAccount(ctx context.Context, guard auth.GuardName, sess *session.Session, principal *models.Principal, password string) error {
	svc, err := s.guard(guard)
	if err != nil {
		return err
	}
	if !s.manager.Credentials().VerifyPassword(principal, password) {
		return ErrPasswordIncorrect
	}
	if err := svc.Session.Logout(ctx, sess); err != nil {
		return err
	}
	if err := s.manager.Principals().Delete(ctx, svc.Guard.Partition, principal.ID); err != nil {
		return fmt.Errorf("account service: delete principal: %w", err)
	}
	logger.WithGuard("accounts", string(guard)).Info("principal deleted", zap.String("principal_id", principal.ID))
	return nil
}

func (s *AccountService) guard(name auth.GuardName) (*auth.GuardServices, error) {
	svc, ok := s.manager.Guard(name)
	if !ok {
		return nil, fmt.Errorf("account service: unknown guard %q", name)
	}
	return svc, nil
}

// RegisterListeners subscribes the account side effects to dispatcher:
// a freshly registered, unverified principal receives a verification link.
func RegisterListeners(dispatcher *events.Dispatcher, manager *auth.Manager) {
	dispatcher.Listen(events.Registered, func(ctx context.Context, event events.Event) error {
		svc, ok := manager.Guard(auth.GuardName(event.Guard))
		if !ok {
			return fmt.Errorf("unknown guard %q", event.Guard)
		}
		principal, err := manager.Principals().FindByID(ctx, svc.Guard.Partition, event.PrincipalID)
		if err != nil {
			return err
		}
		if principal.HasVerifiedEmail() {
			return nil
		}
		return svc.Verification.SendLink(ctx, principal)
	})
}
