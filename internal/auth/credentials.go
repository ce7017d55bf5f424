package auth

import (
	"context"
	"errors"

	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/pkg/crypto"
	apperrors "github.com/charlesng35/multiguard/pkg/errors"
)

// CredentialStore looks principals up per guard and checks passwords.
type CredentialStore struct {
	principals PrincipalStore
}

// NewCredentialStore wraps a PrincipalStore.
func NewCredentialStore(principals PrincipalStore) *CredentialStore {
	return &CredentialStore{principals: principals}
}

// FindByEmail returns ErrPrincipalNotFound when the guard's partition has no such email.
func (c *CredentialStore) FindByEmail(ctx context.Context, guard Guard, email string) (*models.Principal, error) {
	return c.principals.FindByEmail(ctx, guard.Partition, email)
}

// VerifyPassword reports whether plaintext matches the stored hash.
func (c *CredentialStore) VerifyPassword(principal *models.Principal, plaintext string) bool {
	if principal == nil || principal.Password == "" {
		crypto.BurnPasswordCheck(plaintext)
		return false
	}
	return crypto.VerifyPassword(principal.Password, plaintext)
}

// Validate returns the principal for a correct email and password. Unknown
// emails and wrong passwords both yield ErrInvalidCredentials after the same
// amount of hashing work.
func (c *CredentialStore) Validate(ctx context.Context, guard Guard, email, password string) (*models.Principal, error) {
	principal, err := c.FindByEmail(ctx, guard, email)
	if errors.Is(err, ErrPrincipalNotFound) {
		crypto.BurnPasswordCheck(password)
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !c.VerifyPassword(principal, password) {
		return nil, apperrors.ErrInvalidCredentials
	}
	return principal, nil
}
