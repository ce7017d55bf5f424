package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/multiguard/pkg/errors"
)

func TestValidateFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createPrincipal(t, GuardAdmin, "a@x.com", "secret-1", true)
	admin := f.guard(GuardAdmin).Guard

	_, unknownErr := f.manager.Credentials().Validate(ctx, admin, "nobody@x.com", "secret-1")
	_, wrongErr := f.manager.Credentials().Validate(ctx, admin, "a@x.com", "wrong-1")

	var unknown, wrong *apperrors.AppError
	require.True(t, errors.As(unknownErr, &unknown))
	require.True(t, errors.As(wrongErr, &wrong))
	require.Equal(t, unknown.Code, wrong.Code)
	require.Equal(t, unknown.Message, wrong.Message)
	require.Equal(t, unknown.StatusCode, wrong.StatusCode)
	require.Equal(t, unknown.Field, wrong.Field)

	principal, err := f.manager.Credentials().Validate(ctx, admin, " A@X.com ", "secret-1")
	require.NoError(t, err)
	require.Equal(t, "a@x.com", principal.Email)
}

func TestEmailsAreScopedToTheirPartition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createPrincipal(t, GuardUser, "shared@x.com", "user-pass-1", true)
	f.createPrincipal(t, GuardSeller, "shared@x.com", "seller-pass-1", true)

	_, err := f.manager.Credentials().Validate(ctx, f.guard(GuardUser).Guard, "shared@x.com", "seller-pass-1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	_, err = f.manager.Credentials().Validate(ctx, f.guard(GuardAdmin).Guard, "shared@x.com", "user-pass-1")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	seller, err := f.manager.Credentials().Validate(ctx, f.guard(GuardSeller).Guard, "shared@x.com", "seller-pass-1")
	require.NoError(t, err)
	require.NotEmpty(t, seller.ID)
}
