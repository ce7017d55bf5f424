package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/multiguard/internal/events"
	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/internal/session"
	"github.com/charlesng35/multiguard/pkg/crypto"
	apperrors "github.com/charlesng35/multiguard/pkg/errors"
)

func TestLoginUnderOneGuardNeverAuthenticatesAnother(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, name := range []GuardName{GuardUser, GuardAdmin, GuardSeller} {
		principal := f.createPrincipal(t, name, string(name)+"@x.com", "secret-1", true)
		sess := newTestSession(t, nil)
		require.NoError(t, f.guard(name).Session.Login(ctx, sess, principal, true))

		for _, other := range []GuardName{GuardUser, GuardAdmin, GuardSeller} {
			resolved, err := f.guard(other).Session.Resolve(ctx, sess)
			if other == name {
				require.NoError(t, err)
				require.Equal(t, principal.ID, resolved.ID)
				continue
			}
			require.ErrorIs(t, err, apperrors.ErrUnauthenticated, "%s login leaked into %s", name, other)
		}
	}
}

func TestLoginRegeneratesSessionID(t *testing.T) {
	f := newFixture(t)
	principal := f.createPrincipal(t, GuardUser, "u@x.com", "secret-1", true)
	sess := newTestSession(t, nil)
	before := sess.ID()

	require.NoError(t, f.guard(GuardUser).Session.Login(context.Background(), sess, principal, false))
	require.NotEqual(t, before, sess.ID())

	id, ok := sess.Get("user.login")
	require.True(t, ok)
	require.Equal(t, principal.ID, id)
	require.Empty(t, sess.QueuedCookies())
	require.Len(t, f.eventsNamed(events.Login), 1)
}

func TestGuardsCoexistInOneSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.createPrincipal(t, GuardUser, "both@x.com", "secret-1", true)
	admin := f.createPrincipal(t, GuardAdmin, "both@x.com", "secret-2", true)

	sess := newTestSession(t, nil)
	require.NoError(t, f.guard(GuardUser).Session.Login(ctx, sess, user, false))
	require.NoError(t, f.guard(GuardAdmin).Session.Login(ctx, sess, admin, false))
	f.guard(GuardAdmin).Confirmation.Mark(sess)

	require.NoError(t, f.guard(GuardUser).Session.Logout(ctx, sess))

	_, err := f.guard(GuardUser).Session.Resolve(ctx, sess)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	resolved, err := f.guard(GuardAdmin).Session.Resolve(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, admin.ID, resolved.ID)
	require.True(t, f.guard(GuardAdmin).Confirmation.IsConfirmed(sess))
	require.Len(t, f.eventsNamed(events.Logout), 1)
}

func rememberCookie(t *testing.T, sess *session.Session, name string) string {
	t.Helper()
	for _, c := range sess.QueuedCookies() {
		if c.Name == name {
			require.Greater(t, c.MaxAge, 0)
			require.True(t, c.HttpOnly)
			return c.Value
		}
	}
	t.Fatalf("cookie %s was not queued", name)
	return ""
}

func TestRememberCookieRestoresSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seller := f.guard(GuardSeller)
	principal := f.createPrincipal(t, GuardSeller, "s@x.com", "secret-1", true)

	sess := newTestSession(t, nil)
	require.NoError(t, seller.Session.Login(ctx, sess, principal, true))
	value := rememberCookie(t, sess, "remember_seller")

	stored := f.reload(t, GuardSeller, principal.ID)
	require.NotNil(t, stored.RememberToken)
	require.Len(t, *stored.RememberToken, 60)

	fresh := newTestSession(t, map[string]string{"remember_seller": value})
	before := fresh.ID()
	resolved, err := seller.Session.Resolve(ctx, fresh)
	require.NoError(t, err)
	require.Equal(t, principal.ID, resolved.ID)
	require.NotEqual(t, before, fresh.ID())

	id, ok := seller.Session.ID(fresh)
	require.True(t, ok)
	require.Equal(t, principal.ID, id)

	remembered := f.eventsNamed(events.Login)
	require.True(t, remembered[len(remembered)-1].Remember)

	other := newTestSession(t, map[string]string{"remember_seller": value})
	_, err = f.guard(GuardUser).Session.Resolve(ctx, other)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestRememberCookieDiesWithPasswordChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.guard(GuardUser)
	principal := f.createPrincipal(t, GuardUser, "u@x.com", "secret-1", true)

	sess := newTestSession(t, nil)
	require.NoError(t, user.Session.Login(ctx, sess, principal, true))
	value := rememberCookie(t, sess, "remember_user")

	newHash, err := crypto.HashPassword("secret-2")
	require.NoError(t, err)
	_, err = f.store.Update(ctx, models.PartitionUsers, principal.ID, func(p *models.Principal) error {
		p.Password = newHash
		return nil
	})
	require.NoError(t, err)

	fresh := newTestSession(t, map[string]string{"remember_user": value})
	_, err = user.Session.Resolve(ctx, fresh)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)

	queued := fresh.QueuedCookies()
	require.Len(t, queued, 1)
	require.Equal(t, "remember_user", queued[0].Name)
	require.Less(t, queued[0].MaxAge, 0)
}

func TestRememberCookieRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	sess := newTestSession(t, map[string]string{"remember_admin": "not-a-cookie"})
	_, err := f.guard(GuardAdmin).Session.Resolve(context.Background(), sess)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestLogoutRevokesRememberToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.guard(GuardAdmin)
	principal := f.createPrincipal(t, GuardAdmin, "a@x.com", "secret-1", true)

	sess := newTestSession(t, nil)
	require.NoError(t, admin.Session.Login(ctx, sess, principal, true))
	value := rememberCookie(t, sess, "remember_admin")
	admin.Confirmation.Mark(sess)
	before := sess.ID()

	require.NoError(t, admin.Session.Logout(ctx, sess))
	require.NotEqual(t, before, sess.ID())
	_, bound := sess.Get("admin.login")
	require.False(t, bound)
	_, confirmed := sess.Get("admin.auth.password_confirmed_at")
	require.False(t, confirmed)

	require.Nil(t, f.reload(t, GuardAdmin, principal.ID).RememberToken)

	replay := newTestSession(t, map[string]string{"remember_admin": value})
	_, err := admin.Session.Resolve(ctx, replay)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestResolveDropsBindingForDeletedPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	principal := f.createPrincipal(t, GuardUser, "gone@x.com", "secret-1", true)

	sess := newTestSession(t, nil)
	require.NoError(t, f.guard(GuardUser).Session.Login(ctx, sess, principal, false))
	require.NoError(t, f.store.Delete(ctx, models.PartitionUsers, principal.ID))

	_, err := f.guard(GuardUser).Session.Resolve(ctx, sess)
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
	_, bound := sess.Get("user.login")
	require.False(t, bound)
}

func TestConfirmationExpiresAtTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gate := f.guard(GuardAdmin).Confirmation
	principal := f.createPrincipal(t, GuardAdmin, "a@x.com", "secret-1", true)
	sess := newTestSession(t, nil)

	require.False(t, gate.IsConfirmed(sess))
	require.ErrorIs(t, gate.Confirm(ctx, sess, principal, "wrong-1"), apperrors.ErrInvalidPassword)
	require.False(t, gate.IsConfirmed(sess))

	require.NoError(t, gate.Confirm(ctx, sess, principal, "secret-1"))
	require.True(t, gate.IsConfirmed(sess))

	f.clock.Advance(10800*time.Second - time.Second)
	require.True(t, gate.IsConfirmed(sess))

	f.clock.Advance(time.Second)
	require.True(t, gate.IsConfirmed(sess))

	f.clock.Advance(time.Second)
	require.False(t, gate.IsConfirmed(sess))

	require.False(t, f.guard(GuardUser).Confirmation.IsConfirmed(sess))
}
