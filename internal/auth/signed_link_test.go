package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, clock *testClock) *LinkSigner {
	t.Helper()
	registry, err := NewRegistry(DefaultGuards()...)
	require.NoError(t, err)
	signer, err := NewLinkSigner([]byte("link-signing-key"), registry, testBaseURL, clock.Now)
	require.NoError(t, err)
	return signer
}

func TestSignedLinkRoundTrip(t *testing.T) {
	clock := &testClock{current: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	signer := newTestSigner(t, clock)
	seller, _ := signer.registry.Get(GuardSeller)

	link, err := signer.Issue(PurposeEmailVerification, seller, "abc", "hash123", time.Hour)
	require.NoError(t, err)
	require.NoError(t, signer.Verify(link))

	rendered, err := signer.URL(link)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rendered, testBaseURL+"/seller/verify-email/abc/hash123?expires="))
	require.Contains(t, rendered, "&signature=")

	parsed := linkFromURL(t, GuardSeller, rendered)
	require.Equal(t, link, parsed)
}

func TestSignedLinkTamperingIsInvalid(t *testing.T) {
	clock := &testClock{current: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	signer := newTestSigner(t, clock)
	user, _ := signer.registry.Get(GuardUser)

	link, err := signer.Issue(PurposeEmailVerification, user, "abc", "hash123", time.Hour)
	require.NoError(t, err)

	forged := link
	forged.PrincipalID = "def"
	require.ErrorIs(t, signer.Verify(forged), ErrLinkInvalid)

	extended := link
	extended.ExpiresAt = link.ExpiresAt.Add(time.Hour)
	require.ErrorIs(t, signer.Verify(extended), ErrLinkInvalid)

	otherGuard := link
	otherGuard.Guard = GuardAdmin
	require.ErrorIs(t, signer.Verify(otherGuard), ErrLinkInvalid)

	unsigned := link
	unsigned.Signature = ""
	require.ErrorIs(t, signer.Verify(unsigned), ErrLinkInvalid)
}

func TestSignedLinkExpiry(t *testing.T) {
	clock := &testClock{current: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	signer := newTestSigner(t, clock)
	user, _ := signer.registry.Get(GuardUser)

	link, err := signer.Issue(PurposeEmailVerification, user, "abc", "hash123", time.Minute)
	require.NoError(t, err)

	clock.Advance(59 * time.Second)
	require.NoError(t, signer.Verify(link))

	clock.Advance(time.Second)
	require.NoError(t, signer.Verify(link), "a link is still valid at its expires second")

	clock.Advance(time.Second)
	require.ErrorIs(t, signer.Verify(link), ErrLinkExpired)

	link.Signature = strings.Repeat("0", len(link.Signature))
	require.ErrorIs(t, signer.Verify(link), ErrLinkInvalid)
}
