package auth

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/cache"
	"github.com/charlesng35/multiguard/internal/database/testutil"
	"github.com/charlesng35/multiguard/internal/events"
	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/internal/session"
	"github.com/charlesng35/multiguard/pkg/crypto"
)

const testBaseURL = "http://localhost:8080"

var testKDF = crypto.Argon2Parameters{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32}

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

type sentMail struct {
	guard GuardName
	email string
	link  string
}

type recordingNotifier struct {
	mu            sync.Mutex
	verifications []sentMail
	resets        []sentMail
}

func (n *recordingNotifier) SendVerificationLink(_ context.Context, guard Guard, principal *models.Principal, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications = append(n.verifications, sentMail{guard: guard.Name, email: principal.Email, link: link})
	return nil
}

func (n *recordingNotifier) SendPasswordResetLink(_ context.Context, guard Guard, email, link string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, sentMail{guard: guard.Name, email: email, link: link})
	return nil
}

// countingStore records how often principals are looked up by email.
type countingStore struct {
	PrincipalStore
	mu          sync.Mutex
	emailLookup int
}

func (s *countingStore) FindByEmail(ctx context.Context, partition models.Partition, email string) (*models.Principal, error) {
	s.mu.Lock()
	s.emailLookup++
	s.mu.Unlock()
	return s.PrincipalStore.FindByEmail(ctx, partition, email)
}

func (s *countingStore) lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emailLookup
}

type fixture struct {
	db       *gorm.DB
	clock    *testClock
	store    *countingStore
	cache    *cache.MemoryStore
	notifier *recordingNotifier
	manager  *Manager

	mu     sync.Mutex
	events []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)}

	gormStore, err := NewGormPrincipalStore(db, clock.Now)
	require.NoError(t, err)

	registry, err := NewRegistry(DefaultGuards()...)
	require.NoError(t, err)

	f := &fixture{
		db:       db,
		clock:    clock,
		store:    &countingStore{PrincipalStore: gormStore},
		cache:    cache.NewMemoryStore(cache.WithClock(clock.Now)),
		notifier: &recordingNotifier{},
	}

	dispatcher := events.NewDispatcher()
	for _, name := range []events.Name{events.Registered, events.Verified, events.PasswordReset, events.Login, events.Logout, events.Lockout, events.Failed} {
		dispatcher.Listen(name, func(_ context.Context, e events.Event) error {
			f.mu.Lock()
			f.events = append(f.events, e)
			f.mu.Unlock()
			return nil
		})
	}

	f.manager, err = NewManager(registry, Config{
		AppKey:  []byte("0123456789abcdef0123456789abcdef"),
		BaseURL: testBaseURL,
		KDF:     testKDF,
	}, Dependencies{
		DB:         db,
		Principals: f.store,
		Cache:      f.cache,
		Notifier:   f.notifier,
		Events:     dispatcher,
		Clock:      clock.Now,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) guard(name GuardName) *GuardServices {
	return f.manager.MustGuard(name)
}

func (f *fixture) eventsNamed(name events.Name) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) createPrincipal(t *testing.T, guard GuardName, email, password string, verified bool) *models.Principal {
	t.Helper()

	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)

	principal := &models.Principal{Name: "Test", Email: email, Password: hash}
	if verified {
		at := f.clock.Now()
		principal.EmailVerifiedAt = &at
	}
	require.NoError(t, f.store.Create(context.Background(), f.guard(guard).Guard.Partition, principal))
	return principal
}

func (f *fixture) reload(t *testing.T, guard GuardName, id string) *models.Principal {
	t.Helper()
	principal, err := f.store.FindByID(context.Background(), f.guard(guard).Guard.Partition, id)
	require.NoError(t, err)
	return principal
}

func newTestSession(t *testing.T, cookies map[string]string) *session.Session {
	t.Helper()
	id, err := crypto.RandomString(40)
	require.NoError(t, err)
	return session.New(id, cookies)
}

// linkFromURL rebuilds a signed link from a rendered verification URL.
func linkFromURL(t *testing.T, guard GuardName, raw string) SignedLink {
	t.Helper()
	parsed, err := url.Parse(raw)
	require.NoError(t, err)

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	require.GreaterOrEqual(t, len(segments), 3)
	id := segments[len(segments)-2]
	hash := segments[len(segments)-1]
	return ParseLink(PurposeEmailVerification, guard, id, hash, parsed.Query())
}
