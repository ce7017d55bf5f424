package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/cache"
	"github.com/charlesng35/multiguard/internal/database/testutil"
	"github.com/charlesng35/multiguard/internal/events"
	"github.com/charlesng35/multiguard/internal/session"
	"github.com/charlesng35/multiguard/pkg/crypto"
	"github.com/charlesng35/multiguard/pkg/mail"
)

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

type serviceFixture struct {
	db       *gorm.DB
	mailer   *recordingMailer
	manager  *auth.Manager
	accounts *AccountService
	events   *events.Dispatcher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := func() time.Time { return time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC) }

	principals, err := auth.NewGormPrincipalStore(db, clock)
	require.NoError(t, err)
	registry, err := auth.NewRegistry(auth.DefaultGuards()...)
	require.NoError(t, err)

	mailer := &recordingMailer{}
	notifier, err := NewMailNotifier(mailer, "Shop")
	require.NoError(t, err)

	dispatcher := events.NewDispatcher()
	manager, err := auth.NewManager(registry, auth.Config{
		AppKey:  []byte("services-test-app-key-0123456789"),
		BaseURL: "http://shop.test",
		KDF:     crypto.Argon2Parameters{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32},
	}, auth.Dependencies{
		DB:         db,
		Principals: principals,
		Cache:      cache.NewMemoryStore(cache.WithClock(clock)),
		Notifier:   notifier,
		Events:     dispatcher,
		Clock:      clock,
	})
	require.NoError(t, err)
	RegisterListeners(dispatcher, manager)

	accounts, err := NewAccountService(manager)
	require.NoError(t, err)

	return &serviceFixture{db: db, mailer: mailer, manager: manager, accounts: accounts, events: dispatcher}
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	id, err := crypto.RandomString(40)
	require.NoError(t, err)
	return session.New(id, nil)
}
