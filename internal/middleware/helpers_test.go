package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/cache"
	"github.com/charlesng35/multiguard/internal/database/testutil"
	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/internal/session"
	"github.com/charlesng35/multiguard/pkg/crypto"
)

type nopNotifier struct{}

func (nopNotifier) SendVerificationLink(context.Context, auth.Guard, *models.Principal, string) error {
	return nil
}

func (nopNotifier) SendPasswordResetLink(context.Context, auth.Guard, string, string) error {
	return nil
}

type testEnv struct {
	router   *gin.Engine
	manager  *auth.Manager
	sessions *session.Manager
	cache    *cache.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	principals, err := auth.NewGormPrincipalStore(db, nil)
	require.NoError(t, err)
	registry, err := auth.NewRegistry(auth.DefaultGuards()...)
	require.NoError(t, err)

	store := cache.NewMemoryStore()
	manager, err := auth.NewManager(registry, auth.Config{
		AppKey: []byte("middleware-test-key-0123456789ab"),
		KDF:    crypto.Argon2Parameters{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32},
	}, auth.Dependencies{
		DB:         db,
		Principals: principals,
		Cache:      store,
		Notifier:   nopNotifier{},
	})
	require.NoError(t, err)

	sessions := session.NewManager(session.NewCacheHandler(store), session.Config{})

	router := gin.New()
	router.Use(StartSession(sessions))
	router.POST("/_test/login/:guard/:id", func(c *gin.Context) {
		sess, _ := CurrentSession(c)
		svc := manager.MustGuard(auth.GuardName(c.Param("guard")))
		if _, err := svc.Session.LoginUsingID(c.Request.Context(), sess, c.Param("id"), false); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		if c.Query("confirm") == "1" {
			svc.Confirmation.Mark(sess)
		}
		c.Status(http.StatusNoContent)
	})

	return &testEnv{router: router, manager: manager, sessions: sessions, cache: store}
}

func (e *testEnv) createPrincipal(t *testing.T, guard auth.GuardName, email string, verified bool) *models.Principal {
	t.Helper()
	hash, err := crypto.HashPassword("password1")
	require.NoError(t, err)
	principal := &models.Principal{Name: "Test", Email: email, Password: hash}
	if verified {
		now := time.Now()
		principal.EmailVerifiedAt = &now
	}
	require.NoError(t, e.manager.Principals().Create(context.Background(), e.manager.MustGuard(guard).Guard.Partition, principal))
	return principal
}

// client keeps cookies between requests like a browser would.
type client struct {
	t       *testing.T
	router  *gin.Engine
	cookies map[string]*http.Cookie
}

func (e *testEnv) client(t *testing.T) *client {
	return &client{t: t, router: e.router, cookies: make(map[string]*http.Cookie)}
}

func (c *client) do(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		if cookie.MaxAge < 0 {
			delete(c.cookies, cookie.Name)
			continue
		}
		c.cookies[cookie.Name] = cookie
	}
	return rec
}

func (c *client) loginAs(guard auth.GuardName, id string, confirm bool) {
	c.t.Helper()
	path := "/_test/login/" + string(guard) + "/" + id
	if confirm {
		path += "?confirm=1"
	}
	rec := c.do(http.MethodPost, path, nil)
	require.Equal(c.t, http.StatusNoContent, rec.Code)
}

var jsonHeaders = map[string]string{"Accept": "application/json"}

func loadSession(t *testing.T, env *testEnv, c *client) *session.Session {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	sess, err := env.sessions.Start(context.Background(), req)
	require.NoError(t, err)
	return sess
}
