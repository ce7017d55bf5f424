package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/api"
	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/cache"
	sharedtestutil "github.com/charlesng35/multiguard/internal/database/testutil"
	"github.com/charlesng35/multiguard/internal/events"
	"github.com/charlesng35/multiguard/internal/middleware"
	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/internal/services"
	"github.com/charlesng35/multiguard/internal/session"
	"github.com/charlesng35/multiguard/pkg/crypto"
	"github.com/charlesng35/multiguard/pkg/response"
)

// BaseURL is the origin signed links are issued for.
const BaseURL = "http://localhost:8080"

// Clock is a settable time source shared by every component of an Env.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Mail is one captured notification.
type Mail struct {
	Guard auth.GuardName
	To    string
	Link  string
}

// Outbox records verification and reset links instead of mailing them.
type Outbox struct {
	mu            sync.Mutex
	Verifications []Mail
	Resets        []Mail
}

func (o *Outbox) SendVerificationLink(_ context.Context, guard auth.Guard, principal *models.Principal, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Verifications = append(o.Verifications, Mail{Guard: guard.Name, To: principal.Email, Link: link})
	return nil
}

func (o *Outbox) SendPasswordResetLink(_ context.Context, guard auth.Guard, email, link string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Resets = append(o.Resets, Mail{Guard: guard.Name, To: email, Link: link})
	return nil
}

// LastVerification returns the most recent verification mail.
func (o *Outbox) LastVerification(t *testing.T) Mail {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.Verifications, "no verification mail sent")
	return o.Verifications[len(o.Verifications)-1]
}

// LastReset returns the most recent reset mail.
func (o *Outbox) LastReset(t *testing.T) Mail {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.Resets, "no reset mail sent")
	return o.Resets[len(o.Resets)-1]
}

// Env encapsulates a fully-wired router backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Auth     *auth.Manager
	Sessions *session.Manager
	Cache    *cache.MemoryStore
	Clock    *Clock
	Outbox   *Outbox
	Events   []events.Event
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	clock := &Clock{current: time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)}
	env := &Env{T: t, DB: db, Clock: clock, Outbox: &Outbox{}}

	principals, err := auth.NewGormPrincipalStore(db, clock.Now)
	require.NoError(t, err)
	registry, err := auth.NewRegistry(auth.DefaultGuards()...)
	require.NoError(t, err)

	store := cache.NewMemoryStore(cache.WithClock(clock.Now))
	dispatcher := events.NewDispatcher()

	manager, err := auth.NewManager(registry, auth.Config{
		AppKey:  []byte("handler-test-app-key-0123456789a"),
		BaseURL: BaseURL,
		KDF:     crypto.Argon2Parameters{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 32},
	}, auth.Dependencies{
		DB:         db,
		Principals: principals,
		Cache:      store,
		Notifier:   env.Outbox,
		Events:     dispatcher,
		Clock:      clock.Now,
	})
	require.NoError(t, err)

	for _, name := range []events.Name{events.Registered, events.Verified, events.PasswordReset, events.Login, events.Logout, events.Lockout, events.Failed} {
		dispatcher.Listen(name, func(_ context.Context, event events.Event) error {
			env.Events = append(env.Events, event)
			return nil
		})
	}

	accounts, err := services.NewAccountService(manager)
	require.NoError(t, err)
	services.RegisterListeners(dispatcher, manager)

	sessions := session.NewManager(session.NewCacheHandler(store), session.Config{Lifetime: 24 * time.Hour})
	rates, err := middleware.NewRateStore(store)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:        db,
		Auth:      manager,
		Accounts:  accounts,
		Sessions:  sessions,
		RateStore: rates,
	})
	require.NoError(t, err)

	env.Router = router
	env.Auth = manager
	env.Sessions = sessions
	env.Cache = store
	return env
}

// CreatePrincipal inserts a principal into guard's partition with password "password1".
func (e *Env) CreatePrincipal(guard auth.GuardName, email string, verified bool) *models.Principal {
	e.T.Helper()

	hashed, err := crypto.HashPassword("password1")
	require.NoError(e.T, err)

	principal := &models.Principal{Name: "Test " + string(guard), Email: email, Password: hashed}
	if verified {
		now := e.Clock.Now()
		principal.EmailVerifiedAt = &now
	}
	require.NoError(e.T, e.Auth.Principals().Create(context.Background(), e.Auth.MustGuard(guard).Guard.Partition, principal))
	return principal
}

// Reload fetches the stored copy of principal.
func (e *Env) Reload(guard auth.GuardName, id string) *models.Principal {
	e.T.Helper()
	principal, err := e.Auth.Principals().FindByID(context.Background(), e.Auth.MustGuard(guard).Guard.Partition, id)
	require.NoError(e.T, err)
	return principal
}

// EventsNamed returns the recorded events with name.
func (e *Env) EventsNamed(name events.Name) []events.Event {
	var out []events.Event
	for _, event := range e.Events {
		if event.Name == name {
			out = append(out, event)
		}
	}
	return out
}

// Client keeps cookies between requests like a browser would.
type Client struct {
	env     *Env
	JSON    bool
	cookies map[string]*http.Cookie
}

// Browser returns a client that accepts HTML and follows no redirects.
func (e *Env) Browser() *Client {
	return &Client{env: e, cookies: make(map[string]*http.Cookie)}
}

// API returns a client that asks for JSON answers.
func (e *Env) API() *Client {
	return &Client{env: e, JSON: true, cookies: make(map[string]*http.Cookie)}
}

// Cookie returns the stored cookie called name.
func (c *Client) Cookie(name string) (*http.Cookie, bool) {
	cookie, ok := c.cookies[name]
	return cookie, ok
}

// DropCookie forgets a cookie, e.g. to simulate a browser restart.
func (c *Client) DropCookie(name string) {
	delete(c.cookies, name)
}

// Get issues a GET request.
func (c *Client) Get(path string) *httptest.ResponseRecorder {
	return c.Do(http.MethodGet, path, nil)
}

// Do sends fields as a form for browsers and as a JSON object for API clients.
func (c *Client) Do(method, path string, fields map[string]any) *httptest.ResponseRecorder {
	t := c.env.T
	t.Helper()

	var body *bytes.Buffer
	contentType := ""
	switch {
	case fields == nil:
		body = bytes.NewBuffer(nil)
	case c.JSON:
		data, err := json.Marshal(fields)
		require.NoError(t, err)
		body = bytes.NewBuffer(data)
		contentType = "application/json"
	default:
		form := url.Values{}
		for key, value := range fields {
			form.Set(key, toString(value))
		}
		body = bytes.NewBufferString(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.JSON {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "text/html")
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	c.env.Router.ServeHTTP(w, req)

	for _, cookie := range w.Result().Cookies() {
		if cookie.MaxAge < 0 {
			delete(c.cookies, cookie.Name)
			continue
		}
		c.cookies[cookie.Name] = cookie
	}
	return w
}

// Login submits the guard's login form and requires it to succeed.
func (c *Client) Login(guard auth.GuardName, email, password string, remember bool) *httptest.ResponseRecorder {
	t := c.env.T
	t.Helper()
	svc := c.env.Auth.MustGuard(guard)
	w := c.Do(http.MethodPost, svc.Guard.Path("/login"), map[string]any{
		"email":    email,
		"password": password,
		"remember": remember,
	})
	if c.JSON {
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	} else {
		require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	}
	return w
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		data, _ := json.Marshal(v)
		return strings.Trim(string(data), `"`)
	}
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// View decodes a page response.
func View(t *testing.T, w *httptest.ResponseRecorder) ViewPayload {
	t.Helper()
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := DecodeResponse(t, w)
	require.True(t, resp.Success)
	var payload ViewPayload
	DecodeInto(t, resp.Data, &payload)
	return payload
}

// ViewPayload mirrors handlers.ViewPayload.
type ViewPayload struct {
	View   string            `json:"view"`
	Status string            `json:"status"`
	Errors map[string]string `json:"errors"`
	Old    map[string]string `json:"old"`
	Data   json.RawMessage   `json:"data"`
}

// PathOf strips the test origin from an absolute link.
func PathOf(t *testing.T, link string) string {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	return parsed.RequestURI()
}
