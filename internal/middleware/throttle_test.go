package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/cache"
)

func TestThrottleLimitsPerPrincipalAndRoute(t *testing.T) {
	env := newTestEnv(t)
	svc := env.manager.MustGuard(auth.GuardUser)
	rates, err := NewRateStore(env.cache)
	require.NoError(t, err)

	env.router.POST("/email/verification-notification", RequireGuard(svc), Throttle(rates, 6, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	env.router.POST("/other", RequireGuard(svc), Throttle(rates, 6, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	first := env.createPrincipal(t, auth.GuardUser, "one@x.com", false)
	second := env.createPrincipal(t, auth.GuardUser, "two@x.com", false)

	alice := env.client(t)
	alice.loginAs(auth.GuardUser, first.ID, false)
	for i := 0; i < 6; i++ {
		rec := alice.do(http.MethodPost, "/email/verification-notification", jsonHeaders)
		require.Equal(t, http.StatusAccepted, rec.Code, "request %d", i+1)
	}
	rec := alice.do(http.MethodPost, "/email/verification-notification", jsonHeaders)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "RATE_LIMIT_EXCEEDED", decodeError(t, rec.Body.Bytes()).Code)

	rec = alice.do(http.MethodPost, "/other", jsonHeaders)
	require.Equal(t, http.StatusAccepted, rec.Code)

	bob := env.client(t)
	bob.loginAs(auth.GuardUser, second.ID, false)
	rec = bob.do(http.MethodPost, "/email/verification-notification", jsonHeaders)
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestThrottleOnRedisWindowResets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rates, err := NewRateStore(cache.NewRedisStore(client, ""))
	require.NoError(t, err)

	r := gin.New()
	r.GET("/ping", Throttle(rates, 2, time.Minute), func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	hit := func() int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		return rec.Code
	}
	require.Equal(t, http.StatusOK, hit())
	require.Equal(t, http.StatusOK, hit())
	require.Equal(t, http.StatusTooManyRequests, hit())

	mr.FastForward(time.Minute)
	require.Equal(t, http.StatusOK, hit())
}
