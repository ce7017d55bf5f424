package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/multiguard/internal/api"
	"github.com/charlesng35/multiguard/internal/handlers/testutil"
	"github.com/charlesng35/multiguard/internal/middleware"
	"github.com/charlesng35/multiguard/internal/monitoring"
	"github.com/charlesng35/multiguard/internal/services"
)

func TestRouter_MountsEveryGuard(t *testing.T) {
	env := testutil.NewEnv(t)

	routes := make(map[string]bool)
	for _, info := range env.Router.Routes() {
		routes[info.Method+" "+info.Path] = true
	}

	for _, prefix := range []string{"", "/admin", "/seller"} {
		for _, route := range []string{
			"GET " + prefix + "/login",
			"POST " + prefix + "/login",
			"POST " + prefix + "/logout",
			"GET " + prefix + "/register",
			"GET " + prefix + "/verify-email",
			"GET " + prefix + "/verify-email/:id/:hash",
			"POST " + prefix + "/email/verification-notification",
			"GET " + prefix + "/confirm-password",
			"POST " + prefix + "/forgot-password",
			"GET " + prefix + "/reset-password/:token",
			"PATCH " + prefix + "/profile",
			"PUT " + prefix + "/password",
		} {
			require.True(t, routes[route], "missing route %s", route)
		}
	}
	require.True(t, routes["GET /dashboard"])
	require.True(t, routes["GET /admin"])
	require.True(t, routes["GET /seller"])
}

func TestRouter_WelcomePageStartsSession(t *testing.T) {
	env := testutil.NewEnv(t)
	browser := env.Browser()

	page := testutil.View(t, browser.Get("/"))
	require.Equal(t, "welcome", page.View)
	_, ok := browser.Cookie("multiguard_session")
	require.True(t, ok)

	health := browser.Get("/health")
	require.Equal(t, http.StatusOK, health.Code)
	require.Empty(t, health.Header().Get("Set-Cookie"))
}

func TestRouter_HealthReportsFailingProbe(t *testing.T) {
	env := testutil.NewEnv(t)

	accounts, err := services.NewAccountService(env.Auth)
	require.NoError(t, err)
	rates, err := middleware.NewRateStore(env.Cache)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:        env.DB,
		Auth:      env.Auth,
		Accounts:  accounts,
		Sessions:  env.Sessions,
		RateStore: rates,
		Health: monitoring.NewHealthManager(
			monitoring.Database(env.DB, 0),
			monitoring.NewCheck("cache", func(context.Context) monitoring.ProbeResult {
				return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection refused"}
			}),
		),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Data  monitoring.HealthReport `json:"data"`
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "UNHEALTHY", body.Error.Code)
	require.Equal(t, monitoring.StatusDown, body.Data.Status)
	require.Len(t, body.Data.Checks, 2)
}
