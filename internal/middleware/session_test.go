package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestStartSessionPersistsAcrossRequests(t *testing.T) {
	env := newTestEnv(t)
	env.router.POST("/put", func(c *gin.Context) {
		sess, _ := CurrentSession(c)
		sess.Put("cart", "3")
		c.Redirect(http.StatusFound, "/next")
	})
	env.router.GET("/get", func(c *gin.Context) {
		sess, _ := CurrentSession(c)
		value, _ := sess.Get("cart")
		c.JSON(http.StatusOK, gin.H{"cart": value})
	})

	browser := env.client(t)
	rec := browser.do(http.MethodPost, "/put", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Contains(t, browser.cookies, "multiguard_session")
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	rec = browser.do(http.MethodGet, "/get", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"cart":"3"}`, rec.Body.String())
}

func TestStartSessionWritesQueuedCookiesBeforeBody(t *testing.T) {
	env := newTestEnv(t)
	env.router.GET("/queue", func(c *gin.Context) {
		sess, _ := CurrentSession(c)
		sess.QueueCookie(&http.Cookie{Name: "remember_user", Value: "v", Path: "/"})
		c.String(http.StatusOK, "ok")
	})

	browser := env.client(t)
	rec := browser.do(http.MethodGet, "/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "v", browser.cookies["remember_user"].Value)
	require.Contains(t, browser.cookies, "multiguard_session")
}

func TestLoginRotatesSessionCookie(t *testing.T) {
	env := newTestEnv(t)
	user := env.createPrincipal(t, "user", "u@x.com", true)
	env.router.GET("/touch", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	browser := env.client(t)
	browser.do(http.MethodGet, "/touch", nil)
	before := browser.cookies["multiguard_session"].Value

	browser.loginAs("user", user.ID, false)
	require.NotEqual(t, before, browser.cookies["multiguard_session"].Value)
}
