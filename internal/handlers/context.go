package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/middleware"
	"github.com/charlesng35/multiguard/internal/models"
	"github.com/charlesng35/multiguard/internal/session"
	appErrors "github.com/charlesng35/multiguard/pkg/errors"
	"github.com/charlesng35/multiguard/pkg/response"
)

var errNoSession = errors.New("session middleware not installed")

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// requireSession returns the request session or answers with a 500.
func requireSession(c *gin.Context) (*session.Session, bool) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(errNoSession))
		return nil, false
	}
	return sess, true
}

// requirePrincipal returns the principal resolved by RequireGuard.
func requirePrincipal(c *gin.Context, guard auth.GuardName) (*models.Principal, bool) {
	principal, ok := middleware.CurrentPrincipal(c, guard)
	if !ok {
		response.Error(c, appErrors.ErrUnauthenticated)
		return nil, false
	}
	return principal, true
}
