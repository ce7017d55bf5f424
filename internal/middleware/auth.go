package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/models"
	apperrors "github.com/charlesng35/multiguard/pkg/errors"
	"github.com/charlesng35/multiguard/pkg/response"
)

const (
	CtxPrincipalIDKey = "principalID"
	CtxGuardKey       = "guard"
)

func principalKey(guard auth.GuardName) string { return "principal." + string(guard) }

// ExpectsJSON reports whether the client asked for a machine-readable answer
// rather than a redirect.
func ExpectsJSON(c *gin.Context) bool {
	if strings.EqualFold(c.GetHeader("X-Requested-With"), "XMLHttpRequest") {
		return true
	}
	return strings.Contains(strings.ToLower(c.GetHeader("Accept")), "json")
}

// CurrentPrincipal returns the principal resolved by RequireGuard for guard.
func CurrentPrincipal(c *gin.Context, guard auth.GuardName) (*models.Principal, bool) {
	value, ok := c.Get(principalKey(guard))
	if !ok {
		return nil, false
	}
	principal, ok := value.(*models.Principal)
	return principal, ok && principal != nil
}

// RequireGuard resolves the guard's principal. Anonymous JSON clients get a
// 401; browsers are sent to the guard's login page with the current URL kept
// as the intended destination.
func RequireGuard(svc *auth.GuardServices) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok {
			response.Error(c, apperrors.ErrInternalServer.WithInternal(errors.New("session middleware not installed")))
			c.Abort()
			return
		}

		principal, err := svc.Session.Resolve(c.Request.Context(), sess)
		if err != nil {
			if !errors.Is(err, apperrors.ErrUnauthenticated) {
				response.Error(c, err)
				c.Abort()
				return
			}
			if ExpectsJSON(c) {
				response.Error(c, apperrors.ErrUnauthenticated)
				c.Abort()
				return
			}
			if c.Request.Method == http.MethodGet {
				auth.SetIntended(sess, c.Request.URL.RequestURI())
			}
			response.Redirect(c, svc.Guard.Path("/login"))
			c.Abort()
			return
		}

		c.Set(principalKey(svc.Guard.Name), principal)
		c.Set(CtxPrincipalIDKey, principal.ID)
		c.Set(CtxGuardKey, string(svc.Guard.Name))
		c.Next()
	}
}

// RedirectIfAuthenticated keeps signed-in principals away from guest pages
// such as login and register.
func RedirectIfAuthenticated(svc *auth.GuardServices) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if ok && svc.Session.Check(c.Request.Context(), sess) {
			if ExpectsJSON(c) {
				response.Success(c, http.StatusOK, gin.H{"redirect": svc.Guard.HomePath})
			} else {
				response.Redirect(c, svc.Guard.HomePath)
			}
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireVerified blocks principals whose email is not verified.
func RequireVerified(svc *auth.GuardServices) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c, svc.Guard.Name)
		if ok && principal.HasVerifiedEmail() {
			c.Next()
			return
		}
		if ExpectsJSON(c) {
			response.Error(c, apperrors.ErrEmailUnverified)
		} else {
			response.Redirect(c, svc.Guard.Path("/verify-email"))
		}
		c.Abort()
	}
}

// RequirePasswordConfirmed gates sensitive routes behind a recent password
// confirmation. JSON clients receive 423.
func RequirePasswordConfirmed(svc *auth.GuardServices) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if ok && svc.Confirmation.IsConfirmed(sess) {
			c.Next()
			return
		}
		if ExpectsJSON(c) {
			response.Error(c, apperrors.ErrConfirmationRequired)
			c.Abort()
			return
		}
		if ok && c.Request.Method == http.MethodGet {
			auth.SetIntended(sess, c.Request.URL.RequestURI())
		}
		response.Redirect(c, svc.Guard.Path("/confirm-password"))
		c.Abort()
	}
}
