package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/handlers"
	"github.com/charlesng35/multiguard/internal/middleware"
)

func registerGuardRoutes(web *gin.RouterGroup, svc *auth.GuardServices, deps Dependencies) {
	guard := svc.Guard
	authHandler := handlers.NewAuthHandler(svc, deps.Accounts)
	group := web.Group(guard.RoutePrefix)

	guest := group.Group("", middleware.RedirectIfAuthenticated(svc))
	{
		guest.GET("/login", authHandler.ShowLogin)
		guest.POST("/login", authHandler.Login)
		guest.GET("/register", authHandler.ShowRegister)
		guest.POST("/register", authHandler.Register)
		guest.GET("/forgot-password", authHandler.ShowForgotPassword)
		guest.POST("/forgot-password", authHandler.ForgotPassword)
		guest.GET("/reset-password/:token", authHandler.ShowResetPassword)
		guest.POST("/reset-password", authHandler.ResetPassword)
	}

	verifyLimit := middleware.Throttle(deps.RateStore, deps.VerificationRateLimit, VerificationRateWindow)

	authed := group.Group("", middleware.RequireGuard(svc))
	{
		authed.GET("/verify-email", authHandler.VerificationNotice)
		authed.GET("/verify-email/:id/:hash", verifyLimit, authHandler.VerifyEmail)
		authed.POST("/email/verification-notification", verifyLimit, authHandler.ResendVerification)
		authed.GET("/confirm-password", authHandler.ShowConfirmPassword)
		authed.POST("/confirm-password", authHandler.ConfirmPassword)
		authed.GET("/protected", middleware.RequirePasswordConfirmed(svc), authHandler.ConfirmedArea)
		authed.POST("/logout", authHandler.Logout)
	}

	registerProfileRoutes(authed, svc, deps)

	group.GET(homeRoute(guard), middleware.RequireGuard(svc), middleware.RequireVerified(svc), authHandler.Dashboard)
}

// homeRoute is the guard's home path relative to its route prefix.
func homeRoute(guard auth.Guard) string {
	rel := strings.TrimPrefix(guard.HomePath, guard.RoutePrefix)
	if rel == "/" {
		return ""
	}
	return rel
}
