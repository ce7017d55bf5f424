package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/handlers"
)

func registerProfileRoutes(authed *gin.RouterGroup, svc *auth.GuardServices, deps Dependencies) {
	profile := handlers.NewProfileHandler(svc, deps.Accounts)

	authed.GET("/profile", profile.Show)
	authed.PATCH("/profile", profile.Update)
	authed.DELETE("/profile", profile.Destroy)
	authed.PUT("/password", profile.UpdatePassword)
}
