package api

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/handlers"
	"github.com/charlesng35/multiguard/internal/middleware"
	"github.com/charlesng35/multiguard/internal/monitoring"
	"github.com/charlesng35/multiguard/internal/services"
	"github.com/charlesng35/multiguard/internal/session"
)

// DefaultVerificationRateLimit caps verify and resend requests per principal
// and route within VerificationRateWindow.
const (
	DefaultVerificationRateLimit = 6
	VerificationRateWindow       = time.Minute
)

// Dependencies bundles what the router needs to mount every guard.
type Dependencies struct {
	DB       *gorm.DB
	Auth     *auth.Manager
	Accounts *services.AccountService
	Sessions *session.Manager
	// RateStore backs the per-route throttles.
	RateStore middleware.RateStore
	// Health defaults to a database ping when nil.
	Health                *monitoring.HealthManager
	Security              middleware.SecurityOptions
	VerificationRateLimit int
}

// NewRouter builds the Gin engine, wires middleware and mounts the routes of
// every registered guard under its prefix.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Auth == nil {
		return nil, errors.New("auth manager must be provided")
	}
	if deps.Accounts == nil {
		return nil, errors.New("account service must be provided")
	}
	if deps.Sessions == nil {
		return nil, errors.New("session manager must be provided")
	}
	if deps.RateStore == nil {
		return nil, errors.New("rate store must be provided")
	}
	if deps.VerificationRateLimit <= 0 {
		deps.VerificationRateLimit = DefaultVerificationRateLimit
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders(deps.Security))

	// Health and metrics run without a session.
	health := deps.Health
	if health == nil {
		health = monitoring.NewHealthManager(monitoring.Database(deps.DB, 0))
	}
	r.GET("/health", handlers.Health(health))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	web := r.Group("", middleware.StartSession(deps.Sessions))
	web.GET("/", handlers.Welcome)

	for _, guard := range deps.Auth.Registry().All() {
		svc, ok := deps.Auth.Guard(guard.Name)
		if !ok {
			return nil, errors.New("guard services missing for " + string(guard.Name))
		}
		registerGuardRoutes(web, svc, deps)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
