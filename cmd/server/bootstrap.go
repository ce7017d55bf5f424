package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/api"
	"github.com/charlesng35/multiguard/internal/app"
	"github.com/charlesng35/multiguard/internal/app/maintenance"
	"github.com/charlesng35/multiguard/internal/auth"
	"github.com/charlesng35/multiguard/internal/cache"
	"github.com/charlesng35/multiguard/internal/database"
	"github.com/charlesng35/multiguard/internal/events"
	"github.com/charlesng35/multiguard/internal/middleware"
	"github.com/charlesng35/multiguard/internal/monitoring"
	"github.com/charlesng35/multiguard/internal/services"
	"github.com/charlesng35/multiguard/internal/session"
	"github.com/charlesng35/multiguard/pkg/logger"
	"github.com/charlesng35/multiguard/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Cache    cache.Store
	Redis    *cache.RedisStore
	Auth     *auth.Manager
	Sessions *session.Manager
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, cache, guards and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mode
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	appKey, err := resolveAppKey(ctx, stack.DB, cfg, log)
	if err != nil {
		return nil, err
	}

	if err := stack.initialiseCache(ctx, cfg, log); err != nil {
		return nil, err
	}

	mailer, err := mail.New(cfg.Email.SMTPSettings(), logger.WithModule("mail"))
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}
	notifier, err := services.NewMailNotifier(mailer, cfg.Email.AppName)
	if err != nil {
		return nil, err
	}

	principals, err := auth.NewGormPrincipalStore(stack.DB, nil)
	if err != nil {
		return nil, err
	}
	registry, err := auth.NewRegistry(auth.DefaultGuards()...)
	if err != nil {
		return nil, err
	}

	dispatcher := events.NewDispatcher()
	stack.Auth, err = auth.NewManager(registry,
		cfg.Auth.ManagerConfig(appKey, cfg.Server.BaseURL, cfg.Session),
		auth.Dependencies{
			DB:         stack.DB,
			Principals: principals,
			Cache:      stack.Cache,
			Notifier:   notifier,
			Events:     dispatcher,
		})
	if err != nil {
		return nil, fmt.Errorf("initialise auth manager: %w", err)
	}

	accounts, err := services.NewAccountService(stack.Auth)
	if err != nil {
		return nil, err
	}
	services.RegisterListeners(dispatcher, stack.Auth)

	var sessionHandler session.Handler
	var sessionRows *session.DatabaseHandler
	switch strings.ToLower(cfg.Session.Driver) {
	case "database":
		sessionRows = session.NewDatabaseHandler(stack.DB, cfg.Session.Lifetime, nil)
		sessionHandler = sessionRows
	default:
		sessionHandler = session.NewCacheHandler(stack.Cache)
	}
	stack.Sessions = session.NewManager(sessionHandler, cfg.Session.ManagerConfig())

	rateStore, err := middleware.NewRateStore(stack.Cache)
	if err != nil {
		return nil, fmt.Errorf("initialise rate store: %w", err)
	}

	if cfg.Maintenance.Enabled {
		opts := []maintenance.Option{maintenance.WithSchedule(cfg.Maintenance.Schedule)}
		if pruner, ok := stack.Cache.(maintenance.Pruner); ok {
			opts = append(opts, maintenance.WithPruner("cache", pruner))
		}
		if sessionRows != nil {
			opts = append(opts, maintenance.WithPruner("sessions", sessionRows))
		}
		stack.Cleaner = maintenance.NewCleaner(stack.DB, opts...)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	health := monitoring.NewHealthManager(
		monitoring.Database(stack.DB, 0),
		monitoring.Cache(stack.Cache, 0),
	)

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:                    stack.DB,
		Auth:                  stack.Auth,
		Accounts:              accounts,
		Sessions:              stack.Sessions,
		RateStore:             rateStore,
		Health:                health,
		Security:              middleware.SecurityOptions{HSTS: cfg.Server.HSTS},
		VerificationRateLimit: cfg.Auth.VerifyRateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) initialiseCache(ctx context.Context, cfg *app.Config, log *zap.Logger) error {
	switch strings.ToLower(cfg.Cache.Driver) {
	case "redis":
		redisCfg := cfg.Cache.RedisClientConfig()
		client, err := cache.NewRedisClient(ctx, redisCfg)
		if err != nil {
			log.Warn("redis unavailable; falling back to database cache", zap.Error(err))
			s.Cache = cache.NewDatabaseStore(s.DB)
			return nil
		}
		s.Redis = cache.NewRedisStore(client, redisCfg.Prefix)
		s.Cache = s.Redis
		log.Info("redis connected", zap.String("addr", redisCfg.Address))
	case "database":
		s.Cache = cache.NewDatabaseStore(s.DB)
	default:
		s.Cache = cache.NewMemoryStore()
	}
	return nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		if stopCtx := s.Cleaner.Stop(); stopCtx != nil {
			<-stopCtx.Done()
		}
		if _, err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.Connection()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

// resolveAppKey loads the signing key, generating and persisting one on
// first start when none is configured.
func resolveAppKey(ctx context.Context, db *gorm.DB, cfg *app.Config, log *zap.Logger) ([]byte, error) {
	encoded, generated, err := database.ResolveAppKey(ctx, db, cfg.Auth.AppKey, app.GenerateAppKey)
	if err != nil {
		return nil, fmt.Errorf("resolve app key: %w", err)
	}
	if generated {
		log.Info("generated application key; set auth.app_key to pin it")
	}

	key, err := app.DecodeKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode app key: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("app key must decode to at least 32 bytes, got %d", len(key))
	}
	return key, nil
}
