package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/multiguard/internal/app"
	"github.com/charlesng35/multiguard/internal/database"
	"github.com/charlesng35/multiguard/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("multiguard-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var (
		configPath  string
		migrateOnly bool
	)
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")
	fs.BoolVar(&migrateOnly, "migrate-only", false, "Apply database migrations and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	applied, err := app.ApplyRuntimeDefaults(cfg)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")
	for key := range applied {
		log.Info("applied runtime default", zap.String("key", key))
	}

	if migrateOnly {
		db, err := initialiseDatabase(cfg)
		if err != nil {
			return err
		}
		log.Info("migrations applied")
		return database.Close(db)
	}

	stack, err := bootstrapRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           stack.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Info("server listening", zap.String("addr", server.Addr), zap.String("base_url", cfg.Server.BaseURL))

	serveErr := serve(ctx, server, log)

	// Background jobs and stores outlive the listener until every in-flight
	// request has drained.
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	stack.Shutdown(stopCtx, log)

	if serveErr != nil {
		return serveErr
	}
	log.Info("server stopped gracefully")
	return nil
}

// serve runs server until ctx is cancelled or the listener fails, then drains
// in-flight requests for at most shutdownTimeout.
func serve(ctx context.Context, server *http.Server, log *zap.Logger) error {
	listenErr := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		listenErr <- err
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	if err := <-listenErr; err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}
