package monitoring

import (
	"bytes"
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/cache"
)

const (
	defaultProbeTimeout = 2 * time.Second
	cacheProbeKey       = "health:probe"
)

// Database returns a probe that pings the database handle.
func Database(db *gorm.DB, timeout time.Duration) Check {
	return NewCheck("database", func(ctx context.Context) ProbeResult {
		start := time.Now()
		if db == nil {
			return ProbeResult{Status: StatusDown, Details: "database not configured"}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return ResultFromError(err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		return ResultFromError(sqlDB.PingContext(probeCtx), time.Since(start))
	})
}

// Cache returns a probe that writes, reads back and removes a short-lived
// key in the shared cache store.
func Cache(store cache.Store, timeout time.Duration) Check {
	return NewCheck("cache", func(ctx context.Context) ProbeResult {
		start := time.Now()
		if store == nil {
			return ProbeResult{Status: StatusDown, Details: "cache not configured"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout))
		defer cancel()

		return ResultFromError(roundTrip(probeCtx, store), time.Since(start))
	})
}

func roundTrip(ctx context.Context, store cache.Store) error {
	want := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	if err := store.Set(ctx, cacheProbeKey, want, time.Minute); err != nil {
		return err
	}
	got, ok, err := store.Get(ctx, cacheProbeKey)
	if err != nil {
		return err
	}
	if !ok || !bytes.Equal(got, want) {
		return errors.New("cache probe value mismatch")
	}
	return store.Delete(ctx, cacheProbeKey)
}

func chooseTimeout(provided time.Duration) time.Duration {
	if provided <= 0 {
		return defaultProbeTimeout
	}
	return provided
}
