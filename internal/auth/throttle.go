package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charlesng35/multiguard/internal/cache"
	apperrors "github.com/charlesng35/multiguard/pkg/errors"
)

const throttleKeyPrefix = "login:"

// ThrottleConfig bounds failed login attempts per key.
type ThrottleConfig struct {
	MaxAttempts int
	Decay       time.Duration
}

// ThrottledError reports a locked-out key and how long until it may retry.
type ThrottledError struct {
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("auth: too many attempts, retry after %s", e.RetryAfter)
}

// Unwrap exposes the user-facing throttle error so responses can render it.
func (e *ThrottledError) Unwrap() error {
	return apperrors.NewThrottled(e.RetryAfter)
}

// ThrottleKey derives the limiter key from the submitted email and guard.
// The client address is deliberately not part of the key.
func ThrottleKey(email string, guard GuardName) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + string(guard)
}

// LoginThrottle limits failed logins per key within a fixed window that
// starts at the first failure.
type LoginThrottle struct {
	store cache.Store
	cfg   ThrottleConfig
}

// NewLoginThrottle defaults to 5 attempts per 60 seconds.
func NewLoginThrottle(store cache.Store, cfg ThrottleConfig) *LoginThrottle {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Decay <= 0 {
		cfg.Decay = time.Minute
	}
	return &LoginThrottle{store: store, cfg: cfg}
}

// Attempt reserves a slot for one login attempt. The attempt is counted as a
// failure up front through RecordFailure; once the window holds more than
// MaxAttempts the call returns a *ThrottledError. A successful login gives the
// slot back through Clear.
func (t *LoginThrottle) Attempt(ctx context.Context, key string) error {
	count, ttl, err := t.RecordFailure(ctx, key)
	if err != nil {
		return err
	}
	if count <= int64(t.cfg.MaxAttempts) {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return &ThrottledError{RetryAfter: ttl}
}

// Failures returns the failure count in the current window.
func (t *LoginThrottle) Failures(ctx context.Context, key string) (int64, error) {
	raw, ok, err := t.store.Get(ctx, throttleKeyPrefix+key)
	if err != nil {
		return 0, fmt.Errorf("throttle: read: %w", err)
	}
	if !ok {
		return 0, nil
	}
	count, _ := strconv.ParseInt(string(raw), 10, 64)
	return count, nil
}

// RecordFailure atomically counts a failed attempt and returns the new total
// together with the time left in the window.
func (t *LoginThrottle) RecordFailure(ctx context.Context, key string) (int64, time.Duration, error) {
	count, ttl, err := t.store.IncrementWithTTL(ctx, throttleKeyPrefix+key, t.cfg.Decay)
	if err != nil {
		return 0, 0, fmt.Errorf("throttle: record: %w", err)
	}
	return count, ttl, nil
}

// Clear resets the key after a successful authentication.
func (t *LoginThrottle) Clear(ctx context.Context, key string) error {
	if err := t.store.Delete(ctx, throttleKeyPrefix+key); err != nil {
		return fmt.Errorf("throttle: clear: %w", err)
	}
	return nil
}
