package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application.
// Counters created by IncrementWithTTL use a fixed window: the expiry is set
// by the first increment and later increments do not extend it.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	TTL(ctx context.Context, key string) (time.Duration, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Option customises store construction.
type Option func(*options)

type options struct {
	clock func() time.Time
}

// WithClock overrides the time source used for expiry decisions.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
