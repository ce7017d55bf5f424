package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig captures the connection parameters for the Redis-backed store.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
	Prefix   string
}

const (
	defaultRedisTimeout = 5 * time.Second
	defaultRedisPrefix  = "multiguard:"
)

// RedisStore implements Store on top of go-redis.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient builds a go-redis client and pings it so misconfiguration
// surfaces during start-up.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, errors.New("redis: address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRedisTimeout
	}

	opts := &redis.Options{
		Addr:         cfg.Address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	}
	if cfg.TLS {
		host := cfg.Address
		if idx := strings.LastIndex(host, ":"); idx > 0 {
			host = host[:idx]
		}
		opts.TLSConfig = &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// NewRedisStore wraps client. An empty prefix selects the default namespace.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// IncrementWithTTL increments key and sets the window expiry on the first hit.
// A counter found without expiry (INCR succeeded but EXPIRE did not) is given
// one so it cannot lock a key forever.
func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	k := s.prefixed(key)

	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, 0, err
	}

	if count == 1 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}

	ttl, err := s.client.PTTL(ctx, k).Result()
	if err != nil {
		return count, window, nil
	}
	if ttl < 0 {
		if err := s.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}
	return count, ttl, nil
}

// TTL reports the remaining lifetime of key.
func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	ttl, err := s.client.PTTL(ctx, s.prefixed(key)).Result()
	if err != nil {
		return 0, false, err
	}
	// go-redis reports -2 for a missing key and -1 for a key without expiry.
	switch {
	case ttl == -2:
		return 0, false, nil
	case ttl < 0:
		return 0, true, nil
	default:
		return ttl, true, nil
	}
}

// Set stores a value with PX expiry semantics. A non-positive ttl keeps the key forever.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, s.prefixed(key), value, ttl).Err()
}

// Get retrieves the value associated with a key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, s.prefixed(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Delete removes one or more keys, ignoring missing keys.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.prefixed(key)
	}
	return s.client.Del(ctx, prefixed...).Err()
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) prefixed(key string) string {
	key = strings.TrimSpace(key)
	if strings.HasPrefix(key, s.prefix) {
		return key
	}
	return s.prefix + key
}
