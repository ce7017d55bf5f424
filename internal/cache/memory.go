package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is a process-local Store for single instance deployments and tests.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string]memoryEntry
	clock func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	return &MemoryStore{
		data:  make(map[string]memoryEntry),
		clock: o.clock,
	}
}

func (s *MemoryStore) IncrementWithTTL(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok || entry.expired(now) {
		entry = memoryEntry{value: []byte("1"), expiresAt: now.Add(window)}
		s.data[key] = entry
		return 1, window, nil
	}

	current, _ := strconv.ParseInt(string(entry.value), 10, 64)
	current++
	entry.value = []byte(strconv.FormatInt(current, 10))
	s.data[key] = entry
	return current, entry.expiresAt.Sub(now), nil
}

func (s *MemoryStore) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok || entry.expired(now) {
		return 0, false, nil
	}
	if entry.expiresAt.IsZero() {
		return 0, true, nil
	}
	return entry.expiresAt.Sub(now), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.clock().Add(ttl)
	}

	s.mu.Lock()
	s.data[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if entry.expired(now) {
		delete(s.data, key)
		return nil, false, nil
	}
	return append([]byte(nil), entry.value...), true, nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, key := range keys {
		delete(s.data, key)
	}
	s.mu.Unlock()
	return nil
}

// PruneExpired drops expired entries and reports how many were removed.
func (s *MemoryStore) PruneExpired(_ context.Context) (int64, error) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for key, entry := range s.data {
		if entry.expired(now) {
			delete(s.data, key)
			removed++
		}
	}
	return removed, nil
}
