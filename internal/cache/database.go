package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/multiguard/internal/models"
)

var errDatabaseStoreNil = errors.New("cache: database store not initialised")

// DatabaseStore implements the cache Store interface using the primary SQL database.
type DatabaseStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB, opts ...Option) *DatabaseStore {
	if db == nil {
		return nil
	}
	o := buildOptions(opts)
	return &DatabaseStore{db: db, clock: o.clock}
}

// IncrementWithTTL atomically increments a counter for the supplied key. The
// window starts with the first increment; an unexpired row keeps its expiry.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errDatabaseStoreNil
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()
	var (
		count  int64
		expiry time.Time
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CacheEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(keyEq(key)).Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			count = 1
			expiry = now.Add(window)
			return tx.Create(&models.CacheEntry{
				Key:       key,
				Value:     []byte("1"),
				ExpiresAt: expiry,
			}).Error
		}
		if err != nil {
			return err
		}

		if !entry.ExpiresAt.After(now) {
			count = 1
			entry.ExpiresAt = now.Add(window)
		} else {
			current, _ := strconv.ParseInt(string(entry.Value), 10, 64)
			count = current + 1
		}
		entry.Value = []byte(strconv.FormatInt(count, 10))
		expiry = entry.ExpiresAt

		return tx.Save(&entry).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return count, expiry.Sub(now), nil
}

// TTL reports the remaining lifetime of key. A zero duration with ok=true
// means the entry never expires.
func (s *DatabaseStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	entry, ok, err := s.live(ctx, key)
	if err != nil || !ok {
		return 0, false, err
	}
	if entry.ExpiresAt.IsZero() {
		return 0, true, nil
	}
	return entry.ExpiresAt.Sub(s.clock()), true, nil
}

// Set upserts the value for a given key with expiry.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errDatabaseStoreNil
	}

	expiry := time.Time{}
	if ttl > 0 {
		expiry = s.clock().Add(ttl)
	}

	entry := models.CacheEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiry,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&entry).Error
}

// Get retrieves a value by key, respecting expiry.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	entry, ok, err := s.live(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return entry.Value, true, nil
}

func (s *DatabaseStore) live(ctx context.Context, key string) (*models.CacheEntry, bool, error) {
	if s == nil {
		return nil, false, errDatabaseStoreNil
	}

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Where(keyEq(key)).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if !entry.ExpiresAt.IsZero() && !s.clock().Before(entry.ExpiresAt) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return &entry, true, nil
}

// Delete removes keys from the store.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errDatabaseStoreNil
	}
	if len(keys) == 0 {
		return nil
	}

	values := make([]interface{}, len(keys))
	for i, key := range keys {
		values[i] = key
	}
	return s.db.WithContext(ctx).
		Where(clause.IN{Column: clause.Column{Name: "key"}, Values: values}).
		Delete(&models.CacheEntry{}).Error
}

// PruneExpired deletes every expired entry and reports how many were removed.
func (s *DatabaseStore) PruneExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNil
	}
	res := s.db.WithContext(ctx).
		Where("expires_at <> ? AND expires_at <= ?", time.Time{}, s.clock()).
		Delete(&models.CacheEntry{})
	return res.RowsAffected, res.Error
}

// keyEq quotes the column name; KEY is reserved in MySQL.
func keyEq(key string) clause.Expression {
	return clause.Eq{Column: clause.Column{Name: "key"}, Value: key}
}
