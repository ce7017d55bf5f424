package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/multiguard/internal/models"
)

// AppKeySetting persists the application key when it was generated at runtime.
const AppKeySetting = "app.key"

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{Key: key, Value: value}
	if err := db.WithContext(ctx).
		Where("key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// ResolveAppKey returns the key the process should sign and encrypt with.
// A configured key always wins and is recorded. Otherwise a previously stored
// key is reused, and only when none exists is generate called and its result
// stored, so generated keys survive restarts.
func ResolveAppKey(ctx context.Context, db *gorm.DB, configured string, generate func() (string, error)) (string, bool, error) {
	configured = strings.TrimSpace(configured)
	if configured != "" {
		if err := UpsertSystemSetting(ctx, db, AppKeySetting, configured); err != nil {
			return "", false, err
		}
		return configured, false, nil
	}

	stored, err := GetSystemSetting(ctx, db, AppKeySetting)
	if err != nil {
		return "", false, err
	}
	if stored = strings.TrimSpace(stored); stored != "" {
		return stored, false, nil
	}

	key, err := generate()
	if err != nil {
		return "", false, fmt.Errorf("system settings: generate app key: %w", err)
	}
	if err := UpsertSystemSetting(ctx, db, AppKeySetting, key); err != nil {
		return "", false, err
	}
	return key, true, nil
}
