package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetAndUpsertSystemSetting(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	value, err := GetSystemSetting(context.Background(), db, "missing")
	require.NoError(t, err)
	require.Equal(t, "", value)

	require.NoError(t, UpsertSystemSetting(context.Background(), db, "sample", "value1"))

	retrieved, err := GetSystemSetting(context.Background(), db, "sample")
	require.NoError(t, err)
	require.Equal(t, "value1", retrieved)

	require.NoError(t, UpsertSystemSetting(context.Background(), db, "sample", "value2"))

	retrieved, err = GetSystemSetting(context.Background(), db, "sample")
	require.NoError(t, err)
	require.Equal(t, "value2", retrieved)
}

func TestResolveAppKeyReusesGeneratedKey(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))
	ctx := context.Background()

	calls := 0
	generate := func() (string, error) {
		calls++
		return "generated-key", nil
	}

	key, generated, err := ResolveAppKey(ctx, db, "", generate)
	require.NoError(t, err)
	require.True(t, generated)
	require.Equal(t, "generated-key", key)

	key, generated, err = ResolveAppKey(ctx, db, "", generate)
	require.NoError(t, err)
	require.False(t, generated)
	require.Equal(t, "generated-key", key)
	require.Equal(t, 1, calls)
}

func TestResolveAppKeyPrefersConfiguredKey(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))
	ctx := context.Background()

	require.NoError(t, UpsertSystemSetting(ctx, db, AppKeySetting, "old"))

	key, generated, err := ResolveAppKey(ctx, db, "configured", func() (string, error) {
		t.Fatal("generate must not be called")
		return "", nil
	})
	require.NoError(t, err)
	require.False(t, generated)
	require.Equal(t, "configured", key)

	stored, err := GetSystemSetting(ctx, db, AppKeySetting)
	require.NoError(t, err)
	require.Equal(t, "configured", stored)
}
