package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "unibox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen(t *testing.T) {
	t.Run("creates missing directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "deeper", "unibox.db")
		store, err := Open(context.Background(), path)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		assert.NotNil(t, store.DB())
	})

	t.Run("empty path rejected", func(t *testing.T) {
		_, err := Open(context.Background(), "  ")
		assert.Error(t, err)
	})

	t.Run("reopen keeps schema version", func(t *testing.T) {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "unibox.db")

		store, err := Open(ctx, path)
		require.NoError(t, err)
		require.NoError(t, store.SetSetting(ctx, "k", "v"))
		require.NoError(t, store.Close())

		store, err = Open(ctx, path)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		value, err := store.GetSetting(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", value)

		var ver int
		require.NoError(t, store.DB().QueryRow("PRAGMA user_version;").Scan(&ver))
		assert.Equal(t, 1, ver)
	})
}

func TestSettings(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	t.Run("unset key reads empty", func(t *testing.T) {
		value, err := store.GetSetting(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, value)
	})

	t.Run("set and replace", func(t *testing.T) {
		require.NoError(t, store.SetSetting(ctx, "theme", "dark"))
		require.NoError(t, store.SetSetting(ctx, "theme", "light"))

		value, err := store.GetSetting(ctx, "theme")
		require.NoError(t, err)
		assert.Equal(t, "light", value)
	})
}

func TestSkipDeleteConfirm(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	skip, err := store.SkipDeleteConfirm(ctx)
	require.NoError(t, err)
	assert.False(t, skip, "confirmation is required by default")

	require.NoError(t, store.SetSkipDeleteConfirm(ctx, true))
	skip, err = store.SkipDeleteConfirm(ctx)
	require.NoError(t, err)
	assert.True(t, skip)

	require.NoError(t, store.SetSkipDeleteConfirm(ctx, false))
	skip, err = store.SkipDeleteConfirm(ctx)
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestCloseNil(t *testing.T) {
	var store *Store
	assert.NoError(t, store.Close())
}
