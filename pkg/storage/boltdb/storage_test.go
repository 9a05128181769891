package boltdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/synckit/pkg/storage"
)

// createTestStorage создает временное хранилище для тестов
func createTestStorage(t *testing.T) *Storage {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)

	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func TestStorage_SetGet(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SetItem(ctx, "synckit.protocol", `{"version":1}`))

	got, err := store.GetItem(ctx, "synckit.protocol")
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, got)
}

func TestStorage_GetMissing(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.GetItem(context.Background(), "absent")
	assert.ErrorIs(t, err, storage.ErrItemNotFound)
}

func TestStorage_Overwrite(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SetItem(ctx, "key", "first"))
	require.NoError(t, store.SetItem(ctx, "key", "second"))

	got, err := store.GetItem(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestStorage_Remove(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SetItem(ctx, "key", "value"))
	require.NoError(t, store.RemoveItem(ctx, "key"))

	_, err := store.GetItem(ctx, "key")
	assert.ErrorIs(t, err, storage.ErrItemNotFound)

	// Удаление отсутствующего ключа не ошибка
	assert.NoError(t, store.RemoveItem(ctx, "key"))
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := New(ctx, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SetItem(ctx, "key", "value"))
	require.NoError(t, store.Close())

	reopened, err := New(ctx, dbPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, reopened.Close())
	}()

	got, err := reopened.GetItem(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", got, "Values must survive reopening the database")
}
