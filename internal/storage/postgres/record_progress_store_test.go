package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-infra-watch/internal/storage"
)

func TestRecordProgressStore_EmptyReturnsNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRecordProgressStore(pool)

	_, err := store.GetLastArchived(context.Background())
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestRecordProgressStore_SetGetAndReplace(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRecordProgressStore(pool)

	require.NoError(t, store.SetLastArchived(ctx, &storage.RecordProgress{Slot: 123_456, Signature: "sig-a"}))

	got, err := store.GetLastArchived(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(123_456), got.Slot)
	assert.Equal(t, "sig-a", got.Signature)

	require.NoError(t, store.SetLastArchived(ctx, &storage.RecordProgress{Slot: 200_000, Signature: "sig-b"}))

	got, err = store.GetLastArchived(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200_000), got.Slot)
	assert.Equal(t, "sig-b", got.Signature)
}

func TestRecordProgressStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRecordProgressStore(pool)

	assert.True(t, errors.Is(store.SetLastArchived(context.Background(), nil), storage.ErrInvalidInput))
}
