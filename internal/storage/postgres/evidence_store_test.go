package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

func createTestEvidence(eventID, mint string, slot int64) *domain.AbsorptionEvidence {
	return &domain.AbsorptionEvidence{
		EventID:              eventID,
		TokenMint:            mint,
		Slot:                 slot,
		Timestamp:            slot * 400,
		AbsorptionFraction:   0.55,
		Stabilized:           true,
		ResponseLatencySlots: 7,
		Outcome:              domain.OutcomeSuccess,
	}
}

func TestEvidenceStore_InsertAndGetByWallet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEvidenceStore(pool)

	// Insert out of slot order.
	require.NoError(t, store.Insert(ctx, "wallet-1", createTestEvidence("ev-2", "mintA", 200)))
	require.NoError(t, store.Insert(ctx, "wallet-1", createTestEvidence("ev-1", "mintA", 100)))
	require.NoError(t, store.Insert(ctx, "wallet-2", createTestEvidence("ev-3", "mintB", 150)))

	got, err := store.GetByWallet(ctx, "wallet-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "ev-1", got[0].EventID)
	assert.Equal(t, "ev-2", got[1].EventID)
	assert.Equal(t, int64(100), got[0].Slot)
	assert.InDelta(t, 0.55, got[0].AbsorptionFraction, 1e-9)
	assert.True(t, got[0].Stabilized)
	assert.Equal(t, domain.OutcomeSuccess, got[0].Outcome)
}

func TestEvidenceStore_DuplicateEventWallet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEvidenceStore(pool)

	require.NoError(t, store.Insert(ctx, "wallet-1", createTestEvidence("ev-1", "mintA", 100)))

	err := store.Insert(ctx, "wallet-1", createTestEvidence("ev-1", "mintA", 100))
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))

	// Same event observed for a different wallet is a distinct row.
	assert.NoError(t, store.Insert(ctx, "wallet-2", createTestEvidence("ev-1", "mintA", 100)))
}

func TestEvidenceStore_GetByEventID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEvidenceStore(pool)

	require.NoError(t, store.Insert(ctx, "wallet-b", createTestEvidence("ev-1", "mintA", 100)))
	require.NoError(t, store.Insert(ctx, "wallet-a", createTestEvidence("ev-1", "mintA", 100)))
	require.NoError(t, store.Insert(ctx, "wallet-c", createTestEvidence("ev-2", "mintA", 200)))

	got, err := store.GetByEventID(ctx, "ev-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "ev-1", got[0].EventID)
	assert.Equal(t, "ev-1", got[1].EventID)
}

func TestEvidenceStore_InvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEvidenceStore(pool)

	assert.True(t, errors.Is(store.Insert(ctx, "wallet-1", nil), storage.ErrInvalidInput))
	assert.True(t, errors.Is(store.Insert(ctx, "", createTestEvidence("ev-1", "mintA", 100)), storage.ErrInvalidInput))
}
