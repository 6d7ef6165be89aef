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

func createTestTrade(tradeID, mint string, entrySlot int64) *domain.VirtualTrade {
	return &domain.VirtualTrade{
		TradeID:                tradeID,
		SignalID:               "sig-" + tradeID,
		EventID:                "ev-" + tradeID,
		TokenMint:              mint,
		PoolAddress:            "pool-1",
		Absorber:               "absorber-1",
		EntrySlot:              entrySlot,
		EntryPrice:             0.0101,
		EntrySlippageBps:       25,
		EntryFees:              0.0005,
		CostBase:               1.0,
		AmountToken:            98.5,
		ExitSlot:               entrySlot + 150,
		ExitPrice:              0.0112,
		ExitSlippageBps:        25,
		ExitFees:               0.0005,
		ExitReason:             "take-profit",
		RealizedPnl:            0.095,
		ReturnPct:              9.5,
		HoldingSlots:           150,
		MAE:                    -2.1,
		MFE:                    11.3,
		SignalStrength:         66.0,
		StabilizationConfirmed: true,
		SellFractionOfPool:     0.02,
		AbsorptionFraction:     0.6,
	}
}

func TestTradeStore_InsertAndGetByID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	trade := createTestTrade("trade-1", "mintA", 5000)
	require.NoError(t, store.Insert(ctx, trade))

	got, err := store.GetByID(ctx, "trade-1")
	require.NoError(t, err)

	assert.Equal(t, trade.TradeID, got.TradeID)
	assert.Equal(t, trade.SignalID, got.SignalID)
	assert.Equal(t, trade.EventID, got.EventID)
	assert.Equal(t, trade.TokenMint, got.TokenMint)
	assert.Equal(t, trade.EntrySlot, got.EntrySlot)
	assert.InDelta(t, trade.EntryPrice, got.EntryPrice, 1e-9)
	assert.InDelta(t, trade.RealizedPnl, got.RealizedPnl, 1e-9)
	assert.InDelta(t, trade.ReturnPct, got.ReturnPct, 1e-9)
	assert.Equal(t, trade.ExitReason, got.ExitReason)
	assert.True(t, got.StabilizationConfirmed)
	assert.InDelta(t, trade.AbsorptionFraction, got.AbsorptionFraction, 1e-9)
}

func TestTradeStore_DuplicateTradeID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	require.NoError(t, store.Insert(ctx, createTestTrade("trade-1", "mintA", 5000)))

	err := store.Insert(ctx, createTestTrade("trade-1", "mintA", 5000))
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))
}

func TestTradeStore_GetByIDNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewTradeStore(pool)

	_, err := store.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestTradeStore_InsertBulkAtomic(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	require.NoError(t, store.Insert(ctx, createTestTrade("trade-2", "mintA", 6000)))

	// trade-2 collides; nothing from the batch may land.
	err := store.InsertBulk(ctx, []*domain.VirtualTrade{
		createTestTrade("trade-1", "mintA", 5000),
		createTestTrade("trade-2", "mintA", 6000),
	})
	require.True(t, errors.Is(err, storage.ErrDuplicateKey))

	_, err = store.GetByID(ctx, "trade-1")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "partial batch was applied")
}

func TestTradeStore_GetByTokenAndGetAll(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeStore(pool)

	require.NoError(t, store.InsertBulk(ctx, []*domain.VirtualTrade{
		createTestTrade("trade-3", "mintA", 7000),
		createTestTrade("trade-1", "mintA", 5000),
		createTestTrade("trade-2", "mintB", 6000),
	}))

	byToken, err := store.GetByToken(ctx, "mintA")
	require.NoError(t, err)
	require.Len(t, byToken, 2)
	assert.Equal(t, "trade-1", byToken[0].TradeID)
	assert.Equal(t, "trade-3", byToken[1].TradeID)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "trade-1", all[0].TradeID)
	assert.Equal(t, "trade-2", all[1].TradeID)
	assert.Equal(t, "trade-3", all[2].TradeID)
}
