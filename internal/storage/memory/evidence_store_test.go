package memory

import (
	"context"
	"errors"
	"testing"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

func evidenceFixture(eventID, mint string, slot int64) *domain.AbsorptionEvidence {
	return &domain.AbsorptionEvidence{
		EventID:              eventID,
		TokenMint:            mint,
		Slot:                 slot,
		Timestamp:            slot * 400,
		AbsorptionFraction:   0.5,
		Stabilized:           true,
		ResponseLatencySlots: 5,
		Outcome:              domain.OutcomeSuccess,
	}
}

func TestEvidenceStore_InsertAndGetByWallet(t *testing.T) {
	store := NewEvidenceStore()
	ctx := context.Background()

	// Out of slot order on purpose.
	if err := store.Insert(ctx, "w1", evidenceFixture("ev2", "mint1", 200)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, "w1", evidenceFixture("ev1", "mint1", 100)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, "w2", evidenceFixture("ev3", "mint2", 150)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 evidence rows, got %d", len(got))
	}
	if got[0].Slot != 100 || got[1].Slot != 200 {
		t.Errorf("Not ordered by slot ASC: %d, %d", got[0].Slot, got[1].Slot)
	}
}

func TestEvidenceStore_DuplicateEventWallet(t *testing.T) {
	store := NewEvidenceStore()
	ctx := context.Background()

	if err := store.Insert(ctx, "w1", evidenceFixture("ev1", "mint1", 100)); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, "w1", evidenceFixture("ev1", "mint1", 100))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	// Same event, different wallet is a distinct row.
	if err := store.Insert(ctx, "w2", evidenceFixture("ev1", "mint1", 100)); err != nil {
		t.Errorf("Insert for second wallet failed: %v", err)
	}
}

func TestEvidenceStore_GetByEventID(t *testing.T) {
	store := NewEvidenceStore()
	ctx := context.Background()

	if err := store.Insert(ctx, "wB", evidenceFixture("ev1", "mint1", 100)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, "wA", evidenceFixture("ev1", "mint1", 100)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, "wC", evidenceFixture("ev2", "mint1", 200)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByEventID(ctx, "ev1")
	if err != nil {
		t.Fatalf("GetByEventID failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 evidence rows, got %d", len(got))
	}
}

func TestEvidenceStore_EmptyResults(t *testing.T) {
	store := NewEvidenceStore()
	ctx := context.Background()

	got, err := store.GetByWallet(ctx, "missing")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty result, got %d rows", len(got))
	}
}

func TestEvidenceStore_InvalidInput(t *testing.T) {
	store := NewEvidenceStore()
	ctx := context.Background()

	if err := store.Insert(ctx, "w1", nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil evidence, got %v", err)
	}
	if err := store.Insert(ctx, "", evidenceFixture("ev1", "mint1", 100)); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty wallet, got %v", err)
	}
	if err := store.Insert(ctx, "w1", evidenceFixture("", "mint1", 100)); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty event ID, got %v", err)
	}
}
