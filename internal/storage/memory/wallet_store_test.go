package memory

import (
	"context"
	"errors"
	"testing"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

func behaviorFixture(wallet, class string, confidence float64) *domain.WalletBehavior {
	return &domain.WalletBehavior{
		Wallet:           wallet,
		FirstSeen:        1000,
		LastSeen:         2000,
		TotalAbsorptions: 3,
		UniqueTokens:     map[string]struct{}{"mint1": {}, "mint2": {}},
		Confidence:       confidence,
		Classification:   class,
		Status:           domain.StatusActive,
	}
}

func TestWalletStore_UpsertAndGet(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, behaviorFixture("w1", domain.ClassCandidate, 30)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := store.GetByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if got.Confidence != 30 {
		t.Errorf("Confidence mismatch: got %f, want 30", got.Confidence)
	}
	if len(got.UniqueTokens) != 2 {
		t.Errorf("UniqueTokens mismatch: got %d, want 2", len(got.UniqueTokens))
	}
}

func TestWalletStore_UpsertReplaces(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, behaviorFixture("w1", domain.ClassCandidate, 30)); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}
	if err := store.Upsert(ctx, behaviorFixture("w1", domain.ClassDefensiveInfra, 70)); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := store.GetByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if got.Classification != domain.ClassDefensiveInfra {
		t.Errorf("Classification not replaced: got %s", got.Classification)
	}
	if got.Confidence != 70 {
		t.Errorf("Confidence not replaced: got %f", got.Confidence)
	}
}

func TestWalletStore_GetReturnsCopy(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, behaviorFixture("w1", domain.ClassCandidate, 30)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	first, err := store.GetByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	first.Confidence = 99
	first.UniqueTokens["mint3"] = struct{}{}

	second, err := store.GetByWallet(ctx, "w1")
	if err != nil {
		t.Fatalf("GetByWallet failed: %v", err)
	}
	if second.Confidence != 30 {
		t.Errorf("Stored row mutated through returned copy: confidence %f", second.Confidence)
	}
	if len(second.UniqueTokens) != 2 {
		t.Errorf("Stored token set mutated through returned copy: %d tokens", len(second.UniqueTokens))
	}
}

func TestWalletStore_NotFound(t *testing.T) {
	store := NewWalletStore()

	_, err := store.GetByWallet(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestWalletStore_GetByClassificationOrdering(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	for _, b := range []*domain.WalletBehavior{
		behaviorFixture("wB", domain.ClassDefensiveInfra, 60),
		behaviorFixture("wA", domain.ClassDefensiveInfra, 60),
		behaviorFixture("wC", domain.ClassDefensiveInfra, 80),
		behaviorFixture("wD", domain.ClassNoise, 5),
	} {
		if err := store.Upsert(ctx, b); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	got, err := store.GetByClassification(ctx, domain.ClassDefensiveInfra)
	if err != nil {
		t.Fatalf("GetByClassification failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 behaviors, got %d", len(got))
	}

	wantOrder := []string{"wC", "wA", "wB"}
	for i, want := range wantOrder {
		if got[i].Wallet != want {
			t.Errorf("Position %d: got %s, want %s", i, got[i].Wallet, want)
		}
	}
}

func TestWalletStore_GetAllOrdering(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	for _, w := range []string{"wC", "wA", "wB"} {
		if err := store.Upsert(ctx, behaviorFixture(w, domain.ClassCandidate, 20)); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	got, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 behaviors, got %d", len(got))
	}
	for i, want := range []string{"wA", "wB", "wC"} {
		if got[i].Wallet != want {
			t.Errorf("Position %d: got %s, want %s", i, got[i].Wallet, want)
		}
	}
}

func TestWalletStore_Delete(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, behaviorFixture("w1", domain.ClassCandidate, 30)); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := store.Delete(ctx, "w1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.GetByWallet(ctx, "w1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing wallet is a no-op.
	if err := store.Delete(ctx, "w1"); err != nil {
		t.Errorf("Delete of missing wallet failed: %v", err)
	}
}

func TestWalletStore_InvalidInput(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil behavior, got %v", err)
	}
	if err := store.Upsert(ctx, &domain.WalletBehavior{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty wallet, got %v", err)
	}
}
