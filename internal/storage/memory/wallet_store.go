package memory

import (
	"context"
	"sort"
	"sync"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WalletBehavior // keyed by wallet
}

// NewWalletStore creates a new in-memory wallet behavior store.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		data: make(map[string]*domain.WalletBehavior),
	}
}

// Upsert inserts or replaces the behavior row keyed by b.Wallet.
func (s *WalletStore) Upsert(_ context.Context, b *domain.WalletBehavior) error {
	if b == nil || b.Wallet == "" {
		return storage.ErrInvalidInput
	}

	cp := b.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[b.Wallet] = &cp
	return nil
}

// GetByWallet retrieves a behavior by wallet address. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByWallet(_ context.Context, wallet string) (*domain.WalletBehavior, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.data[wallet]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := b.Clone()
	return &cp, nil
}

// GetByClassification retrieves behaviors with the given classification,
// ordered by confidence DESC then wallet ASC.
func (s *WalletStore) GetByClassification(_ context.Context, classification string) ([]*domain.WalletBehavior, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.WalletBehavior
	for _, b := range s.data {
		if b.Classification == classification {
			cp := b.Clone()
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Confidence != result[j].Confidence {
			return result[i].Confidence > result[j].Confidence
		}
		return result[i].Wallet < result[j].Wallet
	})

	return result, nil
}

// GetAll retrieves every tracked behavior, ordered by wallet ASC.
func (s *WalletStore) GetAll(_ context.Context) ([]*domain.WalletBehavior, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.WalletBehavior, 0, len(s.data))
	for _, b := range s.data {
		cp := b.Clone()
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Wallet < result[j].Wallet
	})

	return result, nil
}

// Delete removes a pruned wallet. Deleting a missing wallet is not an error.
func (s *WalletStore) Delete(_ context.Context, wallet string) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, wallet)
	return nil
}

var _ storage.WalletStore = (*WalletStore)(nil)
