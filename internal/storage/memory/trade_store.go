package memory

import (
	"context"
	"sort"
	"sync"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.VirtualTrade // keyed by trade_id
}

// NewTradeStore creates a new in-memory virtual trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.VirtualTrade),
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.VirtualTrade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *t
	s.data[t.TradeID] = &cp
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(_ context.Context, trades []*domain.VirtualTrade) error {
	if len(trades) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// First pass: reject existing and intra-batch duplicates.
	batchKeys := make(map[string]struct{}, len(trades))
	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[t.TradeID]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[t.TradeID] = struct{}{}
	}

	// Second pass: insert all.
	for _, t := range trades {
		cp := *t
		s.data[t.TradeID] = &cp
	}

	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, tradeID string) (*domain.VirtualTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.data[tradeID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	cp := *t
	return &cp, nil
}

// GetByToken retrieves all trades on a token mint, ordered by entry slot ASC.
func (s *TradeStore) GetByToken(_ context.Context, tokenMint string) ([]*domain.VirtualTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VirtualTrade
	for _, t := range s.data {
		if t.TokenMint == tokenMint {
			cp := *t
			result = append(result, &cp)
		}
	}

	sortTrades(result)
	return result, nil
}

// GetAll retrieves all trades, ordered by entry slot ASC.
func (s *TradeStore) GetAll(_ context.Context) ([]*domain.VirtualTrade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.VirtualTrade, 0, len(s.data))
	for _, t := range s.data {
		cp := *t
		result = append(result, &cp)
	}

	sortTrades(result)
	return result, nil
}

// sortTrades orders by entry slot ASC with trade ID as the tiebreak.
func sortTrades(trades []*domain.VirtualTrade) {
	sort.Slice(trades, func(i, j int) bool {
		if trades[i].EntrySlot != trades[j].EntrySlot {
			return trades[i].EntrySlot < trades[j].EntrySlot
		}
		return trades[i].TradeID < trades[j].TradeID
	})
}

var _ storage.TradeStore = (*TradeStore)(nil)
