package memory

import (
	"context"
	"sort"
	"sync"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

// SwapArchiveStore is an in-memory implementation of storage.SwapArchiveStore.
// Recorder restarts may re-archive a tail of events, so duplicate keys are
// silently skipped rather than rejected.
type SwapArchiveStore struct {
	mu   sync.RWMutex
	data []*domain.SwapEvent
	keys map[domain.EventKey]bool
}

// NewSwapArchiveStore creates a new in-memory swap archive.
func NewSwapArchiveStore() *SwapArchiveStore {
	return &SwapArchiveStore{
		keys: make(map[domain.EventKey]bool),
	}
}

// InsertBulk appends a batch of normalized swaps, skipping events whose key
// was already archived.
func (s *SwapArchiveStore) InsertBulk(_ context.Context, events []*domain.SwapEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		if e == nil || e.Signature == "" {
			return storage.ErrInvalidInput
		}
		if s.keys[e.Key] {
			continue
		}
		cp := *e
		s.data = append(s.data, &cp)
		s.keys[e.Key] = true
	}

	return nil
}

// GetBySlotRange retrieves swaps within [start, end] (inclusive), in total
// event order.
func (s *SwapArchiveStore) GetBySlotRange(_ context.Context, startSlot, endSlot int64) ([]*domain.SwapEvent, error) {
	if startSlot > endSlot {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapEvent
	for _, e := range s.data {
		if e.Key.Slot >= startSlot && e.Key.Slot <= endSlot {
			cp := *e
			result = append(result, &cp)
		}
	}

	sortSwaps(result)
	return result, nil
}

// GetByToken retrieves swaps for one token within [start, end] (inclusive),
// in total event order.
func (s *SwapArchiveStore) GetByToken(_ context.Context, tokenMint string, startSlot, endSlot int64) ([]*domain.SwapEvent, error) {
	if startSlot > endSlot {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapEvent
	for _, e := range s.data {
		if e.TokenMint == tokenMint && e.Key.Slot >= startSlot && e.Key.Slot <= endSlot {
			cp := *e
			result = append(result, &cp)
		}
	}

	sortSwaps(result)
	return result, nil
}

// sortSwaps orders by (slot, tx_index, inner_index, log_index) ascending.
func sortSwaps(events []*domain.SwapEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Key.Less(events[j].Key)
	})
}

var _ storage.SwapArchiveStore = (*SwapArchiveStore)(nil)
