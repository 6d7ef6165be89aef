// Package poolstate maintains the last-known reserves and price per pool.
// The normalizer is the single writer; the detector, the stabilization
// validator and the fill simulator read on demand. Readers always get value
// copies, so they observe either the pre-update or the post-update snapshot,
// never a torn state.
package poolstate

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"solana-infra-watch/internal/domain"
)

const defaultMaxPools = 10_000

// Store maps poolAddress to its latest PoolStateSnapshot. LRU-bounded: a
// pool evicted under pressure rebuilds on its next swap.
type Store struct {
	cache *lru.Cache[string, domain.PoolStateSnapshot]
}

// New creates a Store bounded to maxPools entries. maxPools <= 0 uses the
// default bound.
func New(maxPools int) (*Store, error) {
	if maxPools <= 0 {
		maxPools = defaultMaxPools
	}
	cache, err := lru.New[string, domain.PoolStateSnapshot](maxPools)
	if err != nil {
		return nil, fmt.Errorf("pool cache: %w", err)
	}
	return &Store{cache: cache}, nil
}

// Put records the latest snapshot for its pool. Snapshots violating the
// reserve invariant are ignored; so are writes older than the stored slot,
// which keeps the store monotonic under out-of-order delivery.
func (s *Store) Put(snap domain.PoolStateSnapshot) {
	if !snap.Valid() {
		return
	}
	if cur, ok := s.cache.Get(snap.PoolAddress); ok && cur.Slot > snap.Slot {
		return
	}
	s.cache.Add(snap.PoolAddress, snap)
}

// Get returns the latest snapshot for a pool. ok is false when the pool is
// unknown or was evicted.
func (s *Store) Get(pool string) (domain.PoolStateSnapshot, bool) {
	return s.cache.Get(pool)
}

// Age returns how many slots have passed since the pool's snapshot. ok is
// false for unknown pools; consumers treat that as maximally stale.
func (s *Store) Age(pool string, currentSlot int64) (int64, bool) {
	snap, ok := s.cache.Get(pool)
	if !ok {
		return 0, false
	}
	age := currentSlot - snap.Slot
	if age < 0 {
		age = 0
	}
	return age, true
}

// Fresh returns the pool snapshot only when it is at most maxAgeSlots old at
// currentSlot. Consumers that cannot tolerate staleness refuse to act on a
// false return.
func (s *Store) Fresh(pool string, currentSlot, maxAgeSlots int64) (domain.PoolStateSnapshot, bool) {
	snap, ok := s.cache.Get(pool)
	if !ok {
		return domain.PoolStateSnapshot{}, false
	}
	if currentSlot-snap.Slot > maxAgeSlots {
		return domain.PoolStateSnapshot{}, false
	}
	return snap, true
}

// Len returns the number of tracked pools.
func (s *Store) Len() int {
	return s.cache.Len()
}
