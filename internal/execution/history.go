package execution

import (
	"sort"
	"sync"

	"solana-infra-watch/internal/domain"
)

// PoolHistory is the recorded pool-state timeline the fill simulator quotes
// against. Snapshots arrive in slot order from the event stream; lookups
// find the greatest recorded slot at or before the requested one.
type PoolHistory struct {
	mu    sync.RWMutex
	pools map[string][]domain.PoolStateSnapshot
}

// NewPoolHistory creates an empty history.
func NewPoolHistory() *PoolHistory {
	return &PoolHistory{pools: make(map[string][]domain.PoolStateSnapshot)}
}

// Record appends a snapshot to its pool's timeline. Invalid snapshots and
// slot regressions are dropped; a snapshot at the already-recorded head slot
// replaces it, keeping one entry per (pool, slot).
func (h *PoolHistory) Record(snap domain.PoolStateSnapshot) {
	if !snap.Valid() {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	line := h.pools[snap.PoolAddress]
	if n := len(line); n > 0 {
		last := line[n-1].Slot
		if snap.Slot < last {
			return
		}
		if snap.Slot == last {
			line[n-1] = snap
			return
		}
	}
	h.pools[snap.PoolAddress] = append(line, snap)
}

// AtOrBefore returns the latest snapshot of the pool recorded at or before
// slot, and whether one exists.
func (h *PoolHistory) AtOrBefore(pool string, slot int64) (domain.PoolStateSnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	line := h.pools[pool]
	// First index with Slot > slot; the entry before it is the answer.
	i := sort.Search(len(line), func(i int) bool { return line[i].Slot > slot })
	if i == 0 {
		return domain.PoolStateSnapshot{}, false
	}
	return line[i-1], true
}

// Len returns the number of snapshots recorded for a pool.
func (h *PoolHistory) Len(pool string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pools[pool])
}
