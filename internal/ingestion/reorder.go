package ingestion

import (
	"sort"

	"solana-infra-watch/internal/domain"
)

// defaultSlotLag is how many slots behind the newest seen slot an event may
// arrive and still be sequenced. WebSocket notifications for one slot can
// interleave with the next few slots; five slots of lag covers the observed
// jitter on public RPC providers.
const defaultSlotLag = 5

// Reorder buffers normalized events per slot and releases a slot once the
// stream has advanced past it by the lag window, so consumers see events in
// total EventKey order even when the feed delivers them shuffled. Released
// slots sit behind the floor; arrivals at or behind it can no longer be
// sequenced and are rejected. Not safe for concurrent use; the intake
// goroutine owns it.
type Reorder struct {
	lag     int64
	highest int64
	floor   int64
	buf     map[int64][]domain.SwapEvent
}

// NewReorder creates a buffer with the given lag window. Non-positive lag
// uses the default.
func NewReorder(lag int64) *Reorder {
	if lag <= 0 {
		lag = defaultSlotLag
	}
	return &Reorder{
		lag: lag,
		buf: make(map[int64][]domain.SwapEvent),
	}
}

// Add buffers ev and returns any events its arrival finalized, in total
// order. Events at or behind the floor are rejected; the caller drops and
// counts them.
func (r *Reorder) Add(ev domain.SwapEvent) ([]domain.SwapEvent, bool) {
	slot := ev.Key.Slot
	if slot <= r.floor {
		return nil, false
	}
	r.buf[slot] = append(r.buf[slot], ev)
	if slot > r.highest {
		r.highest = slot
		return r.release(r.highest - r.lag), true
	}
	return nil, true
}

// Flush releases everything still buffered, ordered, and advances the floor
// past it so stragglers for flushed slots reject as late instead of
// re-opening a released slot. Called when the stream goes quiet for a full
// flush interval, by which point the lag window has passed in wall time,
// and on shutdown.
func (r *Reorder) Flush() []domain.SwapEvent {
	return r.release(r.highest)
}

// Horizon returns the floor: the newest slot at or behind which arrivals
// are rejected.
func (r *Reorder) Horizon() int64 {
	return r.floor
}

// Highest returns the newest slot seen.
func (r *Reorder) Highest() int64 {
	return r.highest
}

// Pending returns the number of slots currently buffered.
func (r *Reorder) Pending() int {
	return len(r.buf)
}

func (r *Reorder) release(limit int64) []domain.SwapEvent {
	if limit > r.floor {
		r.floor = limit
	}

	var slots []int64
	for slot := range r.buf {
		if slot <= limit {
			slots = append(slots, slot)
		}
	}
	if len(slots) == 0 {
		return nil
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	var out []domain.SwapEvent
	for _, slot := range slots {
		events := r.buf[slot]
		sort.Slice(events, func(i, j int) bool { return events[i].Key.Less(events[j].Key) })
		out = append(out, events...)
		delete(r.buf, slot)
	}
	return out
}
