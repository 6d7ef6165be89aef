// Package clock provides the single time source consumed by every pipeline
// component. Live mode backs it with the system clock plus the chain's slot
// feed; replay mode advances it manually so identical inputs produce
// identical outputs.
package clock

import (
	"sync/atomic"
	"time"
)

// Clock exposes the current time and slot height. Components never read wall
// time directly; every window, decay and timeout is phrased against a Clock.
type Clock interface {
	// Now returns the current Unix time in milliseconds.
	Now() int64
	// Slot returns the latest observed slot height.
	Slot() int64
}

// LiveClock combines the system clock with the most recent slot observed on
// the chain feed. Safe for concurrent use.
type LiveClock struct {
	slot atomic.Int64
}

// NewLive returns a LiveClock with no slot observed yet.
func NewLive() *LiveClock {
	return &LiveClock{}
}

// Now returns the system time in Unix milliseconds.
func (c *LiveClock) Now() int64 {
	return time.Now().UnixMilli()
}

// Slot returns the highest slot observed so far, 0 before the first
// observation.
func (c *LiveClock) Slot() int64 {
	return c.slot.Load()
}

// ObserveSlot records a slot seen on the feed. Regressions are ignored so
// the clock stays monotonic under out-of-order delivery.
func (c *LiveClock) ObserveSlot(slot int64) {
	for {
		cur := c.slot.Load()
		if slot <= cur {
			return
		}
		if c.slot.CompareAndSwap(cur, slot) {
			return
		}
	}
}

// ReplayClock is advanced explicitly by the replay driver. Advances are
// clamped to be monotonic; rewinding is a programming error and is ignored.
type ReplayClock struct {
	nowMs atomic.Int64
	slot  atomic.Int64
}

// NewReplay returns a ReplayClock positioned at the given start point.
func NewReplay(startMs, startSlot int64) *ReplayClock {
	c := &ReplayClock{}
	c.nowMs.Store(startMs)
	c.slot.Store(startSlot)
	return c
}

// Now returns the replayed Unix time in milliseconds.
func (c *ReplayClock) Now() int64 {
	return c.nowMs.Load()
}

// Slot returns the replayed slot height.
func (c *ReplayClock) Slot() int64 {
	return c.slot.Load()
}

// Advance moves the clock forward to (slot, nowMs). Components observing the
// clock immediately see the new position. Backward moves are dropped.
func (c *ReplayClock) Advance(slot, nowMs int64) {
	for {
		cur := c.slot.Load()
		if slot <= cur {
			break
		}
		if c.slot.CompareAndSwap(cur, slot) {
			break
		}
	}
	for {
		cur := c.nowMs.Load()
		if nowMs <= cur {
			return
		}
		if c.nowMs.CompareAndSwap(cur, nowMs) {
			return
		}
	}
}

// Compile-time interface checks.
var (
	_ Clock = (*LiveClock)(nil)
	_ Clock = (*ReplayClock)(nil)
)
