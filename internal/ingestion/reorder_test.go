package ingestion

import (
	"testing"

	"solana-infra-watch/internal/domain"
)

func bufEvent(slot int64, txIndex int, sig string) domain.SwapEvent {
	return domain.SwapEvent{
		Key:       domain.EventKey{Slot: slot, TxIndex: txIndex, InnerIndex: -1, LogIndex: 0},
		Signature: sig,
	}
}

func sigsOf(events []domain.SwapEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Signature
	}
	return out
}

func sameSigs(got []domain.SwapEvent, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i].Signature != want[i] {
			return false
		}
	}
	return true
}

func TestReorderHoldsWithinLag(t *testing.T) {
	r := NewReorder(5)

	for _, sig := range []string{"a", "b"} {
		slot := int64(100)
		if sig == "b" {
			slot = 101
		}
		out, ok := r.Add(bufEvent(slot, 0, sig))
		if !ok {
			t.Fatalf("event %s rejected", sig)
		}
		if len(out) != 0 {
			t.Fatalf("event %s released %v before lag passed", sig, sigsOf(out))
		}
	}
	if r.Pending() != 2 {
		t.Fatalf("Pending = %d, want 2", r.Pending())
	}

	out, ok := r.Add(bufEvent(106, 0, "c"))
	if !ok {
		t.Fatal("advancing event rejected")
	}
	if !sameSigs(out, "a", "b") {
		t.Fatalf("released %v, want [a b]", sigsOf(out))
	}
	if r.Pending() != 1 {
		t.Fatalf("Pending = %d after release, want 1", r.Pending())
	}
}

func TestReorderSortsWithinSlot(t *testing.T) {
	r := NewReorder(5)

	r.Add(bufEvent(100, 2, "third"))
	r.Add(bufEvent(100, 0, "first"))
	r.Add(bufEvent(100, 1, "second"))

	out, _ := r.Add(bufEvent(106, 0, "closer"))
	if !sameSigs(out, "first", "second", "third") {
		t.Fatalf("released %v, want key order", sigsOf(out))
	}
}

func TestReorderRejectsLateArrival(t *testing.T) {
	r := NewReorder(5)

	r.Add(bufEvent(100, 0, "a"))
	if _, ok := r.Add(bufEvent(95, 0, "late")); ok {
		t.Fatal("event at the horizon accepted")
	}
	if _, ok := r.Add(bufEvent(96, 0, "in-window")); !ok {
		t.Fatal("event inside the lag window rejected")
	}
	if r.Horizon() != 95 {
		t.Fatalf("Horizon = %d, want 95", r.Horizon())
	}
}

func TestReorderFlushReleasesEverything(t *testing.T) {
	r := NewReorder(5)

	r.Add(bufEvent(103, 0, "b"))
	r.Add(bufEvent(100, 0, "a"))

	out := r.Flush()
	if !sameSigs(out, "a", "b") {
		t.Fatalf("Flush released %v, want [a b]", sigsOf(out))
	}
	if r.Pending() != 0 {
		t.Fatalf("Pending = %d after flush, want 0", r.Pending())
	}
}

func TestReorderFlushAdvancesFloor(t *testing.T) {
	r := NewReorder(5)

	r.Add(bufEvent(100, 0, "a"))
	r.Flush()

	// A straggler for a flushed slot would land behind events already
	// released; it must reject instead of re-opening the slot.
	if _, ok := r.Add(bufEvent(98, 0, "straggler")); ok {
		t.Fatal("arrival for a flushed slot accepted")
	}
	if r.Horizon() != 100 {
		t.Fatalf("Horizon = %d after flush, want 100", r.Horizon())
	}

	if _, ok := r.Add(bufEvent(101, 0, "next")); !ok {
		t.Fatal("arrival past the flushed range rejected")
	}
}

func TestReorderDefaultLag(t *testing.T) {
	r := NewReorder(0)
	r.Add(bufEvent(100, 0, "a"))
	if r.Horizon() != 95 {
		t.Fatalf("Horizon = %d, want 95 with default lag", r.Horizon())
	}
}
