package domain

import "testing"

func TestValidSellTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{SellStateObserving, SellStateAnalyzing, true},
		{SellStateObserving, SellStateInvalidated, true}, // abort path
		{SellStateObserving, SellStateValidated, false},
		{SellStateAnalyzing, SellStateValidated, true},
		{SellStateAnalyzing, SellStateInvalidated, true},
		{SellStateAnalyzing, SellStateObserving, false},
		{SellStateValidated, SellStateInvalidated, false},
		{SellStateValidated, SellStateObserving, false},
		{SellStateInvalidated, SellStateValidated, false},
		{SellStateInvalidated, SellStateAnalyzing, false},
	}
	for _, c := range cases {
		if got := ValidSellTransition(c.from, c.to); got != c.want {
			t.Errorf("ValidSellTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTransitionToLeavesTerminalStatesAlone(t *testing.T) {
	ev := SellEvent{ID: "s-1", State: SellStateObserving}

	if !ev.TransitionTo(SellStateAnalyzing) {
		t.Fatal("observing -> analyzing refused")
	}
	if !ev.TransitionTo(SellStateValidated) {
		t.Fatal("analyzing -> validated refused")
	}
	if ev.TransitionTo(SellStateInvalidated) {
		t.Error("validated -> invalidated accepted")
	}
	if ev.State != SellStateValidated {
		t.Errorf("State = %s after refused transition, want validated", ev.State)
	}
}
