package domain

// FinalizedWindow is the analyzer's output when a sell event's observation
// window closes: the event (now analyzing) plus its meaningful candidates
// sorted by absorption fraction descending, and the window's traded volume
// needed by the stabilization validator.
type FinalizedWindow struct {
	Event      SellEvent
	Candidates []AbsorptionCandidate

	// WindowVolumeBase is the total base volume traded on the token during
	// the observation window, the reference for volume contraction.
	WindowVolumeBase float64
	WindowSwapCount  int
}

// ValidationOutcome pairs a finalized sell event with its stabilization
// verdict; this is the scorer's input and drives signal confirmation.
type ValidationOutcome struct {
	Event      SellEvent
	Result     StabilizationResult
	Candidates []AbsorptionCandidate
}
