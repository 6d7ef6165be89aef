package domain

// StabilizationResult captures the price and volume assessment for one sell
// event over the stabilization window that follows the observation window.
type StabilizationResult struct {
	EventID string

	Stabilized bool

	// PriceRecoveryPct is avg(post-window prices) minus postEventPrice,
	// normalized to preEventPrice, in percent. Negative means further decline.
	PriceRecoveryPct float64

	// MadeNewLow is true when any post-window price dropped below
	// postEventPrice * (1 - newLowTolerance).
	MadeNewLow bool

	// VolumeContractionPct is (eventVolume - postVolume) / eventVolume * 100,
	// floored at 0. Higher means selling pressure dried up.
	VolumeContractionPct float64

	// DefenseLevel is the price immediately after the triggering sell.
	// DefenseHoldSlots counts post-window swaps priced at or above 95% of it;
	// DefenseHeld is true when no post-window price broke the 5% band.
	DefenseLevel     float64
	DefenseHoldSlots int
	DefenseHeld      bool

	// AdditionalLargeSells counts post-window sells of at least half the
	// triggering sell's base amount.
	AdditionalLargeSells int

	// ConfidenceScore is the 0..100 composite described in the validator.
	ConfidenceScore float64
}
