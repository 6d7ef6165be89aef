package domain

// AbsorptionCandidate accumulates buy-side activity by a single wallet inside
// one sell event's observation window. One candidate per (event, wallet)
// pair; the analyzer owns it until the window closes, then a snapshot flows
// downstream.
type AbsorptionCandidate struct {
	EventID   string
	Wallet    string
	TokenMint string

	TotalBuyBase float64
	BuyCount     int

	// AbsorptionFraction is totalBuyBase / sellAmountBase. Non-decreasing
	// until the window closes, constant afterwards.
	AbsorptionFraction float64

	// ResponseLatencySlots is the gap between the triggering sell and the
	// wallet's first attributed buy.
	ResponseLatencySlots int64

	// AvgPriceImpact is the volume-weighted average buy price relative to
	// preEventPrice, in percent. Negative means the wallet bought below it.
	AvgPriceImpact float64

	FirstBuySlot int64
	LastBuySlot  int64

	// BoughtDuringDip is true when the weighted average buy price sits below
	// preEventPrice.
	BoughtDuringDip bool
}

// Meaningful reports whether the candidate qualifies for scoring: absorbed
// within the configured band, bought into the dip, and responded within the
// latency bound.
func (c AbsorptionCandidate) Meaningful(minAbsorption, maxAbsorption float64, maxLatencySlots int64) bool {
	return c.AbsorptionFraction >= minAbsorption &&
		c.AbsorptionFraction <= maxAbsorption &&
		c.BoughtDuringDip &&
		c.ResponseLatencySlots <= maxLatencySlots
}
