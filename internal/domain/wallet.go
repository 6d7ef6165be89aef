package domain

// Wallet classification labels. Classification is a pure function of the
// behavior's aggregates and the configured thresholds.
const (
	ClassCandidate       = "candidate"
	ClassDefensiveInfra  = "defensive-infra"
	ClassAggressiveInfra = "aggressive-infra"
	ClassCyclical        = "cyclical"
	ClassOpportunistic   = "opportunistic"
	ClassNoise           = "noise"
)

// Wallet tracking status.
const (
	StatusActive     = "active"
	StatusDecaying   = "decaying"
	StatusDeprecated = "deprecated"
)

// Activity pattern derived from inter-event gaps.
const (
	PatternConsistent    = "consistent"
	PatternCyclical      = "cyclical"
	PatternOpportunistic = "opportunistic"
)

// Evidence outcome codes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePending = "pending"
)

// AbsorptionEvidence is one entry of a wallet's evidence log: a single
// absorption episode and whether the market stabilized afterwards.
type AbsorptionEvidence struct {
	EventID              string
	TokenMint            string
	Slot                 int64
	Timestamp            int64 // Unix timestamp in milliseconds
	AbsorptionFraction   float64
	Stabilized           bool
	ResponseLatencySlots int64
	Outcome              string // success | failure | pending
}

// WalletBehavior is the longitudinal profile of one wallet. Owned exclusively
// by the scorer; everything downstream consumes copies.
type WalletBehavior struct {
	Wallet    string
	FirstSeen int64 // Unix timestamp in milliseconds
	LastSeen  int64 // Unix timestamp in milliseconds

	TotalAbsorptions      int
	SuccessfulAbsorptions int
	UniqueTokens          map[string]struct{}
	EvidenceLog           []AbsorptionEvidence // ring, most recent last, bounded

	StabilizationSuccessRate float64 // successful / total
	AvgAbsorptionFraction    float64
	AvgResponseLatency       float64 // slots
	SizeConsistency          float64 // 0..100, higher = lower variation
	ActivityPattern          string  // consistent | cyclical | opportunistic

	Confidence     float64 // 0..100
	Classification string  // candidate | defensive-infra | ... | noise
	Status         string  // active | decaying | deprecated
}

// IsInfra reports whether the wallet currently carries an infrastructure
// classification.
func (w *WalletBehavior) IsInfra() bool {
	return w.Classification == ClassDefensiveInfra || w.Classification == ClassAggressiveInfra
}

// Clone returns a deep copy safe to hand outside the scorer.
func (w *WalletBehavior) Clone() WalletBehavior {
	cp := *w
	cp.UniqueTokens = make(map[string]struct{}, len(w.UniqueTokens))
	for mint := range w.UniqueTokens {
		cp.UniqueTokens[mint] = struct{}{}
	}
	cp.EvidenceLog = make([]AbsorptionEvidence, len(w.EvidenceLog))
	copy(cp.EvidenceLog, w.EvidenceLog)
	return cp
}
