package domain

// SellEvent lifecycle states. Transitions are forward-only:
// observing → analyzing → validated | invalidated.
const (
	SellStateObserving   = "observing"
	SellStateAnalyzing   = "analyzing"
	SellStateValidated   = "validated"
	SellStateInvalidated = "invalidated"
)

// SellEvent is produced by the large-sell detector when a sell lands inside
// the configured fraction-of-pool band. It owns its absorption candidates
// until the observation window closes; the scorer then consumes a snapshot.
type SellEvent struct {
	ID           string // deterministic hash, see idhash.SellEventID
	TokenMint    string
	PoolAddress  string
	Slot         int64
	BlockTime    int64  // Unix seconds
	SellerWallet string

	SellAmountBase float64 // base currency received by the seller
	FractionOfPool float64 // sellAmountBase / pre-event reserveBase

	PreEventPrice  float64 // rolling average price strictly before the event
	PostEventPrice float64 // pool price immediately after the event

	WindowEndSlot int64  // slot + absorptionWindowSlots
	State         string // observing | analyzing | validated | invalidated
}

// ValidSellTransition reports whether a SellEvent may move from one state
// to another. Aborted windows jump straight from observing to invalidated;
// everything else steps through analyzing. Terminal states never change.
func ValidSellTransition(from, to string) bool {
	switch from {
	case SellStateObserving:
		return to == SellStateAnalyzing || to == SellStateInvalidated
	case SellStateAnalyzing:
		return to == SellStateValidated || to == SellStateInvalidated
	default:
		return false
	}
}

// TransitionTo applies a lifecycle transition and reports whether it was
// legal. Illegal transitions leave the state untouched.
func (s *SellEvent) TransitionTo(to string) bool {
	if !ValidSellTransition(s.State, to) {
		return false
	}
	s.State = to
	return true
}
