package domain

// Signal lifecycle states.
const (
	SignalActive      = "active"
	SignalConfirmed   = "confirmed"
	SignalExpired     = "expired"
	SignalInvalidated = "invalidated"
)

// Signal is the live-mode output: a tracked infrastructure wallet is
// currently absorbing a large sell on a token. At most one open signal per
// (tokenMint, sellEventID).
type Signal struct {
	ID                 string // deterministic hash
	TokenMint          string
	PoolAddress        string
	TriggerSellEventID string
	AbsorberWallet     string

	// DefendedPrice is the post-event price the absorber is defending.
	DefendedPrice float64

	// Strength is the 0..100 ranking mix of absorption size, response
	// speed, absorber classification, and sell significance.
	Strength float64

	StabilizationConfirmed bool
	Status                 string // active | confirmed | expired | invalidated

	CreatedAtSlot int64
	CreatedAt     int64 // Unix timestamp in milliseconds, from the active clock
}
