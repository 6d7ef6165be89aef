package domain

// Side of a swap from the trader's perspective.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// EventKey is the total ordering identity of an on-chain event:
// (slot, tx_index, inner_index, log_index). Unique within a run.
type EventKey struct {
	Slot       int64 // Solana slot number
	TxIndex    int   // position of the transaction within the block
	InnerIndex int   // position of the inner instruction, -1 for top-level
	LogIndex   int   // position of the log line within the transaction
}

// Compare returns negative if k < other, zero if equal, positive if k > other.
// Order: (slot, tx_index, inner_index, log_index) ascending.
func (k EventKey) Compare(other EventKey) int {
	if k.Slot != other.Slot {
		if k.Slot < other.Slot {
			return -1
		}
		return 1
	}
	if k.TxIndex != other.TxIndex {
		if k.TxIndex < other.TxIndex {
			return -1
		}
		return 1
	}
	if k.InnerIndex != other.InnerIndex {
		if k.InnerIndex < other.InnerIndex {
			return -1
		}
		return 1
	}
	if k.LogIndex != other.LogIndex {
		if k.LogIndex < other.LogIndex {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether k orders strictly before other.
func (k EventKey) Less(other EventKey) bool {
	return k.Compare(other) < 0
}

// SwapEvent is the canonical unit flowing through the pipeline.
// Immutable once emitted by the normalizer; passed by value downstream.
type SwapEvent struct {
	Key         EventKey // total ordering identity
	Signature   string   // transaction signature (opaque, dedup key)
	BlockTime   int64    // Unix timestamp in seconds
	ProgramID   string   // DEX program that executed the swap
	PoolAddress string   // AMM pool account
	TokenMint   string   // traded token mint
	BaseMint    string   // base currency mint (WSOL for SOL pairs)
	Trader      string   // wallet whose balances changed on both sides
	Side        string   // "buy" | "sell"

	AmountBase  float64 // base currency quantity (in for buys, out for sells)
	AmountToken float64 // token quantity (out for buys, in for sells)

	// PriceBasePerToken is derived from the traded amounts when both are
	// positive, otherwise from the pool snapshot.
	PriceBasePerToken float64

	// PoolState is the last-known pool snapshot at this event.
	PoolState PoolStateSnapshot
}

// PoolStateSnapshot captures reserves and derived price for one pool at a slot.
// Invariant: ReserveBase, ReserveToken > 0 and
// PriceBasePerToken = ReserveBase / ReserveToken (constant-product).
type PoolStateSnapshot struct {
	Slot              int64
	PoolAddress       string
	ReserveBase       float64
	ReserveToken      float64
	PriceBasePerToken float64
	LiquidityUsd      *float64 // nullable: oracle may be unavailable
}

// Valid reports whether the snapshot satisfies the reserve invariant.
func (p PoolStateSnapshot) Valid() bool {
	return p.ReserveBase > 0 && p.ReserveToken > 0
}
