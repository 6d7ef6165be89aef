// Package oracle provides optional USD market data for pool snapshots. The
// pipeline treats it as best-effort: when the oracle is unavailable the
// snapshots simply carry no LiquidityUsd and detection runs on reserves alone.
package oracle

import "context"

// Oracle resolves USD-denominated market data for a token mint. The boolean
// is false when the value is unknown, stale or the provider is unavailable.
type Oracle interface {
	PriceUsd(ctx context.Context, mint string) (float64, bool)
	LiquidityUsd(ctx context.Context, mint string) (float64, bool)
}

// Nop is an Oracle that never knows anything. Used when the oracle is
// disabled and in replay mode, where USD figures come from the dataset.
type Nop struct{}

func (Nop) PriceUsd(context.Context, string) (float64, bool)     { return 0, false }
func (Nop) LiquidityUsd(context.Context, string) (float64, bool) { return 0, false }

// Static serves fixed values from maps. Test helper.
type Static struct {
	Prices    map[string]float64
	Liquidity map[string]float64
}

func (s Static) PriceUsd(_ context.Context, mint string) (float64, bool) {
	v, ok := s.Prices[mint]
	return v, ok
}

func (s Static) LiquidityUsd(_ context.Context, mint string) (float64, bool) {
	v, ok := s.Liquidity[mint]
	return v, ok
}

var (
	_ Oracle = Nop{}
	_ Oracle = Static{}
)
