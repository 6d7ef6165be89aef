// Package execution simulates order fills against recorded pool history.
// All randomness flows through a seeded linear congruential generator and
// every fill consumes exactly three draws, so identical (seed, history,
// request sequence) triples produce bit-identical outcomes.
package execution

import (
	"math"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/domain"
)

// FillRequest describes one order handed to the simulator.
type FillRequest struct {
	Side        string // "buy" | "sell"
	AmountBase  float64
	TokenMint   string
	PoolAddress string
	CurrentSlot int64
}

// Options configures a Simulator.
type Options struct {
	Params  domain.ExecutionParams
	History *PoolHistory
	Seed    uint32
	Logger  zerolog.Logger
}

// Simulator executes virtual orders. Driven by the single sandbox goroutine;
// not safe for concurrent use.
type Simulator struct {
	params  domain.ExecutionParams
	history *PoolHistory
	rng     *PRNG
	log     zerolog.Logger

	attempts int
	filled   int
	failures map[string]int
}

// New creates a Simulator.
func New(opts Options) *Simulator {
	return &Simulator{
		params:   opts.Params,
		history:  opts.History,
		rng:      NewPRNG(opts.Seed),
		log:      opts.Logger.With().Str("component", "execution").Logger(),
		failures: make(map[string]int),
	}
}

// Fill runs one order through the friction model: latency, quote lookup,
// stale/route/partial draws, slippage, fees. The three uniform draws happen
// up front on every call so failed fills keep the generator stream aligned.
func (s *Simulator) Fill(req FillRequest) domain.FillResult {
	s.attempts++

	uQuote := s.rng.Float64()
	uRoute := s.rng.Float64()
	uPartial := s.rng.Float64()

	execSlot := req.CurrentSlot + s.params.LatencySlots
	res := domain.FillResult{ExecutionSlot: execSlot}

	snap, ok := s.history.AtOrBefore(req.PoolAddress, execSlot)
	if !ok {
		return s.fail(res, domain.FillFailInsufficientState)
	}
	if req.AmountBase <= 0 {
		return s.fail(res, domain.FillFailRouteFail)
	}
	if uQuote < s.params.QuoteStaleProb {
		return s.fail(res, domain.FillFailQuoteStale)
	}
	if uRoute < s.params.RouteFailProb {
		return s.fail(res, domain.FillFailRouteFail)
	}

	executed := req.AmountBase
	if uPartial < s.params.PartialFillProb {
		executed *= s.params.PartialFillRatio
		res.Partial = true
	}

	slippageBps := s.slippage(req.Side, executed, snap)
	if s.params.SlippageBps > 0 && math.Abs(slippageBps) > 2*s.params.SlippageBps {
		return s.fail(res, domain.FillFailSlippageExceeded)
	}

	res.Filled = true
	res.FillPrice = snap.PriceBasePerToken * (1 + slippageBps/10_000)
	res.SlippageBps = slippageBps
	res.FeesBase = executed*s.params.LpFeeBps/10_000 + s.params.PriorityFee
	res.ExecutedAmountBase = executed
	s.filled++
	return res
}

func (s *Simulator) fail(res domain.FillResult, reason string) domain.FillResult {
	res.FailReason = reason
	s.failures[reason]++
	s.log.Debug().Str("reason", reason).Int64("slot", res.ExecutionSlot).Msg("fill failed")
	return res
}

// slippage returns the signed deviation from the pool price in bps: positive
// for buys (paying a premium), negative for sells (receiving a discount).
func (s *Simulator) slippage(side string, amountBase float64, snap domain.PoolStateSnapshot) float64 {
	switch s.params.SlippageModel {
	case domain.SlippageNone:
		return 0
	case domain.SlippageConstant:
		if side == domain.SideSell {
			return -s.params.SlippageBps
		}
		return s.params.SlippageBps
	case domain.SlippageReserves:
		return reservesSlippage(side, amountBase, snap)
	default:
		return 0
	}
}

// reservesSlippage walks the constant product: the order moves the reserves,
// the realized average price diverges from the spot price as the order grows
// relative to pool depth.
func reservesSlippage(side string, amountBase float64, snap domain.PoolStateSnapshot) float64 {
	rb, rt := snap.ReserveBase, snap.ReserveToken
	k := rb * rt
	spot := rb / rt

	var exec float64
	if side == domain.SideSell {
		tokenIn := amountBase / spot
		baseOut := rb - k/(rt+tokenIn)
		exec = baseOut / tokenIn
	} else {
		tokensOut := rt - k/(rb+amountBase)
		exec = amountBase / tokensOut
	}
	return (exec - spot) / spot * 10_000
}

// Stats reports fill counters since construction.
type Stats struct {
	Attempts int
	Filled   int
	Failures map[string]int
}

// Stats returns a copy of the counters.
func (s *Simulator) Stats() Stats {
	failures := make(map[string]int, len(s.failures))
	for k, v := range s.failures {
		failures[k] = v
	}
	return Stats{Attempts: s.attempts, Filled: s.filled, Failures: failures}
}
