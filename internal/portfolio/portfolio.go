// Package portfolio governs the sandbox capital: position caps, open/mark/
// close accounting, excursion tracking, and the equity curve. The books must
// reconcile at all times:
//
//	capital + Σ(open cost) = starting + grossRealized − totalFees
//
// with realized P&L on trades reported net of fees.
package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/clock"
	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/idhash"
)

// Open rejections.
var (
	ErrMaxPositions        = errors.New("max concurrent positions reached")
	ErrPositionTooLarge    = errors.New("position exceeds max size")
	ErrInsufficientCapital = errors.New("insufficient capital")
	ErrDuplicateSignal     = errors.New("position already open for signal")
	ErrUnknownPosition     = errors.New("no open position for signal")
)

// Options configures a Portfolio.
type Options struct {
	Capital config.CapitalConfig
	Clock   clock.Clock
	Logger  zerolog.Logger
}

// Portfolio tracks virtual capital and positions. Driven by the single
// sandbox goroutine; not safe for concurrent use.
type Portfolio struct {
	cfg   config.CapitalConfig
	clock clock.Clock
	log   zerolog.Logger

	capital       float64
	grossRealized float64
	totalFees     float64

	open   map[string]*domain.VirtualPosition // by signal ID
	closed []domain.VirtualTrade
	equity []domain.EquityPoint

	peakEquity     float64
	maxDrawdown    float64
	maxDrawdownPct float64
}

// New creates a Portfolio with the configured starting capital.
func New(opts Options) *Portfolio {
	p := &Portfolio{
		cfg:        opts.Capital,
		clock:      opts.Clock,
		log:        opts.Logger.With().Str("component", "portfolio").Logger(),
		capital:    opts.Capital.StartingCapitalBase,
		open:       make(map[string]*domain.VirtualPosition),
		peakEquity: opts.Capital.StartingCapitalBase,
	}
	return p
}

// SizeFor returns the base amount to commit to the next position: bounded by
// the per-position cap, the per-trade risk share of current capital, and the
// capital itself.
func (p *Portfolio) SizeFor() float64 {
	size := p.cfg.MaxPositionSizeBase
	if risk := p.capital * p.cfg.RiskPerTradePct / 100; risk < size {
		size = risk
	}
	if p.capital < size {
		size = p.capital
	}
	return math.Max(0, size)
}

// Open books a filled entry under its signal. Caps are enforced before any
// capital moves; a rejection leaves the books untouched.
func (p *Portfolio) Open(sig domain.Signal, ev domain.SellEvent, cand domain.AbsorptionCandidate, fill domain.FillResult) (*domain.VirtualPosition, error) {
	if _, exists := p.open[sig.ID]; exists {
		return nil, ErrDuplicateSignal
	}
	if len(p.open) >= p.cfg.MaxConcurrentPositions {
		return nil, ErrMaxPositions
	}
	cost := fill.ExecutedAmountBase
	if cost > p.cfg.MaxPositionSizeBase {
		return nil, fmt.Errorf("%w: %.6f > %.6f", ErrPositionTooLarge, cost, p.cfg.MaxPositionSizeBase)
	}
	if cost+fill.FeesBase > p.capital {
		return nil, fmt.Errorf("%w: need %.6f, have %.6f", ErrInsufficientCapital, cost+fill.FeesBase, p.capital)
	}

	pos := &domain.VirtualPosition{
		SignalID:         sig.ID,
		EventID:          sig.TriggerSellEventID,
		TokenMint:        sig.TokenMint,
		PoolAddress:      sig.PoolAddress,
		Absorber:         sig.AbsorberWallet,
		EntrySlot:        fill.ExecutionSlot,
		EntryPrice:       fill.FillPrice,
		EntrySlippageBps: fill.SlippageBps,
		EntryFees:        fill.FeesBase,
		CostBase:         cost,
		AmountToken:      cost / fill.FillPrice,
		LastPrice:        fill.FillPrice,
		SignalStrength:   sig.Strength,
		OpenedAt:         p.clock.Now(),
	}

	p.capital -= cost + fill.FeesBase
	p.totalFees += fill.FeesBase
	p.open[sig.ID] = pos

	p.log.Debug().
		Str("signal_id", sig.ID).
		Str("token", pos.TokenMint).
		Float64("cost", cost).
		Float64("entry_price", pos.EntryPrice).
		Msg("position opened")
	return pos, nil
}

// Mark updates every open position on the token with a fresh price and
// samples the equity curve.
func (p *Portfolio) Mark(tokenMint string, price float64, slot int64) {
	touched := false
	for _, pos := range p.open {
		if pos.TokenMint != tokenMint {
			continue
		}
		p.markPosition(pos, price)
		touched = true
	}
	if touched {
		p.sampleEquity(slot)
	}
}

func (p *Portfolio) markPosition(pos *domain.VirtualPosition, price float64) {
	pos.LastPrice = price
	pos.UnrealizedPnl = pos.AmountToken*price - pos.CostBase
	if pos.UnrealizedPnl < pos.MAE {
		pos.MAE = pos.UnrealizedPnl
	}
	if pos.UnrealizedPnl > pos.MFE {
		pos.MFE = pos.UnrealizedPnl
	}
}

// Close realizes a position at the exit fill. The final mark at the exit
// price lands in MAE/MFE before they freeze into the trade record.
func (p *Portfolio) Close(signalID string, fill domain.FillResult, reason string, ev domain.SellEvent, cand domain.AbsorptionCandidate, confirmed bool) (*domain.VirtualTrade, error) {
	pos, ok := p.open[signalID]
	if !ok {
		return nil, ErrUnknownPosition
	}
	delete(p.open, signalID)

	p.markPosition(pos, fill.FillPrice)

	proceeds := pos.AmountToken * fill.FillPrice
	p.capital += proceeds - fill.FeesBase
	p.grossRealized += proceeds - pos.CostBase
	p.totalFees += fill.FeesBase

	net := proceeds - pos.CostBase - pos.EntryFees - fill.FeesBase
	trade := domain.VirtualTrade{
		TradeID:          idhash.ComputeTradeID(signalID, pos.EntrySlot),
		SignalID:         signalID,
		EventID:          pos.EventID,
		TokenMint:        pos.TokenMint,
		PoolAddress:      pos.PoolAddress,
		Absorber:         pos.Absorber,
		EntrySlot:        pos.EntrySlot,
		EntryPrice:       pos.EntryPrice,
		EntrySlippageBps: pos.EntrySlippageBps,
		EntryFees:        pos.EntryFees,
		CostBase:         pos.CostBase,
		AmountToken:      pos.AmountToken,
		ExitSlot:         fill.ExecutionSlot,
		ExitPrice:        fill.FillPrice,
		ExitSlippageBps:  fill.SlippageBps,
		ExitFees:         fill.FeesBase,
		ExitReason:       reason,
		RealizedPnl:      net,
		HoldingSlots:     fill.ExecutionSlot - pos.EntrySlot,
		MAE:              pos.MAE,
		MFE:              pos.MFE,

		SignalStrength:         pos.SignalStrength,
		StabilizationConfirmed: confirmed,
		SellFractionOfPool:     ev.FractionOfPool,
		AbsorptionFraction:     cand.AbsorptionFraction,
	}
	if pos.CostBase > 0 {
		trade.ReturnPct = net / pos.CostBase * 100
	}
	p.closed = append(p.closed, trade)
	p.sampleEquity(fill.ExecutionSlot)

	p.log.Debug().
		Str("trade_id", trade.TradeID).
		Str("reason", reason).
		Float64("pnl", net).
		Msg("position closed")
	return &trade, nil
}

// sampleEquity appends one equity point and refreshes peak/drawdown.
func (p *Portfolio) sampleEquity(slot int64) {
	equity := p.capital
	for _, pos := range p.open {
		equity += pos.AmountToken * pos.LastPrice
	}
	if equity > p.peakEquity {
		p.peakEquity = equity
	}
	dd := p.peakEquity - equity
	ddPct := 0.0
	if p.peakEquity > 0 {
		ddPct = dd / p.peakEquity * 100
	}
	if dd > p.maxDrawdown {
		p.maxDrawdown = dd
		p.maxDrawdownPct = ddPct
	}
	p.equity = append(p.equity, domain.EquityPoint{
		Slot:        slot,
		Timestamp:   p.clock.Now(),
		Capital:     p.capital,
		Equity:      equity,
		DrawdownPct: ddPct,
	})
}

// Reconcile verifies the capital identity and returns an error naming the
// drift when the books disagree.
func (p *Portfolio) Reconcile() error {
	var openCost float64
	for _, pos := range p.open {
		openCost += pos.CostBase
	}
	lhs := p.capital + openCost
	rhs := p.cfg.StartingCapitalBase + p.grossRealized - p.totalFees
	if math.Abs(lhs-rhs) > 1e-6 {
		return fmt.Errorf("books out of balance: capital %.9f + open cost %.9f = %.9f, expected %.9f",
			p.capital, openCost, lhs, rhs)
	}
	return nil
}

// Capital returns the free capital.
func (p *Portfolio) Capital() float64 { return p.capital }

// OpenCount returns the number of open positions.
func (p *Portfolio) OpenCount() int { return len(p.open) }

// OpenPositions returns copies of the open positions sorted by signal ID.
func (p *Portfolio) OpenPositions() []domain.VirtualPosition {
	out := make([]domain.VirtualPosition, 0, len(p.open))
	for _, pos := range p.open {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalID < out[j].SignalID })
	return out
}

// Position returns a copy of one open position.
func (p *Portfolio) Position(signalID string) (domain.VirtualPosition, bool) {
	pos, ok := p.open[signalID]
	if !ok {
		return domain.VirtualPosition{}, false
	}
	return *pos, true
}

// ClosedTrades returns the closed trades in close order.
func (p *Portfolio) ClosedTrades() []domain.VirtualTrade {
	out := make([]domain.VirtualTrade, len(p.closed))
	copy(out, p.closed)
	return out
}

// EquityCurve returns the sampled equity history.
func (p *Portfolio) EquityCurve() []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(p.equity))
	copy(out, p.equity)
	return out
}

// Drawdown returns the worst equity dip seen so far, as an amount and as a
// percent of the peak at the time.
func (p *Portfolio) Drawdown() (amount, pct float64) {
	return p.maxDrawdown, p.maxDrawdownPct
}

// PeakEquity returns the highest equity sampled so far.
func (p *Portfolio) PeakEquity() float64 { return p.peakEquity }

// TotalFees returns all fees paid.
func (p *Portfolio) TotalFees() float64 { return p.totalFees }
