package replay

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/execution"
	"solana-infra-watch/internal/portfolio"
)

// Trader converts emitted signals into virtual positions and realizes them
// when their signals resolve. It is the only component touching the
// portfolio, so all capital movement happens in event order.
type Trader struct {
	portfolio *portfolio.Portfolio
	sim       *execution.Simulator
	log       zerolog.Logger

	// open keys the entry context by signal ID; the triggering sell event
	// and the winning candidate are carried through to the trade record.
	open map[string]entryContext
	errs []string
}

// entryContext is the attribution carried from entry to exit.
type entryContext struct {
	ev   domain.SellEvent
	cand domain.AbsorptionCandidate
}

// TraderOptions configures a Trader.
type TraderOptions struct {
	Portfolio *portfolio.Portfolio
	Simulator *execution.Simulator
	Logger    zerolog.Logger
}

// NewTrader creates a Trader.
func NewTrader(opts TraderOptions) *Trader {
	return &Trader{
		portfolio: opts.Portfolio,
		sim:       opts.Simulator,
		log:       opts.Logger.With().Str("component", "sandbox").Logger(),
		open:      make(map[string]entryContext),
	}
}

// OnSignal attempts an entry for a freshly emitted signal. Sizing and cap
// rejections skip the entry and surface in the run errors; an entry fill
// reporting no pool state is a determinism violation and aborts the run.
func (t *Trader) OnSignal(sig *domain.Signal, fw domain.FinalizedWindow, slot int64) error {
	cand, ok := candidateFor(fw, sig.AbsorberWallet)
	if !ok {
		t.recordErr(fmt.Sprintf("signal %s names absorber %s absent from its window", sig.ID, sig.AbsorberWallet))
		return nil
	}

	size := t.portfolio.SizeFor()
	if size <= 0 {
		t.recordErr(fmt.Sprintf("signal %s skipped: no free capital", sig.ID))
		return nil
	}

	fill := t.sim.Fill(execution.FillRequest{
		Side:        domain.SideBuy,
		AmountBase:  size,
		TokenMint:   sig.TokenMint,
		PoolAddress: sig.PoolAddress,
		CurrentSlot: slot,
	})
	if !fill.Filled {
		if fill.FailReason == domain.FillFailInsufficientState {
			return fmt.Errorf("%w: pool %s at slot %d", ErrUnknownPool, sig.PoolAddress, fill.ExecutionSlot)
		}
		t.recordErr(fmt.Sprintf("entry fill for signal %s failed: %s", sig.ID, fill.FailReason))
		return nil
	}

	pos, err := t.portfolio.Open(*sig, fw.Event, cand, fill)
	if err != nil {
		t.recordErr(fmt.Sprintf("entry for signal %s rejected: %v", sig.ID, err))
		return nil
	}
	t.open[sig.ID] = entryContext{ev: fw.Event, cand: cand}

	t.log.Info().
		Str("signal_id", sig.ID).
		Str("token", sig.TokenMint).
		Float64("cost", pos.CostBase).
		Float64("entry_price", pos.EntryPrice).
		Msg("virtual position opened")
	return nil
}

// OnResolved exits the position for a resolved signal: a confirmed
// stabilization realizes the defense premium, an expired signal cuts the
// position loose.
func (t *Trader) OnResolved(sig *domain.Signal, slot int64) {
	reason := domain.ExitReasonExpired
	confirmed := false
	if sig.Status == domain.SignalConfirmed {
		reason = domain.ExitReasonStabilized
		confirmed = true
	}
	t.closePosition(sig.ID, reason, confirmed, slot)
}

// Mark flows the swap price into every open position on the token.
func (t *Trader) Mark(ev domain.SwapEvent) {
	if ev.PriceBasePerToken <= 0 {
		return
	}
	t.portfolio.Mark(ev.TokenMint, ev.PriceBasePerToken, ev.Key.Slot)
}

// CloseAll liquidates every open position, in signal-ID order, with the
// given exit reason. Used on dataset EOF and on shutdown.
func (t *Trader) CloseAll(reason string, slot int64) {
	for _, pos := range t.portfolio.OpenPositions() {
		t.closePosition(pos.SignalID, reason, false, slot)
	}
}

func (t *Trader) closePosition(signalID, reason string, confirmed bool, slot int64) {
	ectx, ok := t.open[signalID]
	if !ok {
		return
	}
	pos, ok := t.portfolio.Position(signalID)
	if !ok {
		delete(t.open, signalID)
		return
	}

	fill := t.sim.Fill(execution.FillRequest{
		Side:        domain.SideSell,
		AmountBase:  pos.AmountToken * pos.LastPrice,
		TokenMint:   pos.TokenMint,
		PoolAddress: pos.PoolAddress,
		CurrentSlot: slot,
	})
	if !fill.Filled {
		// The position must settle regardless, so a failed exit falls back
		// to a frictionless close at the last marked price.
		t.recordErr(fmt.Sprintf("exit fill for signal %s failed (%s), closed at last price", signalID, fill.FailReason))
		fill = domain.FillResult{
			Filled:        true,
			ExecutionSlot: fill.ExecutionSlot,
			FillPrice:     pos.LastPrice,
		}
	}

	trade, err := t.portfolio.Close(signalID, fill, reason, ectx.ev, ectx.cand, confirmed)
	delete(t.open, signalID)
	if err != nil {
		t.recordErr(fmt.Sprintf("close for signal %s failed: %v", signalID, err))
		return
	}
	t.log.Info().
		Str("trade_id", trade.TradeID).
		Str("reason", reason).
		Float64("pnl", trade.RealizedPnl).
		Msg("virtual position closed")
}

// OpenCount returns the number of positions the trader is carrying.
func (t *Trader) OpenCount() int {
	return len(t.open)
}

// Errors returns the non-fatal incidents recorded during the run, sorted.
func (t *Trader) Errors() []string {
	out := make([]string, len(t.errs))
	copy(out, t.errs)
	sort.Strings(out)
	return out
}

func (t *Trader) recordErr(msg string) {
	t.errs = append(t.errs, msg)
	t.log.Warn().Msg(msg)
}

// candidateFor finds the window candidate for a wallet.
func candidateFor(fw domain.FinalizedWindow, wallet string) (domain.AbsorptionCandidate, bool) {
	for _, cand := range fw.Candidates {
		if cand.Wallet == wallet {
			return cand, true
		}
	}
	return domain.AbsorptionCandidate{}, false
}
