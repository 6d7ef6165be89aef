// Package absorption tracks the observation window that follows each large
// sell. Buys on the same token inside the window accumulate into per-wallet
// absorption candidates; when the window closes the meaningful candidates
// are forwarded, sorted by absorption fraction, to the stabilization
// validator. Overlapping windows on one token track independently: a single
// buy attributes to every window it falls into.
package absorption

import (
	"sort"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
)

// Options configures an Analyzer.
type Options struct {
	Detection  config.DetectionConfig
	Absorption config.AbsorptionConfig
	Logger     zerolog.Logger
}

// Analyzer owns every open SellEvent and its candidate map until the window
// closes. Not safe for concurrent use; it is driven from the single pipeline
// goroutine in total event order.
type Analyzer struct {
	cfg  Options
	log  zerolog.Logger
	open map[string]*window // by sell event ID
}

// window is one sell event under observation.
type window struct {
	event      domain.SellEvent
	candidates map[string]*candidateAccum // by buyer wallet
	volumeBase float64
	swapCount  int
}

// candidateAccum accumulates one wallet's buys inside a window.
type candidateAccum struct {
	totalBuyBase float64
	buyCount     int
	priceVolume  float64 // Σ price·amountBase, for the volume-weighted average
	firstBuySlot int64
	lastBuySlot  int64
}

// New creates an Analyzer.
func New(opts Options) *Analyzer {
	return &Analyzer{
		cfg:  opts,
		log:  opts.Logger.With().Str("component", "absorption").Logger(),
		open: make(map[string]*window),
	}
}

// Open starts observing a sell event. The triggering sell itself counts
// toward the window's traded volume.
func (a *Analyzer) Open(sell domain.SellEvent) {
	if _, exists := a.open[sell.ID]; exists {
		return
	}
	a.open[sell.ID] = &window{
		event:      sell,
		candidates: make(map[string]*candidateAccum),
		volumeBase: sell.SellAmountBase,
		swapCount:  1,
	}
}

// Observe attributes one swap to every open window on its token. Buys
// later than the latency bound are dropped for that window; all swaps count
// toward window volume.
func (a *Analyzer) Observe(ev domain.SwapEvent) {
	for _, w := range a.open {
		if w.event.TokenMint != ev.TokenMint {
			continue
		}
		if ev.Key.Slot < w.event.Slot || ev.Key.Slot > w.event.WindowEndSlot {
			continue
		}

		w.volumeBase += ev.AmountBase
		w.swapCount++

		if ev.Side != domain.SideBuy {
			continue
		}
		if ev.Key.Slot-w.event.Slot > a.cfg.Detection.MaxResponseLatencySlots {
			continue
		}

		c, ok := w.candidates[ev.Trader]
		if !ok {
			c = &candidateAccum{firstBuySlot: ev.Key.Slot}
			w.candidates[ev.Trader] = c
		}
		c.totalBuyBase += ev.AmountBase
		c.buyCount++
		c.priceVolume += ev.PriceBasePerToken * ev.AmountBase
		c.lastBuySlot = ev.Key.Slot
	}
}

// CloseDue finalizes every window whose end slot has passed. Each finalized
// window carries its meaningful candidates sorted by absorption fraction
// descending (wallet ascending on ties) and moves the event to analyzing.
// The returned order is deterministic.
func (a *Analyzer) CloseDue(currentSlot int64) []domain.FinalizedWindow {
	var out []domain.FinalizedWindow
	for id, w := range a.open {
		if currentSlot <= w.event.WindowEndSlot {
			continue
		}
		out = append(out, a.finalize(w))
		delete(a.open, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Event.WindowEndSlot != out[j].Event.WindowEndSlot {
			return out[i].Event.WindowEndSlot < out[j].Event.WindowEndSlot
		}
		if out[i].Event.Slot != out[j].Event.Slot {
			return out[i].Event.Slot < out[j].Event.Slot
		}
		return out[i].Event.ID < out[j].Event.ID
	})
	return out
}

func (a *Analyzer) finalize(w *window) domain.FinalizedWindow {
	w.event.TransitionTo(domain.SellStateAnalyzing)

	candidates := make([]domain.AbsorptionCandidate, 0, len(w.candidates))
	for wallet, c := range w.candidates {
		cand := c.build(w.event, wallet)
		if cand.AbsorptionFraction > 1 {
			// Absorbing more than the sell itself is a data-shape violation;
			// the candidate is dropped, the window survives.
			a.log.Warn().
				Str("event_id", w.event.ID).
				Str("wallet", wallet).
				Float64("fraction", cand.AbsorptionFraction).
				Msg("candidate absorbed over 100%, dropped")
			continue
		}
		if !cand.Meaningful(a.cfg.Absorption.MinAbsorption, a.cfg.Absorption.MaxAbsorption, a.cfg.Detection.MaxResponseLatencySlots) {
			continue
		}
		candidates = append(candidates, cand)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].AbsorptionFraction != candidates[j].AbsorptionFraction {
			return candidates[i].AbsorptionFraction > candidates[j].AbsorptionFraction
		}
		return candidates[i].Wallet < candidates[j].Wallet
	})

	return domain.FinalizedWindow{
		Event:            w.event,
		Candidates:       candidates,
		WindowVolumeBase: w.volumeBase,
		WindowSwapCount:  w.swapCount,
	}
}

// build materializes the accumulated candidate for one wallet.
func (c *candidateAccum) build(sell domain.SellEvent, wallet string) domain.AbsorptionCandidate {
	vwap := 0.0
	if c.totalBuyBase > 0 {
		vwap = c.priceVolume / c.totalBuyBase
	}
	impact := 0.0
	if sell.PreEventPrice > 0 {
		impact = (vwap - sell.PreEventPrice) / sell.PreEventPrice * 100
	}
	return domain.AbsorptionCandidate{
		EventID:              sell.ID,
		Wallet:               wallet,
		TokenMint:            sell.TokenMint,
		TotalBuyBase:         c.totalBuyBase,
		BuyCount:             c.buyCount,
		AbsorptionFraction:   c.totalBuyBase / sell.SellAmountBase,
		ResponseLatencySlots: c.firstBuySlot - sell.Slot,
		AvgPriceImpact:       impact,
		FirstBuySlot:         c.firstBuySlot,
		LastBuySlot:          c.lastBuySlot,
		BoughtDuringDip:      vwap < sell.PreEventPrice,
	}
}

// Abort invalidates every open window without forwarding candidates. Used
// on shutdown; the returned events are sorted by ID for deterministic
// reporting.
func (a *Analyzer) Abort() []domain.SellEvent {
	out := make([]domain.SellEvent, 0, len(a.open))
	for id, w := range a.open {
		w.event.TransitionTo(domain.SellStateInvalidated)
		out = append(out, w.event)
		delete(a.open, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OpenCount returns the number of windows currently under observation.
func (a *Analyzer) OpenCount() int {
	return len(a.open)
}
