// Package stabilization judges whether the market actually held after an
// absorbed sell. Each finalized observation window gets a follow-up window;
// price recovery, new lows, volume contraction and defense of the post-event
// price level combine into a confidence score and a stabilized verdict.
package stabilization

import (
	"math"
	"sort"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
)

// Options configures a Validator.
type Options struct {
	Stabilization config.StabilizationConfig
	Logger        zerolog.Logger
}

// Validator accumulates post-window swaps for every pending sell event and
// produces a ValidationOutcome when the stabilization window closes. Driven
// from the single pipeline goroutine in total event order; not safe for
// concurrent use.
type Validator struct {
	cfg     Options
	log     zerolog.Logger
	pending map[string]*watch // by sell event ID
}

// watch is one finalized window awaiting its verdict.
type watch struct {
	fw      domain.FinalizedWindow
	endSlot int64 // WindowEndSlot + StabilizationWindowSlots

	priceSum   float64
	priceCount int
	minPrice   float64
	postVolume float64

	holdCount  int
	broke      bool
	largeSells int
}

// New creates a Validator.
func New(opts Options) *Validator {
	return &Validator{
		cfg:     opts,
		log:     opts.Logger.With().Str("component", "stabilization").Logger(),
		pending: make(map[string]*watch),
	}
}

// Enqueue registers a finalized window for validation.
func (v *Validator) Enqueue(fw domain.FinalizedWindow) {
	if _, exists := v.pending[fw.Event.ID]; exists {
		return
	}
	v.pending[fw.Event.ID] = &watch{
		fw:      fw,
		endSlot: fw.Event.WindowEndSlot + v.cfg.Stabilization.StabilizationWindowSlots,
	}
}

// Observe feeds one swap to every pending watch on its token. Only swaps
// strictly after the observation window and at or before the stabilization
// end slot count; events at the window-end slot itself were already consumed
// by the observation window.
func (v *Validator) Observe(ev domain.SwapEvent) {
	for _, w := range v.pending {
		if w.fw.Event.TokenMint != ev.TokenMint {
			continue
		}
		if ev.Key.Slot <= w.fw.Event.WindowEndSlot || ev.Key.Slot > w.endSlot {
			continue
		}

		price := ev.PriceBasePerToken
		w.priceSum += price
		if w.priceCount == 0 || price < w.minPrice {
			w.minPrice = price
		}
		w.priceCount++
		w.postVolume += ev.AmountBase

		if price >= 0.95*w.fw.Event.PostEventPrice {
			w.holdCount++
		} else {
			w.broke = true
		}
		if ev.Side == domain.SideSell && ev.AmountBase >= 0.5*w.fw.Event.SellAmountBase {
			w.largeSells++
		}
	}
}

// CloseDue resolves every watch whose stabilization window has passed. The
// event moves to validated or invalidated according to the verdict; outcomes
// are returned in deterministic order.
func (v *Validator) CloseDue(currentSlot int64) []domain.ValidationOutcome {
	var out []domain.ValidationOutcome
	for id, w := range v.pending {
		if currentSlot <= w.endSlot {
			continue
		}
		out = append(out, v.resolve(w))
		delete(v.pending, id)
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

func (v *Validator) resolve(w *watch) domain.ValidationOutcome {
	cfg := v.cfg.Stabilization
	ev := w.fw.Event

	res := domain.StabilizationResult{
		EventID:      ev.ID,
		DefenseLevel: ev.PostEventPrice,
	}

	// An empty stabilization window means selling pressure vanished entirely:
	// no recovery to measure, no low made, full volume contraction.
	if w.priceCount > 0 {
		avg := w.priceSum / float64(w.priceCount)
		if ev.PreEventPrice > 0 {
			res.PriceRecoveryPct = (avg - ev.PostEventPrice) / ev.PreEventPrice * 100
		}
		res.MadeNewLow = w.minPrice < ev.PostEventPrice*(1-cfg.NewLowTolerance)
	}
	if w.fw.WindowVolumeBase > 0 {
		res.VolumeContractionPct = (w.fw.WindowVolumeBase - w.postVolume) / w.fw.WindowVolumeBase * 100
		if res.VolumeContractionPct < 0 {
			res.VolumeContractionPct = 0
		}
	}
	res.DefenseHoldSlots = w.holdCount
	res.DefenseHeld = !w.broke
	res.AdditionalLargeSells = w.largeSells
	res.ConfidenceScore = confidence(res)

	res.Stabilized = !res.MadeNewLow &&
		res.VolumeContractionPct >= cfg.MinContractionPct &&
		res.PriceRecoveryPct >= -cfg.MaxPriceDropPct &&
		res.DefenseHeld &&
		res.AdditionalLargeSells == 0 &&
		res.ConfidenceScore >= 60

	if res.Stabilized {
		ev.TransitionTo(domain.SellStateValidated)
	} else {
		ev.TransitionTo(domain.SellStateInvalidated)
	}

	v.log.Debug().
		Str("event_id", ev.ID).
		Bool("stabilized", res.Stabilized).
		Float64("recovery_pct", res.PriceRecoveryPct).
		Float64("contraction_pct", res.VolumeContractionPct).
		Float64("confidence", res.ConfidenceScore).
		Msg("stabilization resolved")

	return domain.ValidationOutcome{
		Event:      ev,
		Result:     res,
		Candidates: w.fw.Candidates,
	}
}

// confidence folds the stabilization metrics into a 0..100 score starting
// from a neutral 50.
func confidence(res domain.StabilizationResult) float64 {
	score := 50.0
	if res.PriceRecoveryPct > 0 {
		score += math.Min(20, 2*res.PriceRecoveryPct)
	} else {
		score += math.Max(-20, res.PriceRecoveryPct)
	}
	if !res.MadeNewLow {
		score += 15
	}
	score += math.Min(15, res.VolumeContractionPct/4)
	if res.DefenseHeld {
		score += 20
	}
	score -= 10 * float64(res.AdditionalLargeSells)
	return math.Max(0, math.Min(100, score))
}

// Abort invalidates every pending watch without a verdict. Used on
// shutdown; returns the affected events sorted by ID.
func (v *Validator) Abort() []domain.SellEvent {
	out := make([]domain.SellEvent, 0, len(v.pending))
	for id, w := range v.pending {
		w.fw.Event.TransitionTo(domain.SellStateInvalidated)
		out = append(out, w.fw.Event)
		delete(v.pending, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PendingCount returns the number of watches awaiting resolution.
func (v *Validator) PendingCount() int {
	return len(v.pending)
}
