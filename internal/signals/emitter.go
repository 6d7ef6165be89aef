// Package signals turns finalized absorption windows into live trading
// signals. A signal fires when the strongest meaningful absorber of a closing
// window is currently classified as infrastructure; it stays open until the
// stabilization verdict confirms or expires it. At most one signal exists per
// (token, sell event).
package signals

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/clock"
	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/idhash"
)

// historyLimit bounds the retained closed-signal ring served by the status
// API.
const historyLimit = 512

// Classifier reports the current profile of a wallet. Satisfied by the
// scorer.
type Classifier interface {
	Get(wallet string) (domain.WalletBehavior, bool)
}

// Options configures an Emitter.
type Options struct {
	Detection  config.DetectionConfig
	Classifier Classifier
	Clock      clock.Clock
	Logger     zerolog.Logger
}

// Emitter tracks open signals and their lifecycle. Mutations come from the
// pipeline goroutine; the status API reads concurrently.
type Emitter struct {
	cfg        config.DetectionConfig
	classifier Classifier
	clock      clock.Clock
	log        zerolog.Logger

	mu      sync.RWMutex
	open    map[string]*domain.Signal // by trigger sell event ID
	history []*domain.Signal          // open and closed, most recent last

	emitted   atomic.Uint64
	confirmed atomic.Uint64
	expired   atomic.Uint64
}

// New creates an Emitter.
func New(opts Options) *Emitter {
	return &Emitter{
		cfg:        opts.Detection,
		classifier: opts.Classifier,
		clock:      opts.Clock,
		log:        opts.Logger.With().Str("component", "signals").Logger(),
		open:       make(map[string]*domain.Signal),
	}
}

// OnWindowClosed emits a signal when the strongest meaningful candidate of
// the finalized window is classified as infrastructure. Candidates arrive
// sorted by absorption fraction, so the first infra hit wins. Returns nil
// when no candidate qualifies.
func (e *Emitter) OnWindowClosed(fw domain.FinalizedWindow) *domain.Signal {
	for _, cand := range fw.Candidates {
		behavior, ok := e.classifier.Get(cand.Wallet)
		if !ok || !behavior.IsInfra() {
			continue
		}

		sig := &domain.Signal{
			ID:                 idhash.ComputeSignalID(fw.Event.TokenMint, fw.Event.ID, cand.Wallet),
			TokenMint:          fw.Event.TokenMint,
			PoolAddress:        fw.Event.PoolAddress,
			TriggerSellEventID: fw.Event.ID,
			AbsorberWallet:     cand.Wallet,
			DefendedPrice:      fw.Event.PostEventPrice,
			Strength:           e.strength(cand, fw.Event, behavior.Classification),
			Status:             domain.SignalActive,
			CreatedAtSlot:      e.clock.Slot(),
			CreatedAt:          e.clock.Now(),
		}

		e.mu.Lock()
		if _, exists := e.open[fw.Event.ID]; exists {
			e.mu.Unlock()
			return nil
		}
		e.open[fw.Event.ID] = sig
		e.remember(sig)
		e.mu.Unlock()

		e.emitted.Add(1)
		e.log.Info().
			Str("signal_id", sig.ID).
			Str("token", sig.TokenMint).
			Str("absorber", sig.AbsorberWallet).
			Float64("strength", sig.Strength).
			Msg("signal emitted")
		return e.cloneOf(sig)
	}
	return nil
}

// strength mixes absorption size, response speed, the absorber's class, and
// how significant the triggering sell was relative to the detection band.
func (e *Emitter) strength(cand domain.AbsorptionCandidate, ev domain.SellEvent, class string) float64 {
	s := math.Min(1, cand.AbsorptionFraction) * 35
	if e.cfg.MaxResponseLatencySlots > 0 {
		s += (1 - math.Min(1, float64(cand.ResponseLatencySlots)/float64(e.cfg.MaxResponseLatencySlots))) * 20
	}
	switch class {
	case domain.ClassDefensiveInfra:
		s += 25
	case domain.ClassAggressiveInfra:
		s += 20
	}
	if e.cfg.MaxSellFraction > 0 {
		s += math.Min(1, ev.FractionOfPool/e.cfg.MaxSellFraction) * 20
	}
	return math.Min(100, s)
}

// OnValidated resolves the open signal for a validated sell event: confirmed
// when the market stabilized, expired otherwise. Returns the resolved signal
// or nil when the event had none.
func (e *Emitter) OnValidated(outcome domain.ValidationOutcome) *domain.Signal {
	e.mu.Lock()
	sig, ok := e.open[outcome.Event.ID]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	delete(e.open, outcome.Event.ID)

	if outcome.Result.Stabilized {
		sig.Status = domain.SignalConfirmed
		sig.StabilizationConfirmed = true
	} else {
		sig.Status = domain.SignalExpired
	}
	out := e.cloneOf(sig)
	e.mu.Unlock()

	if out.Status == domain.SignalConfirmed {
		e.confirmed.Add(1)
	} else {
		e.expired.Add(1)
	}
	e.log.Info().
		Str("signal_id", out.ID).
		Str("status", out.Status).
		Msg("signal resolved")
	return out
}

// InvalidateOpen force-closes every open signal, used on shutdown and when
// the replay dataset ends mid-window. Returns the affected signals sorted by
// trigger event ID.
func (e *Emitter) InvalidateOpen() []domain.Signal {
	e.mu.Lock()
	out := make([]domain.Signal, 0, len(e.open))
	for id, sig := range e.open {
		sig.Status = domain.SignalInvalidated
		out = append(out, *sig)
		delete(e.open, id)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerSellEventID < out[j].TriggerSellEventID })
	return out
}

// remember appends to the bounded history ring. Caller holds e.mu.
func (e *Emitter) remember(sig *domain.Signal) {
	e.history = append(e.history, sig)
	if len(e.history) > historyLimit {
		e.history = e.history[len(e.history)-historyLimit:]
	}
}

func (e *Emitter) cloneOf(sig *domain.Signal) *domain.Signal {
	cp := *sig
	return &cp
}

// Recent returns up to limit signals, most recent first.
func (e *Emitter) Recent(limit int) []domain.Signal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Signal, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, *e.history[i])
	}
	return out
}

// OpenCount returns the number of unresolved signals.
func (e *Emitter) OpenCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.open)
}

// Stats reports emitter counters.
type Stats struct {
	Emitted   uint64
	Confirmed uint64
	Expired   uint64
}

// Stats returns current counters.
func (e *Emitter) Stats() Stats {
	return Stats{
		Emitted:   e.emitted.Load(),
		Confirmed: e.confirmed.Load(),
		Expired:   e.expired.Load(),
	}
}
