// Package pipeline runs the live detection engine. A single goroutine
// consumes the ordered swap stream from the intake and sequences the
// detector, analyzer, validator, scorer and emitter exactly the way the
// replay driver does, so live and replay runs agree on semantics; only the
// clock and the event source differ. Emitted signals fan out to an optional
// subscriber channel, and shutdown drains the stream, invalidates in-flight
// windows and exports the classified wallet set.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/absorption"
	"solana-infra-watch/internal/clock"
	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/detection"
	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/observability"
	"solana-infra-watch/internal/poolstate"
	"solana-infra-watch/internal/reporting"
	"solana-infra-watch/internal/scoring"
	"solana-infra-watch/internal/signals"
	"solana-infra-watch/internal/stabilization"
	"solana-infra-watch/internal/storage"
)

// defaultDecayInterval paces the idle decay check. Decay also runs inline
// with events, so the ticker only matters on quiet streams.
const defaultDecayInterval = time.Hour

// Options wires an Engine. Config, Clock and Events are required; the
// component set defaults from config when nil so tests can inject doctored
// instances.
type Options struct {
	Config *config.Config
	Clock  *clock.LiveClock
	Events <-chan domain.SwapEvent

	Pools     *poolstate.Store
	Detector  *detection.Detector
	Analyzer  *absorption.Analyzer
	Validator *stabilization.Validator
	Scorer    *scoring.Scorer
	Emitter   *signals.Emitter

	// WalletStore and EvidenceStore mirror scorer state best-effort. Only
	// consulted when Scorer is nil and built here.
	WalletStore   storage.WalletStore
	EvidenceStore storage.EvidenceStore

	// ExportDir receives wallet_performance.csv on shutdown. Empty
	// disables the export.
	ExportDir string

	DecayInterval time.Duration
	Metrics       *observability.Metrics
	Logger        zerolog.Logger
}

// Engine owns the live run: one goroutine consumes ordered swaps and
// sequences every detection component, so window accounting sees events
// exactly once and in order.
type Engine struct {
	cfg       *config.Config
	clk       *clock.LiveClock
	events    <-chan domain.SwapEvent
	pools     *poolstate.Store
	detector  *detection.Detector
	analyzer  *absorption.Analyzer
	validator *stabilization.Validator
	scorer    *scoring.Scorer
	emitter   *signals.Emitter
	exportDir string
	decayTick time.Duration
	metrics   *observability.Metrics
	log       zerolog.Logger

	processed  atomic.Int64
	signalsOut chan domain.Signal
	startedAt  time.Time
}

// New creates an Engine, building any component left nil from the config.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil {
		return nil, errors.New("engine requires config")
	}
	if opts.Events == nil {
		return nil, errors.New("engine requires an event stream")
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewLive()
	}
	if opts.DecayInterval <= 0 {
		opts.DecayInterval = defaultDecayInterval
	}

	if opts.Pools == nil {
		pools, err := poolstate.New(opts.Config.Chain.MaxTrackedPools)
		if err != nil {
			return nil, fmt.Errorf("assemble engine: %w", err)
		}
		opts.Pools = pools
	}
	if opts.Detector == nil {
		detector, err := detection.New(detection.Options{
			Config: opts.Config.Detection,
			Pools:  opts.Pools,
			Logger: opts.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("assemble engine: %w", err)
		}
		opts.Detector = detector
	}
	if opts.Analyzer == nil {
		opts.Analyzer = absorption.New(absorption.Options{
			Detection:  opts.Config.Detection,
			Absorption: opts.Config.Absorption,
			Logger:     opts.Logger,
		})
	}
	if opts.Validator == nil {
		opts.Validator = stabilization.New(stabilization.Options{
			Stabilization: opts.Config.Stabilization,
			Logger:        opts.Logger,
		})
	}
	if opts.Scorer == nil {
		opts.Scorer = scoring.New(scoring.Options{
			Config:          opts.Config.Scoring,
			MaxLatencySlots: opts.Config.Detection.MaxResponseLatencySlots,
			Store:           opts.WalletStore,
			Evidence:        opts.EvidenceStore,
			Logger:          opts.Logger,
		})
	}
	if opts.Emitter == nil {
		opts.Emitter = signals.New(signals.Options{
			Detection:  opts.Config.Detection,
			Classifier: opts.Scorer,
			Clock:      opts.Clock,
			Logger:     opts.Logger,
		})
	}

	return &Engine{
		cfg:       opts.Config,
		clk:       opts.Clock,
		events:    opts.Events,
		pools:     opts.Pools,
		detector:  opts.Detector,
		analyzer:  opts.Analyzer,
		validator: opts.Validator,
		scorer:    opts.Scorer,
		emitter:   opts.Emitter,
		exportDir: opts.ExportDir,
		decayTick: opts.DecayInterval,
		metrics:   opts.Metrics,
		log:       opts.Logger.With().Str("component", "engine").Logger(),
	}, nil
}

// Subscribe returns the signal stream. Call before Run; the engine blocks
// on a full subscriber, so the caller must keep consuming. The channel
// closes when the engine stops.
func (e *Engine) Subscribe(buffer int) <-chan domain.Signal {
	if buffer <= 0 {
		buffer = 16
	}
	e.signalsOut = make(chan domain.Signal, buffer)
	return e.signalsOut
}

// Emitter exposes the signal emitter for the status API.
func (e *Engine) Emitter() *signals.Emitter {
	return e.emitter
}

// Scorer exposes the wallet scorer for the status API.
func (e *Engine) Scorer() *scoring.Scorer {
	return e.scorer
}

// Run consumes the event stream until it closes or ctx is cancelled. On
// cancellation the engine keeps draining until the intake closes the
// channel, so nothing already sequenced is lost, then finalizes: in-flight
// windows abort, open signals invalidate, and the classified wallet set
// exports. Returns ctx.Err() on cancellation, nil on clean end of stream.
func (e *Engine) Run(ctx context.Context) error {
	e.startedAt = time.Now()
	decay := time.NewTicker(e.decayTick)
	defer decay.Stop()

	e.log.Info().Msg("live engine started")

	for {
		// Checked before the select so a cancelled run always reports
		// cancellation even when events are still pending.
		if ctx.Err() != nil {
			e.drainRemaining(ctx)
			e.shutdown()
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			e.drainRemaining(ctx)
			e.shutdown()
			return ctx.Err()

		case ev, ok := <-e.events:
			if !ok {
				e.shutdown()
				return nil
			}
			e.step(ctx, ev)

		case <-decay.C:
			if e.scorer.MaybeDecay(ctx, e.clk.Now()) && e.metrics != nil {
				e.metrics.DecayPasses.Inc()
			}
		}
	}
}

// drainRemaining consumes what the intake flushed before closing. The
// intake shares the cancelled context and always closes the stream, so the
// loop terminates. Persistence keeps working through the uncancelled
// context; the run is ending but the events are real.
func (e *Engine) drainRemaining(ctx context.Context) {
	flushCtx := context.WithoutCancel(ctx)
	for ev := range e.events {
		e.step(flushCtx, ev)
	}
}

// step runs one event through the pipeline in the canonical order: expired
// windows resolve first, then the event flows to open windows, then the
// detector may open a new window on it, and only then does the pool state
// advance, so the detector always reads pre-event reserves.
func (e *Engine) step(ctx context.Context, ev domain.SwapEvent) {
	e.clk.ObserveSlot(ev.Key.Slot)
	if e.scorer.MaybeDecay(ctx, e.clk.Now()) && e.metrics != nil {
		e.metrics.DecayPasses.Inc()
	}

	e.resolveDue(ctx, ev.Key.Slot)

	e.analyzer.Observe(ev)
	e.validator.Observe(ev)
	if sell := e.detector.Observe(ev); sell != nil {
		e.analyzer.Open(*sell)
		if e.metrics != nil {
			e.metrics.SellEventsDetected.Inc()
			e.metrics.WindowsOpened.Inc()
		}
	}

	e.pools.Put(ev.PoolState)
	e.processed.Add(1)

	if e.metrics != nil {
		e.metrics.LastEventTimestamp.Set(float64(ev.BlockTime * 1000))
		e.metrics.TrackedWallets.Set(float64(e.scorer.Stats().TrackedWallets))
	}
}

// resolveDue drains window and stabilization closures until quiescent, the
// same two-phase loop as the replay driver: outcomes resolve before the
// windows closed in the same pass, and each pass may arm the next.
func (e *Engine) resolveDue(ctx context.Context, slot int64) {
	for {
		outcomes := e.validator.CloseDue(slot)
		windows := e.analyzer.CloseDue(slot)
		if len(outcomes) == 0 && len(windows) == 0 {
			return
		}
		for _, oc := range outcomes {
			e.onOutcome(ctx, oc)
		}
		for _, fw := range windows {
			e.onWindowClosed(fw)
		}
	}
}

func (e *Engine) onOutcome(ctx context.Context, oc domain.ValidationOutcome) {
	e.scorer.Apply(ctx, oc)

	if e.metrics != nil {
		label := "failed"
		if oc.Result.Stabilized {
			label = "stabilized"
		}
		e.metrics.StabilizationOutcomes.WithLabelValues(label).Inc()
	}

	if sig := e.emitter.OnValidated(oc); sig != nil {
		if e.metrics != nil {
			if sig.Status == domain.SignalConfirmed {
				e.metrics.SignalsConfirmed.Inc()
			} else {
				e.metrics.SignalsExpired.Inc()
			}
		}
		e.publish(*sig)
	}
}

func (e *Engine) onWindowClosed(fw domain.FinalizedWindow) {
	e.validator.Enqueue(fw)

	if e.metrics != nil {
		label := "empty"
		if len(fw.Candidates) > 0 {
			label = "candidates"
		}
		e.metrics.WindowsClosed.WithLabelValues(label).Inc()
	}

	if sig := e.emitter.OnWindowClosed(fw); sig != nil {
		if e.metrics != nil {
			e.metrics.SignalsEmitted.Inc()
		}
		e.publish(*sig)
	}
}

// publish forwards a signal to the subscriber. Blocking is deliberate:
// signals are the product of the pipeline and must not drop silently.
func (e *Engine) publish(sig domain.Signal) {
	if e.signalsOut == nil {
		return
	}
	e.signalsOut <- sig
}

// shutdown invalidates everything in flight and exports the wallet set.
func (e *Engine) shutdown() {
	aborted := e.analyzer.Abort()
	pending := e.validator.Abort()
	if n := len(aborted) + len(pending); n > 0 {
		e.log.Info().
			Int("windows", len(aborted)).
			Int("watches", len(pending)).
			Msg("in-flight sell events invalidated")
	}
	if inv := e.emitter.InvalidateOpen(); len(inv) > 0 {
		e.log.Info().Int("signals", len(inv)).Msg("open signals invalidated")
	}

	if e.exportDir != "" {
		if err := e.exportWallets(); err != nil {
			e.log.Error().Err(err).Msg("wallet export failed")
		}
	}

	if e.signalsOut != nil {
		close(e.signalsOut)
	}

	stats := e.emitter.Stats()
	e.log.Info().
		Int64("events", e.processed.Load()).
		Uint64("signals_emitted", stats.Emitted).
		Int("tracked_wallets", e.scorer.Stats().TrackedWallets).
		Dur("uptime", time.Since(e.startedAt)).
		Msg("live engine stopped")
}

// exportWallets writes the classified set as wallet_performance.csv, the
// same artifact the replay reporter produces.
func (e *Engine) exportWallets() error {
	if err := os.MkdirAll(e.exportDir, 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	wallets := e.scorer.Classified()
	path := filepath.Join(e.exportDir, reporting.WalletsFile)
	if err := os.WriteFile(path, []byte(reporting.RenderWalletsCSV(wallets)), 0644); err != nil {
		return fmt.Errorf("write %s: %w", reporting.WalletsFile, err)
	}
	e.log.Info().Str("path", path).Int("wallets", len(wallets)).Msg("wallet set exported")
	return nil
}

// Stats is the engine's health snapshot for the status API.
type Stats struct {
	EventsProcessed int64
	HighestSlot     int64
	OpenSignals     int
	TrackedWallets  int
	UptimeSeconds   float64
}

// Stats returns current counters. Safe to call from other goroutines.
func (e *Engine) Stats() Stats {
	return Stats{
		EventsProcessed: e.processed.Load(),
		HighestSlot:     e.clk.Slot(),
		OpenSignals:     e.emitter.OpenCount(),
		TrackedWallets:  e.scorer.Stats().TrackedWallets,
		UptimeSeconds:   time.Since(e.startedAt).Seconds(),
	}
}
