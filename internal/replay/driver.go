// Package replay drives the detection pipeline from a recorded swap
// dataset. Events are loaded, sorted into total order and fed one at a
// time through the detector, analyzer, validator, scorer and emitter;
// emitted signals trade against the fill simulator into the virtual
// portfolio. All time flows through the replay clock and all randomness
// through the seeded simulator, so identical (dataset, config, seed)
// triples produce byte-identical artifacts.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/absorption"
	"solana-infra-watch/internal/clock"
	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/detection"
	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/execution"
	"solana-infra-watch/internal/poolstate"
	"solana-infra-watch/internal/portfolio"
	"solana-infra-watch/internal/reporting"
	"solana-infra-watch/internal/scoring"
	"solana-infra-watch/internal/signals"
	"solana-infra-watch/internal/stabilization"
)

// Options wires a Driver. All components are required except Sleep, which
// defaults to time.Sleep; tests inject a recorder to assert pacing without
// waiting.
type Options struct {
	Config    *config.Config
	Clock     *clock.ReplayClock
	Pools     *poolstate.Store
	Detector  *detection.Detector
	Analyzer  *absorption.Analyzer
	Validator *stabilization.Validator
	Scorer    *scoring.Scorer
	Emitter   *signals.Emitter
	History   *execution.PoolHistory
	Simulator *execution.Simulator
	Portfolio *portfolio.Portfolio
	Trader    *Trader
	Reporter  *reporting.Generator
	Logger    zerolog.Logger
	Sleep     func(time.Duration)
}

// Driver owns the replay run: it paces the event stream against the
// configured speed, advances the shared clock, and sequences every
// component from a single goroutine so the run is deterministic.
type Driver struct {
	cfg       *config.Config
	clk       *clock.ReplayClock
	pools     *poolstate.Store
	detector  *detection.Detector
	analyzer  *absorption.Analyzer
	validator *stabilization.Validator
	scorer    *scoring.Scorer
	emitter   *signals.Emitter
	history   *execution.PoolHistory
	sim       *execution.Simulator
	portfolio *portfolio.Portfolio
	trader    *Trader
	reporter  *reporting.Generator
	log       zerolog.Logger
	sleep     func(time.Duration)

	coverage  reporting.Coverage
	tokens    map[string]struct{}
	poolsSeen map[string]struct{}
	errs      []string
}

// New creates a Driver from pre-built components.
func New(opts Options) *Driver {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Driver{
		cfg:       opts.Config,
		clk:       opts.Clock,
		pools:     opts.Pools,
		detector:  opts.Detector,
		analyzer:  opts.Analyzer,
		validator: opts.Validator,
		scorer:    opts.Scorer,
		emitter:   opts.Emitter,
		history:   opts.History,
		sim:       opts.Simulator,
		portfolio: opts.Portfolio,
		trader:    opts.Trader,
		reporter:  opts.Reporter,
		log:       opts.Logger.With().Str("component", "replay").Logger(),
		sleep:     sleep,
		tokens:    make(map[string]struct{}),
		poolsSeen: make(map[string]struct{}),
	}
}

// Assemble builds the whole sandbox from configuration: replay clock, pool
// state, detection chain, scorer without persistence, seeded simulator,
// portfolio, trader and report generator.
func Assemble(cfg *config.Config, logger zerolog.Logger) (*Driver, error) {
	clk := clock.NewReplay(cfg.Replay.StartTime*1000, cfg.Replay.StartSlot)

	pools, err := poolstate.New(cfg.Chain.MaxTrackedPools)
	if err != nil {
		return nil, fmt.Errorf("assemble replay: %w", err)
	}
	detector, err := detection.New(detection.Options{
		Config: cfg.Detection,
		Pools:  pools,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble replay: %w", err)
	}

	analyzer := absorption.New(absorption.Options{
		Detection:  cfg.Detection,
		Absorption: cfg.Absorption,
		Logger:     logger,
	})
	validator := stabilization.New(stabilization.Options{
		Stabilization: cfg.Stabilization,
		Logger:        logger,
	})
	scorer := scoring.New(scoring.Options{
		Config:          cfg.Scoring,
		MaxLatencySlots: cfg.Detection.MaxResponseLatencySlots,
		Logger:          logger,
	})
	emitter := signals.New(signals.Options{
		Detection:  cfg.Detection,
		Classifier: scorer,
		Clock:      clk,
		Logger:     logger,
	})

	history := execution.NewPoolHistory()
	sim := execution.New(execution.Options{
		Params:  cfg.Execution.Params(),
		History: history,
		Seed:    cfg.Replay.Seed,
		Logger:  logger,
	})
	pf := portfolio.New(portfolio.Options{
		Capital: cfg.Capital,
		Clock:   clk,
		Logger:  logger,
	})
	trader := NewTrader(TraderOptions{
		Portfolio: pf,
		Simulator: sim,
		Logger:    logger,
	})
	reporter := reporting.NewGenerator(reporting.Options{
		OutputDir: cfg.Replay.OutputDir,
		Clock:     clk,
		Logger:    logger,
	})

	return New(Options{
		Config:    cfg,
		Clock:     clk,
		Pools:     pools,
		Detector:  detector,
		Analyzer:  analyzer,
		Validator: validator,
		Scorer:    scorer,
		Emitter:   emitter,
		History:   history,
		Simulator: sim,
		Portfolio: pf,
		Trader:    trader,
		Reporter:  reporter,
		Logger:    logger,
	}), nil
}

// Run loads the dataset and replays it to completion, then writes the run
// artifacts. The returned error is non-nil for fatal determinism violations
// and for context cancellation; a report is still produced whenever the
// drain and the artifact write succeed.
func (d *Driver) Run(ctx context.Context) (*reporting.Report, error) {
	events, err := LoadDataset(d.cfg.Replay)
	if err != nil {
		return nil, err
	}
	d.log.Info().
		Int("events", len(events)).
		Str("speed", d.cfg.Replay.Speed).
		Uint32("seed", d.cfg.Replay.Seed).
		Str("dataset", d.cfg.Replay.DatasetPath).
		Msg("replay run starting")

	divisor := speedDivisor(d.cfg.Replay.Speed)
	var prevBlockTime int64

	for i := range events {
		ev := events[i]
		if cerr := ctx.Err(); cerr != nil {
			d.recordErr(fmt.Sprintf("run cancelled at slot %d: %v", ev.Key.Slot, cerr))
			report := d.abort(domain.ExitReasonShutdown)
			return report, cerr
		}
		if i > 0 && divisor > 0 {
			d.pace(ev.BlockTime-prevBlockTime, divisor)
		}
		prevBlockTime = ev.BlockTime
		d.clk.Advance(ev.Key.Slot, ev.BlockTime*1000)

		if serr := d.step(ctx, ev); serr != nil {
			d.recordErr(serr.Error())
			report := d.abort(domain.ExitReasonShutdown)
			return report, serr
		}
		d.observeCoverage(ev)
	}

	return d.finish(domain.ExitReasonEndOfData)
}

// step runs one event through the pipeline in the canonical order: expired
// windows resolve first, then the event flows to the open windows, then the
// detector may open a new window on it, and only then does the pool state
// advance, so the detector always reads pre-event reserves.
func (d *Driver) step(ctx context.Context, ev domain.SwapEvent) error {
	d.scorer.MaybeDecay(ctx, d.clk.Now())

	if err := d.resolveDue(ctx, ev.Key.Slot); err != nil {
		return err
	}

	d.analyzer.Observe(ev)
	d.validator.Observe(ev)
	if sell := d.detector.Observe(ev); sell != nil {
		d.analyzer.Open(*sell)
	}

	d.pools.Put(ev.PoolState)
	d.history.Record(ev.PoolState)
	d.trader.Mark(ev)
	return nil
}

// resolveDue drains window and stabilization closures until quiescent. The
// loop matters when one slot gap spans both an observation window end and
// its stabilization end: the first pass finalizes the window, the second
// resolves the verdict it enqueued.
func (d *Driver) resolveDue(ctx context.Context, slot int64) error {
	for {
		outcomes := d.validator.CloseDue(slot)
		windows := d.analyzer.CloseDue(slot)
		if len(outcomes) == 0 && len(windows) == 0 {
			return nil
		}
		for _, oc := range outcomes {
			d.onOutcome(ctx, oc, slot)
		}
		for _, fw := range windows {
			if err := d.onWindowClosed(fw, slot); err != nil {
				return err
			}
		}
	}
}

// onOutcome feeds a stabilization verdict to the scorer, resolves any open
// signal, and exits the signal's position.
func (d *Driver) onOutcome(ctx context.Context, oc domain.ValidationOutcome, slot int64) {
	d.scorer.Apply(ctx, oc)
	if sig := d.emitter.OnValidated(oc); sig != nil {
		d.trader.OnResolved(sig, slot)
	}
}

// onWindowClosed hands a finalized window to the validator and, when the
// emitter fires, attempts an entry.
func (d *Driver) onWindowClosed(fw domain.FinalizedWindow, slot int64) error {
	d.validator.Enqueue(fw)
	if sig := d.emitter.OnWindowClosed(fw); sig != nil {
		return d.trader.OnSignal(sig, fw, slot)
	}
	return nil
}

// finish drains the pipeline, settles the books, and writes the artifacts.
func (d *Driver) finish(reason string) (*reporting.Report, error) {
	d.drain(reason)

	var reconcileErr error
	if err := d.portfolio.Reconcile(); err != nil {
		reconcileErr = err
		d.recordErr(err.Error())
	}

	report, err := d.reporter.Generate(d.runData())
	if err != nil {
		return nil, err
	}
	if reconcileErr != nil {
		return report, reconcileErr
	}

	d.log.Info().
		Int64("events", d.coverage.EventsProcessed).
		Int("trades", len(report.Trades)).
		Float64("final_capital", report.Summary.FinalCapitalBase).
		Msg("replay run finished")
	return report, nil
}

// abort is finish for a failed run: the report is best-effort and the
// caller's error wins.
func (d *Driver) abort(reason string) *reporting.Report {
	report, err := d.finish(reason)
	if err != nil {
		d.log.Error().Err(err).Msg("report emission after aborted run")
	}
	return report
}

// drain invalidates everything in flight. Open observation windows and
// pending stabilization watches abort without producing evidence; open
// signals invalidate; open positions liquidate with the given exit reason.
func (d *Driver) drain(reason string) {
	aborted := d.analyzer.Abort()
	pending := d.validator.Abort()
	if n := len(aborted) + len(pending); n > 0 {
		d.log.Info().
			Int("windows", len(aborted)).
			Int("watches", len(pending)).
			Msg("in-flight sell events invalidated")
	}
	if inv := d.emitter.InvalidateOpen(); len(inv) > 0 {
		d.log.Info().Int("signals", len(inv)).Msg("open signals invalidated")
	}
	d.trader.CloseAll(reason, d.clk.Slot())
}

// runData snapshots every component into the report input.
func (d *Driver) runData() reporting.RunData {
	equity := d.portfolio.Capital()
	for _, pos := range d.portfolio.OpenPositions() {
		equity += pos.AmountToken * pos.LastPrice
	}
	ddAmount, ddPct := d.portfolio.Drawdown()
	emitStats := d.emitter.Stats()

	coverage := d.coverage
	coverage.TokensSeen = len(d.tokens)
	coverage.PoolsSeen = len(d.poolsSeen)

	errs := make([]string, 0, len(d.errs))
	errs = append(errs, d.errs...)
	errs = append(errs, d.trader.Errors()...)

	return reporting.RunData{
		StartingCapitalBase: d.cfg.Capital.StartingCapitalBase,
		FinalCapitalBase:    d.portfolio.Capital(),
		FinalEquityBase:     equity,
		PeakEquityBase:      d.portfolio.PeakEquity(),
		MaxDrawdownBase:     ddAmount,
		MaxDrawdownPct:      ddPct,
		TotalFeesBase:       d.portfolio.TotalFees(),
		SignalsEmitted:      int64(emitStats.Emitted),
		SignalsConfirmed:    int64(emitStats.Confirmed),
		SignalsExpired:      int64(emitStats.Expired),
		TrackedWallets:      d.scorer.Stats().TrackedWallets,
		Coverage:            coverage,
		Trades:              d.portfolio.ClosedTrades(),
		Wallets:             d.scorer.Classified(),
		EquityCurve:         d.portfolio.EquityCurve(),
		Errors:              errs,
	}
}

func (d *Driver) observeCoverage(ev domain.SwapEvent) {
	d.coverage.EventsProcessed++
	if d.coverage.EventsProcessed == 1 {
		d.coverage.FirstSlot = ev.Key.Slot
	}
	d.coverage.LastSlot = ev.Key.Slot
	d.tokens[ev.TokenMint] = struct{}{}
	d.poolsSeen[ev.PoolAddress] = struct{}{}
}

func (d *Driver) recordErr(msg string) {
	d.errs = append(d.errs, msg)
	d.log.Warn().Msg(msg)
}

// pace sleeps the scaled block-time gap between consecutive events.
func (d *Driver) pace(deltaSec, divisor int64) {
	if deltaSec <= 0 {
		return
	}
	d.sleep(time.Duration(deltaSec) * time.Second / time.Duration(divisor))
}

// speedDivisor maps the configured speed to a block-time divisor; 0 means
// unpaced.
func speedDivisor(speed string) int64 {
	switch speed {
	case "1x":
		return 1
	case "10x":
		return 10
	case "100x":
		return 100
	default:
		return 0
	}
}
