// Package ingestion connects the live chain feed to the detection pipeline.
// Log notifications from the WebSocket subscription are resolved into full
// transactions over RPC, normalized into SwapEvents, and released in total
// EventKey order through a slot reorder buffer. The intake is the single
// normalization goroutine, so per-token order holds end to end; the engine
// consumes the ordered stream from the events channel.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/normalization"
	"solana-infra-watch/internal/observability"
	"solana-infra-watch/internal/solana"
)

// ErrFeedClosed is returned when the subscription channel closes underneath
// a running intake, which means the WebSocket client gave up reconnecting.
var ErrFeedClosed = errors.New("log feed closed")

const (
	defaultBufferSize    = 256
	defaultFlushInterval = 5 * time.Second
)

// Options configures an Intake. WS, RPC and Normalizer are required.
type Options struct {
	WS         solana.WSClient
	RPC        solana.RPCClient
	Normalizer *normalization.Normalizer

	// Programs to subscribe to. Empty uses the built-in registry set.
	Programs []string

	// SlotLag is the reorder window; non-positive uses the default.
	SlotLag int64

	// BufferSize caps the events channel. The intake blocks when the
	// consumer falls behind; nothing is dropped on backpressure.
	BufferSize int

	// FlushInterval paces the idle-stream flush of the reorder buffer.
	FlushInterval time.Duration

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// Intake subscribes to DEX program logs and pumps ordered SwapEvents.
type Intake struct {
	ws       solana.WSClient
	rpc      solana.RPCClient
	norm     *normalization.Normalizer
	programs []string
	flush    time.Duration
	metrics  *observability.Metrics
	log      zerolog.Logger

	reorder *Reorder
	seq     map[int64]int // per-slot arrival sequence, assigns TxIndex
	quiet   bool          // no notification since the last flush tick
	out     chan domain.SwapEvent
}

// New creates an Intake.
func New(opts Options) (*Intake, error) {
	if opts.WS == nil || opts.RPC == nil || opts.Normalizer == nil {
		return nil, errors.New("intake requires ws client, rpc client and normalizer")
	}
	if len(opts.Programs) == 0 {
		opts.Programs = []string{solana.RaydiumAmmV4, solana.PumpFunProgramID}
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	return &Intake{
		ws:       opts.WS,
		rpc:      opts.RPC,
		norm:     opts.Normalizer,
		programs: opts.Programs,
		flush:    opts.FlushInterval,
		metrics:  opts.Metrics,
		log:      opts.Logger.With().Str("component", "intake").Logger(),
		reorder:  NewReorder(opts.SlotLag),
		seq:      make(map[int64]int),
		out:      make(chan domain.SwapEvent, opts.BufferSize),
	}, nil
}

// Events returns the ordered swap stream. The channel closes after Run
// returns, so consumers drain by ranging until close.
func (i *Intake) Events() <-chan domain.SwapEvent {
	return i.out
}

// Run subscribes and pumps until ctx is cancelled or the feed dies. The
// reorder buffer drains before the events channel closes, so shutdown
// loses nothing already normalized.
func (i *Intake) Run(ctx context.Context) error {
	merged, err := i.subscribe(ctx)
	if err != nil {
		close(i.out)
		return fmt.Errorf("subscribe: %w", err)
	}

	ticker := time.NewTicker(i.flush)
	defer ticker.Stop()
	defer close(i.out)

	i.log.Info().Strs("programs", i.programs).Msg("live intake started")

	for {
		select {
		case <-ctx.Done():
			i.emit(i.reorder.Flush())
			i.log.Info().Msg("live intake stopped")
			return ctx.Err()

		case notif, ok := <-merged:
			if !ok {
				i.emit(i.reorder.Flush())
				return ErrFeedClosed
			}
			i.quiet = false
			i.handle(ctx, notif)

		case <-ticker.C:
			// Two quiet ticks in a row mean the lag window has long passed
			// in wall time; flush so buffered events are not stranded.
			if i.quiet {
				i.emit(i.reorder.Flush())
				i.pruneSeq()
			}
			i.quiet = true
		}
	}
}

// subscribe opens one logs subscription per program and merges them. Some
// providers reject multi-address mention filters, so each program gets its
// own subscription, forwarded by a goroutine that exits with the source.
func (i *Intake) subscribe(ctx context.Context) (<-chan solana.LogNotification, error) {
	merged := make(chan solana.LogNotification, defaultBufferSize)

	var sources []<-chan solana.LogNotification
	for _, program := range i.programs {
		ch, err := i.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{program}})
		if err != nil {
			return nil, fmt.Errorf("program %s: %w", program, err)
		}
		sources = append(sources, ch)
		i.log.Info().Str("program", program).Msg("subscribed to program logs")
	}

	for _, src := range sources {
		go func(src <-chan solana.LogNotification) {
			for notif := range src {
				select {
				case merged <- notif:
				case <-ctx.Done():
					return
				}
			}
		}(src)
	}
	return merged, nil
}

// handle resolves one notification into at most one ordered event.
func (i *Intake) handle(ctx context.Context, notif solana.LogNotification) {
	if notif.Err != nil {
		return // failed transactions never carry a swap
	}

	tx, err := i.rpc.GetTransaction(ctx, notif.Signature)
	if err != nil {
		i.drop("tx_fetch")
		i.log.Warn().Err(err).Str("signature", notif.Signature).Int64("slot", notif.Slot).
			Msg("transaction fetch failed, event lost")
		return
	}
	if tx == nil {
		i.drop("tx_missing")
		return
	}
	if tx.Slot == 0 {
		tx.Slot = notif.Slot
	}

	ev, err := i.norm.Normalize(ctx, tx, i.nextSeq(tx.Slot))
	if err != nil {
		i.drop(dropReason(err))
		return
	}

	released, ok := i.reorder.Add(*ev)
	if !ok {
		i.drop("late")
		i.log.Warn().Str("signature", ev.Signature).Int64("slot", ev.Key.Slot).
			Int64("horizon", i.reorder.Horizon()).Msg("event behind reorder horizon, dropped")
		return
	}

	if i.metrics != nil {
		i.metrics.SwapEventsNormalized.Inc()
		i.metrics.HighestSlotSeen.Set(float64(i.reorder.Highest()))
		i.metrics.ReorderBufferSlots.Set(float64(i.reorder.Pending()))
	}
	i.emit(released)
	i.pruneSeq()
}

// emit forwards released events downstream. Sends block on a full channel;
// backpressure propagates to the feed rather than dropping ordered events.
func (i *Intake) emit(events []domain.SwapEvent) {
	for _, ev := range events {
		i.out <- ev
		if i.metrics != nil {
			i.metrics.LastEventTimestamp.Set(float64(ev.BlockTime * 1000))
		}
	}
}

// nextSeq hands out the per-slot arrival sequence used as TxIndex. Live
// feeds have no block position, so arrival order within the slot stands in
// for it; the reorder buffer still fixes cross-slot order.
func (i *Intake) nextSeq(slot int64) int {
	n := i.seq[slot]
	i.seq[slot] = n + 1
	return n
}

// pruneSeq forgets sequence counters for slots behind the reorder horizon.
func (i *Intake) pruneSeq() {
	horizon := i.reorder.Horizon()
	for slot := range i.seq {
		if slot <= horizon {
			delete(i.seq, slot)
		}
	}
}

func (i *Intake) drop(reason string) {
	if i.metrics != nil {
		i.metrics.EventsDropped.WithLabelValues(reason).Inc()
	}
}

// dropReason maps normalizer errors onto drop counter labels.
func dropReason(err error) string {
	switch {
	case errors.Is(err, normalization.ErrNotSwap):
		return "not_swap"
	case errors.Is(err, normalization.ErrDuplicateSignature):
		return "duplicate"
	case errors.Is(err, normalization.ErrZeroReserves):
		return "zero_reserves"
	default:
		return "invalid"
	}
}
