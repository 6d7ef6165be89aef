// Package detection implements the large-sell detector. It watches the
// ordered swap stream, flags sells whose base value lands inside the
// configured fraction-of-pool band, and opens an observation window for each
// one. The band excludes both noise at the bottom and panic dumps at the top.
package detection

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/idhash"
	"solana-infra-watch/internal/poolstate"
)

const defaultMaxTrackedTokens = 10_000

// Options configures a Detector.
type Options struct {
	Config config.DetectionConfig
	// Pools is the pool state store; the detector reads it for the
	// pre-event reserves (the store is written after the detector sees each
	// event, so a read returns the state as of the previous swap).
	Pools *poolstate.Store
	// MaxTrackedTokens bounds the per-token price windows.
	MaxTrackedTokens int
	Logger           zerolog.Logger
}

// Stats counts detector outcomes.
type Stats struct {
	SellsSeen   uint64
	SellsInBand uint64
	BelowBand   uint64
	AboveBand   uint64
}

// Detector turns qualifying sell swaps into SellEvents. Not safe for
// concurrent use; the pipeline feeds it from a single goroutine in total
// event order, which is what keeps the pre-event price window exact.
type Detector struct {
	cfg   config.DetectionConfig
	pools *poolstate.Store
	log   zerolog.Logger

	// windows holds the per-token rolling swap prices used for the
	// pre-event average.
	windows *lru.Cache[string, *priceWindow]

	sellsSeen   atomic.Uint64
	sellsInBand atomic.Uint64
	belowBand   atomic.Uint64
	aboveBand   atomic.Uint64
}

// New creates a Detector.
func New(opts Options) (*Detector, error) {
	if opts.Pools == nil {
		return nil, fmt.Errorf("detection: pool store is required")
	}
	if opts.MaxTrackedTokens <= 0 {
		opts.MaxTrackedTokens = defaultMaxTrackedTokens
	}
	windows, err := lru.New[string, *priceWindow](opts.MaxTrackedTokens)
	if err != nil {
		return nil, fmt.Errorf("price windows: %w", err)
	}
	return &Detector{
		cfg:     opts.Config,
		pools:   opts.Pools,
		log:     opts.Logger.With().Str("component", "detector").Logger(),
		windows: windows,
	}, nil
}

// Observe processes one swap in stream order. Returns a SellEvent when the
// swap is a sell inside the configured band, nil otherwise. The swap itself
// is added to the token's price window only after the check, so the
// pre-event average covers swaps strictly before the event.
func (d *Detector) Observe(ev domain.SwapEvent) *domain.SellEvent {
	sell := d.evaluate(ev)
	d.record(ev)
	return sell
}

func (d *Detector) evaluate(ev domain.SwapEvent) *domain.SellEvent {
	if ev.Side != domain.SideSell {
		return nil
	}
	d.sellsSeen.Add(1)

	preBase, preToken := d.preEventReserves(ev)
	if preBase <= 0 || preToken <= 0 {
		return nil
	}

	fraction := ev.AmountBase / preBase
	if fraction < d.cfg.MinSellFraction {
		d.belowBand.Add(1)
		return nil
	}
	if fraction > d.cfg.MaxSellFraction {
		d.aboveBand.Add(1)
		return nil
	}
	d.sellsInBand.Add(1)

	prePrice := d.preEventPrice(ev.TokenMint, ev.BlockTime)
	if prePrice <= 0 {
		prePrice = preBase / preToken
	}

	sell := &domain.SellEvent{
		ID:             idhash.ComputeSellEventID(ev.TokenMint, ev.PoolAddress, ev.Key.Slot, ev.Signature, ev.Key.LogIndex),
		TokenMint:      ev.TokenMint,
		PoolAddress:    ev.PoolAddress,
		Slot:           ev.Key.Slot,
		BlockTime:      ev.BlockTime,
		SellerWallet:   ev.Trader,
		SellAmountBase: ev.AmountBase,
		FractionOfPool: fraction,
		PreEventPrice:  prePrice,
		PostEventPrice: ev.PoolState.PriceBasePerToken,
		WindowEndSlot:  ev.Key.Slot + d.cfg.AbsorptionWindowSlots,
		State:          domain.SellStateObserving,
	}

	d.log.Debug().
		Str("event_id", sell.ID).
		Str("token", sell.TokenMint).
		Int64("slot", sell.Slot).
		Float64("fraction", fraction).
		Float64("pre_price", prePrice).
		Msg("large sell detected")

	return sell
}

// preEventReserves returns the pool reserves before this event applied. The
// pool store still holds the previous swap's snapshot at this point; when
// the pool is unknown (first sight or evicted) the reserves are rebuilt from
// the event's own post-state.
func (d *Detector) preEventReserves(ev domain.SwapEvent) (base, token float64) {
	if snap, ok := d.pools.Get(ev.PoolAddress); ok && snap.Slot <= ev.Key.Slot {
		return snap.ReserveBase, snap.ReserveToken
	}
	// A sell pays base out of the pool and takes token in.
	return ev.PoolState.ReserveBase + ev.AmountBase, ev.PoolState.ReserveToken - ev.AmountToken
}

// preEventPrice is the average trade price across the token's swaps inside
// the rolling window, all strictly before blockTime's event. Zero when the
// token has no recent swaps.
func (d *Detector) preEventPrice(mint string, blockTime int64) float64 {
	w, ok := d.windows.Get(mint)
	if !ok {
		return 0
	}
	return w.average(blockTime - d.cfg.PreEventPriceWindowSec)
}

// record adds the swap to its token's price window.
func (d *Detector) record(ev domain.SwapEvent) {
	if ev.PriceBasePerToken <= 0 {
		return
	}
	w, ok := d.windows.Get(ev.TokenMint)
	if !ok {
		w = &priceWindow{}
		d.windows.Add(ev.TokenMint, w)
	}
	w.push(ev.BlockTime, ev.PriceBasePerToken, d.cfg.PreEventPriceWindowSec)
}

// Stats returns a snapshot of the outcome counters.
func (d *Detector) Stats() Stats {
	return Stats{
		SellsSeen:   d.sellsSeen.Load(),
		SellsInBand: d.sellsInBand.Load(),
		BelowBand:   d.belowBand.Load(),
		AboveBand:   d.aboveBand.Load(),
	}
}

// pricePoint is one swap's price sample.
type pricePoint struct {
	blockTime int64
	price     float64
}

// priceWindow is a pruned slice of recent price samples for one token.
type priceWindow struct {
	points []pricePoint
}

func (w *priceWindow) push(blockTime int64, price float64, windowSec int64) {
	w.points = append(w.points, pricePoint{blockTime: blockTime, price: price})
	w.prune(blockTime - windowSec)
}

// prune drops samples older than cutoff from the front.
func (w *priceWindow) prune(cutoff int64) {
	i := 0
	for i < len(w.points) && w.points[i].blockTime < cutoff {
		i++
	}
	if i > 0 {
		w.points = append(w.points[:0], w.points[i:]...)
	}
}

// average over samples with blockTime >= cutoff. Zero when empty.
func (w *priceWindow) average(cutoff int64) float64 {
	var sum float64
	var n int
	for _, p := range w.points {
		if p.blockTime >= cutoff {
			sum += p.price
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
