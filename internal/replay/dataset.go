package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
)

// maxLineBytes bounds one dataset line; real records are well under 1 KiB.
const maxLineBytes = 1 << 20

// record is the JSON-lines form of one swap event. amountIn/amountOut carry
// the raw traded quantities in their own units; amountInBase/amountOutBase
// carry the base-denominated value when the respective side is the base
// currency. Decoding prefers the explicit base fields.
//
// txIndex and innerIndex are pointers so absence is distinguishable from
// zero: a missing txIndex is tolerated only on single-event slots, and a
// missing innerIndex means a top-level instruction.
type record struct {
	Slot          int64      `json:"slot"`
	Signature     string     `json:"signature"`
	BlockTime     int64      `json:"blockTime"`
	ProgramID     string     `json:"programId"`
	TxIndex       *int       `json:"txIndex,omitempty"`
	LogIndex      int        `json:"logIndex"`
	InnerIndex    *int       `json:"innerIndex,omitempty"`
	PoolAddress   string     `json:"poolAddress"`
	TokenMint     string     `json:"tokenMint"`
	BaseMint      string     `json:"baseMint"`
	Trader        string     `json:"trader"`
	Side          string     `json:"side"`
	AmountIn      float64    `json:"amountIn"`
	AmountOut     float64    `json:"amountOut"`
	AmountInBase  float64    `json:"amountInBase,omitempty"`
	AmountOutBase float64    `json:"amountOutBase,omitempty"`
	PoolState     poolRecord `json:"poolState"`
}

// poolRecord is the embedded pool snapshot of one record.
type poolRecord struct {
	Slot         int64    `json:"slot"`
	PoolAddress  string   `json:"poolAddress"`
	ReserveBase  float64  `json:"reserveBase"`
	ReserveToken float64  `json:"reserveToken"`
	PriceBase    float64  `json:"priceBase"`
	LiquidityUsd *float64 `json:"liquidityUsd,omitempty"`
}

// validate rejects records the pipeline cannot place in total order or
// attribute to a wallet. The replay driver requires totality, so a bad
// record fails the whole load.
func (r record) validate() error {
	if r.Signature == "" {
		return fmt.Errorf("missing signature")
	}
	if r.Slot <= 0 {
		return fmt.Errorf("missing slot")
	}
	if r.Side != domain.SideBuy && r.Side != domain.SideSell {
		return fmt.Errorf("invalid side %q", r.Side)
	}
	if r.PoolAddress == "" {
		return fmt.Errorf("missing poolAddress")
	}
	if r.TokenMint == "" {
		return fmt.Errorf("missing tokenMint")
	}
	if r.Trader == "" {
		return fmt.Errorf("missing trader")
	}
	base, token := r.amounts()
	if base <= 0 || token <= 0 {
		return fmt.Errorf("non-positive amounts (base=%v token=%v)", base, token)
	}
	return nil
}

// amounts resolves the base and token quantities from the in/out fields.
func (r record) amounts() (base, token float64) {
	if r.Side == domain.SideBuy {
		base = r.AmountInBase
		if base <= 0 {
			base = r.AmountIn
		}
		return base, r.AmountOut
	}
	base = r.AmountOutBase
	if base <= 0 {
		base = r.AmountOut
	}
	return base, r.AmountIn
}

// event materializes the canonical swap event. A missing txIndex decodes as
// 0; LoadDataset rejects that case when the slot is contested.
func (r record) event() domain.SwapEvent {
	txIndex := 0
	if r.TxIndex != nil {
		txIndex = *r.TxIndex
	}
	innerIndex := -1
	if r.InnerIndex != nil {
		innerIndex = *r.InnerIndex
	}

	base, token := r.amounts()
	price := r.PoolState.PriceBase
	if base > 0 && token > 0 {
		price = base / token
	}

	snap := domain.PoolStateSnapshot{
		Slot:              r.PoolState.Slot,
		PoolAddress:       r.PoolState.PoolAddress,
		ReserveBase:       r.PoolState.ReserveBase,
		ReserveToken:      r.PoolState.ReserveToken,
		PriceBasePerToken: r.PoolState.PriceBase,
		LiquidityUsd:      r.PoolState.LiquidityUsd,
	}
	if snap.Slot == 0 {
		snap.Slot = r.Slot
	}
	if snap.PoolAddress == "" {
		snap.PoolAddress = r.PoolAddress
	}
	if snap.PriceBasePerToken <= 0 && snap.Valid() {
		snap.PriceBasePerToken = snap.ReserveBase / snap.ReserveToken
	}

	return domain.SwapEvent{
		Key: domain.EventKey{
			Slot:       r.Slot,
			TxIndex:    txIndex,
			InnerIndex: innerIndex,
			LogIndex:   r.LogIndex,
		},
		Signature:         r.Signature,
		BlockTime:         r.BlockTime,
		ProgramID:         r.ProgramID,
		PoolAddress:       r.PoolAddress,
		TokenMint:         r.TokenMint,
		BaseMint:          r.BaseMint,
		Trader:            r.Trader,
		Side:              r.Side,
		AmountBase:        base,
		AmountToken:       token,
		PriceBasePerToken: price,
		PoolState:         snap,
	}
}

// encodeRecord is the inverse of record.event for the dataset recorder.
func encodeRecord(ev domain.SwapEvent) record {
	txIndex := ev.Key.TxIndex
	innerIndex := ev.Key.InnerIndex

	rec := record{
		Slot:        ev.Key.Slot,
		Signature:   ev.Signature,
		BlockTime:   ev.BlockTime,
		ProgramID:   ev.ProgramID,
		TxIndex:     &txIndex,
		LogIndex:    ev.Key.LogIndex,
		InnerIndex:  &innerIndex,
		PoolAddress: ev.PoolAddress,
		TokenMint:   ev.TokenMint,
		BaseMint:    ev.BaseMint,
		Trader:      ev.Trader,
		Side:        ev.Side,
		PoolState: poolRecord{
			Slot:         ev.PoolState.Slot,
			PoolAddress:  ev.PoolState.PoolAddress,
			ReserveBase:  ev.PoolState.ReserveBase,
			ReserveToken: ev.PoolState.ReserveToken,
			PriceBase:    ev.PoolState.PriceBasePerToken,
			LiquidityUsd: ev.PoolState.LiquidityUsd,
		},
	}
	if ev.Side == domain.SideBuy {
		rec.AmountIn = ev.AmountBase
		rec.AmountInBase = ev.AmountBase
		rec.AmountOut = ev.AmountToken
	} else {
		rec.AmountIn = ev.AmountToken
		rec.AmountOut = ev.AmountBase
		rec.AmountOutBase = ev.AmountBase
	}
	return rec
}

// loadedEvent pairs a decoded event with whether its txIndex was explicit.
type loadedEvent struct {
	ev         domain.SwapEvent
	hasTxIndex bool
}

// LoadDataset reads the JSON-lines dataset named by the config, applies the
// slot/time bounds, sorts into total event order, and validates signature
// uniqueness and ordering decidability. Dataset files are append-only and
// not required to be pre-sorted.
func LoadDataset(cfg config.ReplayConfig) ([]domain.SwapEvent, error) {
	f, err := os.Open(cfg.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return readDataset(f, cfg)
}

func readDataset(r io.Reader, cfg config.ReplayConfig) ([]domain.SwapEvent, error) {
	var loaded []loadedEvent

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", lineNo, err)
		}
		if err := rec.validate(); err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", lineNo, err)
		}

		ev := rec.event()
		if !inBounds(ev, cfg) {
			continue
		}
		loaded = append(loaded, loadedEvent{ev: ev, hasTxIndex: rec.TxIndex != nil})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].ev.Key.Less(loaded[j].ev.Key)
	})
	if err := validateLoaded(loaded); err != nil {
		return nil, err
	}

	events := make([]domain.SwapEvent, len(loaded))
	for i, l := range loaded {
		events[i] = l.ev
	}
	return events, nil
}

// inBounds applies the configured slot and time windows; zero bounds are
// unset.
func inBounds(ev domain.SwapEvent, cfg config.ReplayConfig) bool {
	if cfg.StartSlot > 0 && ev.Key.Slot < cfg.StartSlot {
		return false
	}
	if cfg.EndSlot > 0 && ev.Key.Slot > cfg.EndSlot {
		return false
	}
	if cfg.StartTime > 0 && ev.BlockTime < cfg.StartTime {
		return false
	}
	if cfg.EndTime > 0 && ev.BlockTime > cfg.EndTime {
		return false
	}
	return true
}

// validateLoaded runs over the sorted events and rejects duplicate
// signatures, duplicate ordering keys, and slots where ordering is
// undecidable because txIndex is absent. These break replay determinism and
// are fatal.
func validateLoaded(loaded []loadedEvent) error {
	slotCount := make(map[int64]int, len(loaded))
	for _, l := range loaded {
		slotCount[l.ev.Key.Slot]++
	}

	seen := make(map[string]struct{}, len(loaded))
	for i, l := range loaded {
		if _, dup := seen[l.ev.Signature]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSignature, l.ev.Signature)
		}
		seen[l.ev.Signature] = struct{}{}

		if slotCount[l.ev.Key.Slot] > 1 && !l.hasTxIndex {
			return fmt.Errorf("%w: slot %d has %d events and signature %s carries no txIndex",
				ErrAmbiguousOrder, l.ev.Key.Slot, slotCount[l.ev.Key.Slot], l.ev.Signature)
		}
		if i > 0 && loaded[i-1].ev.Key.Compare(l.ev.Key) == 0 {
			return fmt.Errorf("%w: signatures %s and %s share ordering key at slot %d",
				ErrAmbiguousOrder, loaded[i-1].ev.Signature, l.ev.Signature, l.ev.Key.Slot)
		}
	}
	return nil
}

// DatasetWriter appends swap events to a JSON-lines dataset stream, one
// record per line in recording order.
type DatasetWriter struct {
	w *bufio.Writer
	n int
}

// NewDatasetWriter wraps a stream for appending. The caller owns the
// underlying writer and must call Flush before closing it.
func NewDatasetWriter(w io.Writer) *DatasetWriter {
	return &DatasetWriter{w: bufio.NewWriter(w)}
}

// Append writes one event as a dataset line.
func (dw *DatasetWriter) Append(ev domain.SwapEvent) error {
	line, err := json.Marshal(encodeRecord(ev))
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := dw.w.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := dw.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	dw.n++
	return nil
}

// Flush drains buffered records to the underlying writer.
func (dw *DatasetWriter) Flush() error {
	return dw.w.Flush()
}

// Count returns the number of records appended.
func (dw *DatasetWriter) Count() int {
	return dw.n
}
