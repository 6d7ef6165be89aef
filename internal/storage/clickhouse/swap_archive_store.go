package clickhouse

import (
	"context"
	"fmt"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

// SwapArchiveStore implements storage.SwapArchiveStore using ClickHouse.
// The table is a ReplacingMergeTree keyed by the event ordering key, so a
// recorder restart that re-archives a tail of events is harmless: duplicates
// collapse at merge time and reads query FINAL.
type SwapArchiveStore struct {
	conn *Conn
}

// NewSwapArchiveStore creates a new SwapArchiveStore.
func NewSwapArchiveStore(conn *Conn) *SwapArchiveStore {
	return &SwapArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SwapArchiveStore = (*SwapArchiveStore)(nil)

const swapColumns = `
	slot, tx_index, inner_index, log_index,
	signature, block_time, program_id,
	pool_address, token_mint, base_mint, trader, side,
	amount_base, amount_token, price,
	pool_slot, reserve_base, reserve_token, liquidity_usd
`

// InsertBulk appends a batch of normalized swaps. Duplicate keys are
// tolerated; the archive deduplicates on read.
func (s *SwapArchiveStore) InsertBulk(ctx context.Context, events []*domain.SwapEvent) error {
	if len(events) == 0 {
		return nil
	}

	for _, e := range events {
		if e == nil || e.Signature == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO swap_events (`+swapColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.Key.Slot, int32(e.Key.TxIndex), int32(e.Key.InnerIndex), int32(e.Key.LogIndex),
			e.Signature, e.BlockTime, e.ProgramID,
			e.PoolAddress, e.TokenMint, e.BaseMint, e.Trader, e.Side,
			e.AmountBase, e.AmountToken, e.PriceBasePerToken,
			e.PoolState.Slot, e.PoolState.ReserveBase, e.PoolState.ReserveToken, e.PoolState.LiquidityUsd,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySlotRange retrieves swaps within [start, end] (inclusive), in total
// event order.
func (s *SwapArchiveStore) GetBySlotRange(ctx context.Context, startSlot, endSlot int64) ([]*domain.SwapEvent, error) {
	if startSlot > endSlot {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + swapColumns + `
		FROM swap_events FINAL
		WHERE slot >= ? AND slot <= ?
		ORDER BY slot, tx_index, inner_index, log_index
	`

	rows, err := s.conn.Query(ctx, query, startSlot, endSlot)
	if err != nil {
		return nil, fmt.Errorf("query by slot range: %w", err)
	}
	defer rows.Close()

	return scanSwapEvents(rows)
}

// GetByToken retrieves swaps for one token within [start, end] (inclusive),
// in total event order.
func (s *SwapArchiveStore) GetByToken(ctx context.Context, tokenMint string, startSlot, endSlot int64) ([]*domain.SwapEvent, error) {
	if startSlot > endSlot {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT ` + swapColumns + `
		FROM swap_events FINAL
		WHERE token_mint = ? AND slot >= ? AND slot <= ?
		ORDER BY slot, tx_index, inner_index, log_index
	`

	rows, err := s.conn.Query(ctx, query, tokenMint, startSlot, endSlot)
	if err != nil {
		return nil, fmt.Errorf("query by token: %w", err)
	}
	defer rows.Close()

	return scanSwapEvents(rows)
}

// Rows interface for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanSwapEvents scans archive rows back into canonical swap events. The
// snapshot price is recomputed from the reserves, matching how the
// normalizer derives it.
func scanSwapEvents(rows chRows) ([]*domain.SwapEvent, error) {
	var events []*domain.SwapEvent

	for rows.Next() {
		var e domain.SwapEvent
		var txIndex, innerIndex, logIndex int32

		err := rows.Scan(
			&e.Key.Slot, &txIndex, &innerIndex, &logIndex,
			&e.Signature, &e.BlockTime, &e.ProgramID,
			&e.PoolAddress, &e.TokenMint, &e.BaseMint, &e.Trader, &e.Side,
			&e.AmountBase, &e.AmountToken, &e.PriceBasePerToken,
			&e.PoolState.Slot, &e.PoolState.ReserveBase, &e.PoolState.ReserveToken, &e.PoolState.LiquidityUsd,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap event row: %w", err)
		}

		e.Key.TxIndex = int(txIndex)
		e.Key.InnerIndex = int(innerIndex)
		e.Key.LogIndex = int(logIndex)
		e.PoolState.PoolAddress = e.PoolAddress
		if e.PoolState.ReserveToken > 0 {
			e.PoolState.PriceBasePerToken = e.PoolState.ReserveBase / e.PoolState.ReserveToken
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap event rows: %w", err)
	}

	return events, nil
}
