package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	trade_id, signal_id, event_id,
	token_mint, pool_address, absorber,
	entry_slot, entry_price, entry_slippage_bps, entry_fees, cost_base, amount_token,
	exit_slot, exit_price, exit_slippage_bps, exit_fees, exit_reason,
	realized_pnl, return_pct, holding_slots, mae, mfe,
	signal_strength, stabilization_confirmed, sell_fraction_of_pool, absorption_fraction
`

const insertTradeQuery = `
	INSERT INTO virtual_trades (` + tradeColumns + `)
	VALUES (
		$1, $2, $3,
		$4, $5, $6,
		$7, $8, $9, $10, $11, $12,
		$13, $14, $15, $16, $17,
		$18, $19, $20, $21, $22,
		$23, $24, $25, $26
	)
`

func tradeArgs(t *domain.VirtualTrade) []any {
	return []any{
		t.TradeID, t.SignalID, t.EventID,
		t.TokenMint, t.PoolAddress, t.Absorber,
		t.EntrySlot, t.EntryPrice, t.EntrySlippageBps, t.EntryFees, t.CostBase, t.AmountToken,
		t.ExitSlot, t.ExitPrice, t.ExitSlippageBps, t.ExitFees, t.ExitReason,
		t.RealizedPnl, t.ReturnPct, t.HoldingSlots, t.MAE, t.MFE,
		t.SignalStrength, t.StabilizationConfirmed, t.SellFractionOfPool, t.AbsorptionFraction,
	}
}

// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.VirtualTrade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertTradeQuery, tradeArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert virtual trade: %w", err)
	}
	return nil
}

// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
func (s *TradeStore) InsertBulk(ctx context.Context, trades []*domain.VirtualTrade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, t := range trades {
		if t == nil || t.TradeID == "" {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, insertTradeQuery, tradeArgs(t)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert virtual trade in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, tradeID string) (*domain.VirtualTrade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM virtual_trades
		WHERE trade_id = $1
	`

	row := s.pool.QueryRow(ctx, query, tradeID)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get virtual trade by id: %w", err)
	}
	return t, nil
}

// GetByToken retrieves all trades on a token mint, ordered by entry slot ASC.
func (s *TradeStore) GetByToken(ctx context.Context, tokenMint string) ([]*domain.VirtualTrade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM virtual_trades
		WHERE token_mint = $1
		ORDER BY entry_slot ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query, tokenMint)
	if err != nil {
		return nil, fmt.Errorf("get virtual trades by token: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetAll retrieves all trades, ordered by entry slot ASC.
func (s *TradeStore) GetAll(ctx context.Context) ([]*domain.VirtualTrade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM virtual_trades
		ORDER BY entry_slot ASC, trade_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all virtual trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrade scans a single row into a VirtualTrade.
func scanTrade(row pgx.Row) (*domain.VirtualTrade, error) {
	var t domain.VirtualTrade

	err := row.Scan(
		&t.TradeID, &t.SignalID, &t.EventID,
		&t.TokenMint, &t.PoolAddress, &t.Absorber,
		&t.EntrySlot, &t.EntryPrice, &t.EntrySlippageBps, &t.EntryFees, &t.CostBase, &t.AmountToken,
		&t.ExitSlot, &t.ExitPrice, &t.ExitSlippageBps, &t.ExitFees, &t.ExitReason,
		&t.RealizedPnl, &t.ReturnPct, &t.HoldingSlots, &t.MAE, &t.MFE,
		&t.SignalStrength, &t.StabilizationConfirmed, &t.SellFractionOfPool, &t.AbsorptionFraction,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// scanTrades scans multiple rows into a slice of VirtualTrade.
func scanTrades(rows pgx.Rows) ([]*domain.VirtualTrade, error) {
	var trades []*domain.VirtualTrade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan virtual trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate virtual trade rows: %w", err)
	}

	return trades, nil
}
