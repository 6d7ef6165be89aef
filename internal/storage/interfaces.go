package storage

import (
	"context"

	"solana-infra-watch/internal/domain"
)

// WalletStore provides access to wallet_behaviors storage. Rows are replaced
// wholesale on every rescore; memory is authoritative and the store is a
// best-effort mirror.
type WalletStore interface {
	// Upsert inserts or replaces the behavior row keyed by b.Wallet.
	Upsert(ctx context.Context, b *domain.WalletBehavior) error

	// GetByWallet retrieves a behavior by wallet address. Returns ErrNotFound if not exists.
	GetByWallet(ctx context.Context, wallet string) (*domain.WalletBehavior, error)

	// GetByClassification retrieves behaviors with the given classification,
	// ordered by confidence DESC then wallet ASC.
	GetByClassification(ctx context.Context, classification string) ([]*domain.WalletBehavior, error)

	// GetAll retrieves every tracked behavior, ordered by wallet ASC.
	GetAll(ctx context.Context) ([]*domain.WalletBehavior, error)

	// Delete removes a pruned wallet. Deleting a missing wallet is not an error.
	Delete(ctx context.Context, wallet string) error
}

// EvidenceStore provides access to absorption_evidence storage.
type EvidenceStore interface {
	// Insert adds one evidence row. Returns ErrDuplicateKey if (event_id, wallet) exists.
	Insert(ctx context.Context, wallet string, e *domain.AbsorptionEvidence) error

	// GetByWallet retrieves a wallet's evidence, ordered by slot ASC.
	GetByWallet(ctx context.Context, wallet string) ([]*domain.AbsorptionEvidence, error)

	// GetByEventID retrieves all evidence rows for one sell event.
	GetByEventID(ctx context.Context, eventID string) ([]*domain.AbsorptionEvidence, error)
}

// TradeStore provides access to virtual_trades storage.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if trade_id exists.
	Insert(ctx context.Context, t *domain.VirtualTrade) error

	// InsertBulk adds multiple trades atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, trades []*domain.VirtualTrade) error

	// GetByID retrieves a trade by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, tradeID string) (*domain.VirtualTrade, error)

	// GetByToken retrieves all trades on a token mint, ordered by entry slot ASC.
	GetByToken(ctx context.Context, tokenMint string) ([]*domain.VirtualTrade, error)

	// GetAll retrieves all trades, ordered by entry slot ASC.
	GetAll(ctx context.Context) ([]*domain.VirtualTrade, error)
}

// SwapArchiveStore provides access to the swap_events archive used to build
// replay datasets.
type SwapArchiveStore interface {
	// InsertBulk appends a batch of normalized swaps. Duplicate keys are
	// tolerated; the archive deduplicates on read.
	InsertBulk(ctx context.Context, events []*domain.SwapEvent) error

	// GetBySlotRange retrieves swaps within [start, end] (inclusive), in
	// total event order.
	GetBySlotRange(ctx context.Context, startSlot, endSlot int64) ([]*domain.SwapEvent, error)

	// GetByToken retrieves swaps for one token within [start, end] (inclusive),
	// in total event order.
	GetByToken(ctx context.Context, tokenMint string, startSlot, endSlot int64) ([]*domain.SwapEvent, error)
}
