package postgres

import (
	"context"
	"fmt"

	"solana-infra-watch/internal/storage"
)

// RecordProgressStore implements storage.RecordProgressStore using PostgreSQL.
// Progress is a single row; every save replaces it.
type RecordProgressStore struct {
	pool *Pool
}

// NewRecordProgressStore creates a new RecordProgressStore.
func NewRecordProgressStore(pool *Pool) *RecordProgressStore {
	return &RecordProgressStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RecordProgressStore = (*RecordProgressStore)(nil)

// GetLastArchived returns the last archived slot and signature.
// Returns ErrNotFound if no progress has been saved yet.
func (s *RecordProgressStore) GetLastArchived(ctx context.Context) (*storage.RecordProgress, error) {
	query := `SELECT slot, signature FROM record_progress WHERE id = 1`

	var p storage.RecordProgress
	err := s.pool.QueryRow(ctx, query).Scan(&p.Slot, &p.Signature)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get record progress: %w", err)
	}
	return &p, nil
}

// SetLastArchived saves the last archived slot and signature.
func (s *RecordProgressStore) SetLastArchived(ctx context.Context, progress *storage.RecordProgress) error {
	if progress == nil || progress.Slot < 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO record_progress (id, slot, signature)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			slot = EXCLUDED.slot,
			signature = EXCLUDED.signature,
			updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, progress.Slot, progress.Signature); err != nil {
		return fmt.Errorf("set record progress: %w", err)
	}
	return nil
}
