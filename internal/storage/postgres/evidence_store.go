package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

// EvidenceStore implements storage.EvidenceStore using PostgreSQL.
type EvidenceStore struct {
	pool *Pool
}

// NewEvidenceStore creates a new EvidenceStore.
func NewEvidenceStore(pool *Pool) *EvidenceStore {
	return &EvidenceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EvidenceStore = (*EvidenceStore)(nil)

// Insert adds one evidence row. Returns ErrDuplicateKey if (event_id, wallet) exists.
func (s *EvidenceStore) Insert(ctx context.Context, wallet string, e *domain.AbsorptionEvidence) error {
	if e == nil || wallet == "" || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO absorption_evidence (
			event_id, wallet, token_mint, slot, ts_ms,
			absorption_fraction, stabilized, response_latency_slots, outcome
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		e.EventID, wallet, e.TokenMint, e.Slot, e.Timestamp,
		e.AbsorptionFraction, e.Stabilized, e.ResponseLatencySlots, e.Outcome,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert absorption evidence: %w", err)
	}
	return nil
}

// GetByWallet retrieves a wallet's evidence, ordered by slot ASC.
func (s *EvidenceStore) GetByWallet(ctx context.Context, wallet string) ([]*domain.AbsorptionEvidence, error) {
	query := `
		SELECT event_id, token_mint, slot, ts_ms,
			absorption_fraction, stabilized, response_latency_slots, outcome
		FROM absorption_evidence
		WHERE wallet = $1
		ORDER BY slot ASC, event_id ASC
	`

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("get evidence by wallet: %w", err)
	}
	defer rows.Close()

	return scanEvidenceRows(rows)
}

// GetByEventID retrieves all evidence rows for one sell event, ordered by
// wallet ASC.
func (s *EvidenceStore) GetByEventID(ctx context.Context, eventID string) ([]*domain.AbsorptionEvidence, error) {
	query := `
		SELECT event_id, token_mint, slot, ts_ms,
			absorption_fraction, stabilized, response_latency_slots, outcome
		FROM absorption_evidence
		WHERE event_id = $1
		ORDER BY wallet ASC
	`

	rows, err := s.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("get evidence by event id: %w", err)
	}
	defer rows.Close()

	return scanEvidenceRows(rows)
}

// scanEvidenceRows scans multiple rows into a slice of AbsorptionEvidence.
func scanEvidenceRows(rows pgx.Rows) ([]*domain.AbsorptionEvidence, error) {
	var out []*domain.AbsorptionEvidence

	for rows.Next() {
		var e domain.AbsorptionEvidence
		err := rows.Scan(
			&e.EventID, &e.TokenMint, &e.Slot, &e.Timestamp,
			&e.AbsorptionFraction, &e.Stabilized, &e.ResponseLatencySlots, &e.Outcome,
		)
		if err != nil {
			return nil, fmt.Errorf("scan evidence row: %w", err)
		}
		out = append(out, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate evidence rows: %w", err)
	}

	return out, nil
}
