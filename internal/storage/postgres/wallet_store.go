package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL. The evidence
// ring inside WalletBehavior is not mirrored here; evidence rows live in
// absorption_evidence and are written by the evidence store.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

const walletColumns = `
	wallet, first_seen_ms, last_seen_ms,
	total_absorptions, successful_absorptions, unique_tokens,
	stabilization_success_rate, avg_absorption_fraction, avg_response_latency,
	size_consistency, activity_pattern,
	confidence, classification, status
`

// Upsert inserts or replaces the behavior row keyed by b.Wallet.
func (s *WalletStore) Upsert(ctx context.Context, b *domain.WalletBehavior) error {
	if b == nil || b.Wallet == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO wallet_behaviors (` + walletColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (wallet) DO UPDATE SET
			first_seen_ms = EXCLUDED.first_seen_ms,
			last_seen_ms = EXCLUDED.last_seen_ms,
			total_absorptions = EXCLUDED.total_absorptions,
			successful_absorptions = EXCLUDED.successful_absorptions,
			unique_tokens = EXCLUDED.unique_tokens,
			stabilization_success_rate = EXCLUDED.stabilization_success_rate,
			avg_absorption_fraction = EXCLUDED.avg_absorption_fraction,
			avg_response_latency = EXCLUDED.avg_response_latency,
			size_consistency = EXCLUDED.size_consistency,
			activity_pattern = EXCLUDED.activity_pattern,
			confidence = EXCLUDED.confidence,
			classification = EXCLUDED.classification,
			status = EXCLUDED.status,
			updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		b.Wallet, b.FirstSeen, b.LastSeen,
		b.TotalAbsorptions, b.SuccessfulAbsorptions, tokensToSlice(b.UniqueTokens),
		b.StabilizationSuccessRate, b.AvgAbsorptionFraction, b.AvgResponseLatency,
		b.SizeConsistency, b.ActivityPattern,
		b.Confidence, b.Classification, b.Status,
	)
	if err != nil {
		return fmt.Errorf("upsert wallet behavior: %w", err)
	}
	return nil
}

// GetByWallet retrieves a behavior by wallet address. Returns ErrNotFound if not exists.
func (s *WalletStore) GetByWallet(ctx context.Context, wallet string) (*domain.WalletBehavior, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallet_behaviors
		WHERE wallet = $1
	`

	row := s.pool.QueryRow(ctx, query, wallet)
	b, err := scanWalletBehavior(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get wallet behavior: %w", err)
	}
	return b, nil
}

// GetByClassification retrieves behaviors with the given classification,
// ordered by confidence DESC then wallet ASC.
func (s *WalletStore) GetByClassification(ctx context.Context, classification string) ([]*domain.WalletBehavior, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallet_behaviors
		WHERE classification = $1
		ORDER BY confidence DESC, wallet ASC
	`

	rows, err := s.pool.Query(ctx, query, classification)
	if err != nil {
		return nil, fmt.Errorf("get wallet behaviors by classification: %w", err)
	}
	defer rows.Close()

	return scanWalletBehaviors(rows)
}

// GetAll retrieves every tracked behavior, ordered by wallet ASC.
func (s *WalletStore) GetAll(ctx context.Context) ([]*domain.WalletBehavior, error) {
	query := `
		SELECT ` + walletColumns + `
		FROM wallet_behaviors
		ORDER BY wallet ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all wallet behaviors: %w", err)
	}
	defer rows.Close()

	return scanWalletBehaviors(rows)
}

// Delete removes a pruned wallet. Deleting a missing wallet is not an error.
func (s *WalletStore) Delete(ctx context.Context, wallet string) error {
	if wallet == "" {
		return storage.ErrInvalidInput
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM wallet_behaviors WHERE wallet = $1`, wallet); err != nil {
		return fmt.Errorf("delete wallet behavior: %w", err)
	}
	return nil
}

// tokensToSlice flattens the unique token set into a sorted array column.
func tokensToSlice(tokens map[string]struct{}) []string {
	out := make([]string, 0, len(tokens))
	for mint := range tokens {
		out = append(out, mint)
	}
	sort.Strings(out)
	return out
}

// scanWalletBehavior scans a single row into a WalletBehavior.
func scanWalletBehavior(row pgx.Row) (*domain.WalletBehavior, error) {
	var b domain.WalletBehavior
	var tokens []string

	err := row.Scan(
		&b.Wallet, &b.FirstSeen, &b.LastSeen,
		&b.TotalAbsorptions, &b.SuccessfulAbsorptions, &tokens,
		&b.StabilizationSuccessRate, &b.AvgAbsorptionFraction, &b.AvgResponseLatency,
		&b.SizeConsistency, &b.ActivityPattern,
		&b.Confidence, &b.Classification, &b.Status,
	)
	if err != nil {
		return nil, err
	}

	b.UniqueTokens = make(map[string]struct{}, len(tokens))
	for _, mint := range tokens {
		b.UniqueTokens[mint] = struct{}{}
	}
	return &b, nil
}

// scanWalletBehaviors scans multiple rows into a slice of WalletBehavior.
func scanWalletBehaviors(rows pgx.Rows) ([]*domain.WalletBehavior, error) {
	var behaviors []*domain.WalletBehavior

	for rows.Next() {
		b, err := scanWalletBehavior(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet behavior row: %w", err)
		}
		behaviors = append(behaviors, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet behavior rows: %w", err)
	}

	return behaviors, nil
}
