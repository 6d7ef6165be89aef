package memory

import (
	"context"
	"sort"
	"sync"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

// evidenceKey is the composite key for evidence deduplication.
type evidenceKey struct {
	EventID string
	Wallet  string
}

type evidenceRow struct {
	wallet string
	ev     domain.AbsorptionEvidence
}

// EvidenceStore is an in-memory implementation of storage.EvidenceStore.
type EvidenceStore struct {
	mu   sync.RWMutex
	rows []evidenceRow
	keys map[evidenceKey]bool
}

// NewEvidenceStore creates a new in-memory absorption evidence store.
func NewEvidenceStore() *EvidenceStore {
	return &EvidenceStore{
		keys: make(map[evidenceKey]bool),
	}
}

// Insert adds one evidence row. Returns ErrDuplicateKey if (event_id, wallet) exists.
func (s *EvidenceStore) Insert(_ context.Context, wallet string, e *domain.AbsorptionEvidence) error {
	if e == nil || wallet == "" || e.EventID == "" {
		return storage.ErrInvalidInput
	}

	key := evidenceKey{EventID: e.EventID, Wallet: wallet}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.keys[key] {
		return storage.ErrDuplicateKey
	}

	s.rows = append(s.rows, evidenceRow{wallet: wallet, ev: *e})
	s.keys[key] = true
	return nil
}

// GetByWallet retrieves a wallet's evidence, ordered by slot ASC.
func (s *EvidenceStore) GetByWallet(_ context.Context, wallet string) ([]*domain.AbsorptionEvidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AbsorptionEvidence
	for i := range s.rows {
		if s.rows[i].wallet == wallet {
			cp := s.rows[i].ev
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Slot < result[j].Slot
	})

	return result, nil
}

// GetByEventID retrieves all evidence rows for one sell event, ordered by
// wallet ASC.
func (s *EvidenceStore) GetByEventID(_ context.Context, eventID string) ([]*domain.AbsorptionEvidence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []evidenceRow
	for _, r := range s.rows {
		if r.ev.EventID == eventID {
			matched = append(matched, r)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].wallet < matched[j].wallet
	})

	result := make([]*domain.AbsorptionEvidence, 0, len(matched))
	for i := range matched {
		cp := matched[i].ev
		result = append(result, &cp)
	}
	return result, nil
}

var _ storage.EvidenceStore = (*EvidenceStore)(nil)
