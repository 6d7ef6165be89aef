package memory

import (
	"context"
	"sync"

	"solana-infra-watch/internal/storage"
)

// RecordProgressStore is an in-memory implementation of
// storage.RecordProgressStore. Progress kept here does not survive a restart;
// it exists for tests and for recording sessions that deliberately start from
// scratch.
type RecordProgressStore struct {
	mu       sync.RWMutex
	progress *storage.RecordProgress
}

// NewRecordProgressStore creates a new in-memory recorder progress store.
func NewRecordProgressStore() *RecordProgressStore {
	return &RecordProgressStore{}
}

// GetLastArchived returns the last archived slot and signature.
// Returns ErrNotFound if no progress has been saved yet.
func (s *RecordProgressStore) GetLastArchived(_ context.Context) (*storage.RecordProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.progress == nil {
		return nil, storage.ErrNotFound
	}

	cp := *s.progress
	return &cp, nil
}

// SetLastArchived saves the last archived slot and signature.
func (s *RecordProgressStore) SetLastArchived(_ context.Context, progress *storage.RecordProgress) error {
	if progress == nil || progress.Slot < 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *progress
	s.progress = &cp
	return nil
}

var _ storage.RecordProgressStore = (*RecordProgressStore)(nil)
