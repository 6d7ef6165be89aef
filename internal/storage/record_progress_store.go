package storage

import "context"

// RecordProgress marks the last archived position in the chain.
type RecordProgress struct {
	Slot      int64  // last archived Solana slot
	Signature string // last archived transaction signature
}

// RecordProgressStore persists recorder state so an interrupted recording
// session resumes where it stopped instead of re-archiving from scratch.
type RecordProgressStore interface {
	// GetLastArchived returns the last archived slot and signature.
	// Returns ErrNotFound if no progress has been saved yet.
	GetLastArchived(ctx context.Context) (*RecordProgress, error)

	// SetLastArchived saves the last archived slot and signature.
	SetLastArchived(ctx context.Context, progress *RecordProgress) error
}
