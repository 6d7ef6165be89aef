package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSellEventID computes a deterministic sell event ID using SHA256.
// Formula: SHA256(mint|pool|slot|tx_signature|log_index)
// Returns hex-encoded hash (64 characters).
func ComputeSellEventID(
	mint string,
	pool string,
	slot int64,
	txSignature string,
	logIndex int,
) string {
	data := fmt.Sprintf("%s|%s|%d|%s|%d",
		mint,
		pool,
		slot,
		txSignature,
		logIndex,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeSignalID computes a deterministic signal ID using SHA256.
// Formula: SHA256(mint|sell_event_id|absorber_wallet)
// Returns hex-encoded hash (64 characters).
func ComputeSignalID(
	mint string,
	sellEventID string,
	absorberWallet string,
) string {
	data := fmt.Sprintf("%s|%s|%s",
		mint,
		sellEventID,
		absorberWallet,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
