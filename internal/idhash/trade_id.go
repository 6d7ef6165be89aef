package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic virtual trade ID using SHA256.
// Formula: SHA256(signal_id|entry_slot)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	signalID string,
	entrySlot int64,
) string {
	data := fmt.Sprintf("%s|%d",
		signalID,
		entrySlot,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
