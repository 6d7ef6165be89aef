package scoring

import (
	"encoding/json"
	"fmt"
	"sort"

	"solana-infra-watch/internal/domain"
)

const snapshotVersion = 1

// snapshotFile is the on-disk JSON layout. Token sets become sorted lists
// and wallets are ordered by address so identical state produces identical
// bytes.
type snapshotFile struct {
	Version     int              `json:"version"`
	TakenAtMs   int64            `json:"taken_at_ms"`
	LastDecayMs int64            `json:"last_decay_ms"`
	Wallets     []walletSnapshot `json:"wallets"`
}

type walletSnapshot struct {
	Wallet                   string             `json:"wallet"`
	FirstSeenMs              int64              `json:"first_seen_ms"`
	LastSeenMs               int64              `json:"last_seen_ms"`
	TotalAbsorptions         int                `json:"total_absorptions"`
	SuccessfulAbsorptions    int                `json:"successful_absorptions"`
	UniqueTokens             []string           `json:"unique_tokens"`
	Evidence                 []evidenceSnapshot `json:"evidence"`
	StabilizationSuccessRate float64            `json:"stabilization_success_rate"`
	AvgAbsorptionFraction    float64            `json:"avg_absorption_fraction"`
	AvgResponseLatency       float64            `json:"avg_response_latency"`
	SizeConsistency          float64            `json:"size_consistency"`
	ActivityPattern          string             `json:"activity_pattern"`
	Confidence               float64            `json:"confidence"`
	ScoredConfidence         float64            `json:"scored_confidence"`
	Classification           string             `json:"classification"`
	Status                   string             `json:"status"`
}

type evidenceSnapshot struct {
	EventID              string  `json:"event_id"`
	TokenMint            string  `json:"token_mint"`
	Slot                 int64   `json:"slot"`
	TimestampMs          int64   `json:"timestamp_ms"`
	AbsorptionFraction   float64 `json:"absorption_fraction"`
	Stabilized           bool    `json:"stabilized"`
	ResponseLatencySlots int64   `json:"response_latency_slots"`
	Outcome              string  `json:"outcome"`
}

// Snapshot serializes the full scorer state. Restoring the result into a
// fresh scorer and snapshotting again at the same timestamp yields identical
// bytes.
func (s *Scorer) Snapshot(takenAtMs int64) ([]byte, error) {
	file := snapshotFile{
		Version:     snapshotVersion,
		TakenAtMs:   takenAtMs,
		LastDecayMs: s.lastDecayMs.Load(),
	}
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, st := range sh.wallets {
			file.Wallets = append(file.Wallets, snapshotWallet(st))
		}
		sh.mu.RUnlock()
	}
	sort.Slice(file.Wallets, func(i, j int) bool { return file.Wallets[i].Wallet < file.Wallets[j].Wallet })
	return json.MarshalIndent(file, "", "  ")
}

func snapshotWallet(st *walletState) walletSnapshot {
	b := &st.behavior
	tokens := make([]string, 0, len(b.UniqueTokens))
	for mint := range b.UniqueTokens {
		tokens = append(tokens, mint)
	}
	sort.Strings(tokens)

	evidence := make([]evidenceSnapshot, len(b.EvidenceLog))
	for i, e := range b.EvidenceLog {
		evidence[i] = evidenceSnapshot{
			EventID:              e.EventID,
			TokenMint:            e.TokenMint,
			Slot:                 e.Slot,
			TimestampMs:          e.Timestamp,
			AbsorptionFraction:   e.AbsorptionFraction,
			Stabilized:           e.Stabilized,
			ResponseLatencySlots: e.ResponseLatencySlots,
			Outcome:              e.Outcome,
		}
	}

	return walletSnapshot{
		Wallet:                   b.Wallet,
		FirstSeenMs:              b.FirstSeen,
		LastSeenMs:               b.LastSeen,
		TotalAbsorptions:         b.TotalAbsorptions,
		SuccessfulAbsorptions:    b.SuccessfulAbsorptions,
		UniqueTokens:             tokens,
		Evidence:                 evidence,
		StabilizationSuccessRate: b.StabilizationSuccessRate,
		AvgAbsorptionFraction:    b.AvgAbsorptionFraction,
		AvgResponseLatency:       b.AvgResponseLatency,
		SizeConsistency:          b.SizeConsistency,
		ActivityPattern:          b.ActivityPattern,
		Confidence:               b.Confidence,
		ScoredConfidence:         st.scored,
		Classification:           b.Classification,
		Status:                   b.Status,
	}
}

// Restore replaces the scorer state with a previously taken snapshot.
func (s *Scorer) Restore(data []byte) error {
	var file snapshotFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	if file.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", file.Version)
	}

	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.wallets = make(map[string]*walletState)
		sh.mu.Unlock()
	}
	s.tracked.Store(0)
	s.lastDecayMs.Store(file.LastDecayMs)

	for _, ws := range file.Wallets {
		st := restoreWallet(ws)
		sh := s.shardFor(ws.Wallet)
		sh.mu.Lock()
		sh.wallets[ws.Wallet] = st
		sh.mu.Unlock()
		s.tracked.Add(1)
	}
	return nil
}

func restoreWallet(ws walletSnapshot) *walletState {
	tokens := make(map[string]struct{}, len(ws.UniqueTokens))
	for _, mint := range ws.UniqueTokens {
		tokens[mint] = struct{}{}
	}
	evidence := make([]domain.AbsorptionEvidence, len(ws.Evidence))
	for i, e := range ws.Evidence {
		evidence[i] = domain.AbsorptionEvidence{
			EventID:              e.EventID,
			TokenMint:            e.TokenMint,
			Slot:                 e.Slot,
			Timestamp:            e.TimestampMs,
			AbsorptionFraction:   e.AbsorptionFraction,
			Stabilized:           e.Stabilized,
			ResponseLatencySlots: e.ResponseLatencySlots,
			Outcome:              e.Outcome,
		}
	}
	return &walletState{
		behavior: domain.WalletBehavior{
			Wallet:                   ws.Wallet,
			FirstSeen:                ws.FirstSeenMs,
			LastSeen:                 ws.LastSeenMs,
			TotalAbsorptions:         ws.TotalAbsorptions,
			SuccessfulAbsorptions:    ws.SuccessfulAbsorptions,
			UniqueTokens:             tokens,
			EvidenceLog:              evidence,
			StabilizationSuccessRate: ws.StabilizationSuccessRate,
			AvgAbsorptionFraction:    ws.AvgAbsorptionFraction,
			AvgResponseLatency:       ws.AvgResponseLatency,
			SizeConsistency:          ws.SizeConsistency,
			ActivityPattern:          ws.ActivityPattern,
			Confidence:               ws.Confidence,
			Classification:           ws.Classification,
			Status:                   ws.Status,
		},
		scored: ws.ScoredConfidence,
	}
}
