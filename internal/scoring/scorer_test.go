package scoring

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
)

const daySec = 86_400

func testScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		MinEvents:            3,
		MinTokens:            2,
		MinStabilizationRate: 0.6,
		MinConfidence:        40,
		MaxTrackedWallets:    10_000,
		MaxEvidencePerWallet: 50,
		DecayDays:            7,
		DecayStep:            10,
	}
}

func testScorer(cfg config.ScoringConfig) *Scorer {
	return New(Options{
		Config:          cfg,
		MaxLatencySlots: 50,
		Logger:          zerolog.Nop(),
	})
}

// outcomeFor builds a validated sell with one absorbing candidate.
func outcomeFor(wallet, mint string, slot, blockTime int64, fraction float64, stabilized bool) domain.ValidationOutcome {
	id := fmt.Sprintf("ev-%s-%d", mint, slot)
	return domain.ValidationOutcome{
		Event: domain.SellEvent{
			ID:        id,
			TokenMint: mint,
			Slot:      slot,
			BlockTime: blockTime,
			State:     domain.SellStateValidated,
		},
		Result: domain.StabilizationResult{EventID: id, Stabilized: stabilized},
		Candidates: []domain.AbsorptionCandidate{{
			EventID:              id,
			Wallet:               wallet,
			TokenMint:            mint,
			TotalBuyBase:         fraction * 10,
			BuyCount:             1,
			AbsorptionFraction:   fraction,
			ResponseLatencySlots: 5,
			BoughtDuringDip:      true,
		}},
	}
}

func TestApplyBuildsDefensiveProfile(t *testing.T) {
	s := testScorer(testScoringConfig())
	ctx := context.Background()

	s.Apply(ctx, outcomeFor("walletA", "mint1", 100, 1000, 0.5, true))
	s.Apply(ctx, outcomeFor("walletA", "mint2", 200, 1000+daySec, 0.5, true))
	updated := s.Apply(ctx, outcomeFor("walletA", "mint1", 300, 1000+2*daySec, 0.5, true))

	require.Len(t, updated, 1)
	b := updated[0]
	require.Equal(t, 3, b.TotalAbsorptions)
	require.Equal(t, 3, b.SuccessfulAbsorptions)
	require.InDelta(t, 1.0, b.StabilizationSuccessRate, 1e-12)
	require.Len(t, b.UniqueTokens, 2)
	require.InDelta(t, 0.5, b.AvgAbsorptionFraction, 1e-12)
	require.InDelta(t, 100.0, b.SizeConsistency, 1e-9, "identical fractions have zero variation")
	require.Equal(t, domain.PatternConsistent, b.ActivityPattern)
	// 9 events + 25 rate + 6 tokens + 10 consistency + 10 pattern + 9 timeliness.
	require.InDelta(t, 69.0, b.Confidence, 1e-9)
	require.Equal(t, domain.ClassDefensiveInfra, b.Classification)
	require.True(t, s.IsInfra("walletA"))
}

func TestBelowMinEventsStaysCandidate(t *testing.T) {
	s := testScorer(testScoringConfig())
	ctx := context.Background()

	s.Apply(ctx, outcomeFor("walletA", "mint1", 100, 1000, 0.5, true))
	updated := s.Apply(ctx, outcomeFor("walletA", "mint2", 200, 1000+daySec, 0.5, true))

	require.Len(t, updated, 1)
	require.Equal(t, domain.ClassCandidate, updated[0].Classification)
	require.False(t, s.IsInfra("walletA"))
}

func TestRepeatedFailuresBecomeNoise(t *testing.T) {
	s := testScorer(testScoringConfig())
	ctx := context.Background()

	s.Apply(ctx, outcomeFor("walletA", "mint1", 100, 1000, 0.5, false))
	s.Apply(ctx, outcomeFor("walletA", "mint2", 200, 1000+daySec, 0.5, false))
	updated := s.Apply(ctx, outcomeFor("walletA", "mint1", 300, 1000+2*daySec, 0.5, false))

	require.Len(t, updated, 1)
	require.Equal(t, domain.ClassNoise, updated[0].Classification)
}

func TestAggressiveInfraOnLargeVariedAbsorptions(t *testing.T) {
	s := testScorer(testScoringConfig())
	ctx := context.Background()

	s.Apply(ctx, outcomeFor("walletA", "mint1", 100, 1000, 0.2, true))
	s.Apply(ctx, outcomeFor("walletA", "mint2", 200, 1000+daySec, 0.7, true))
	s.Apply(ctx, outcomeFor("walletA", "mint1", 300, 1000+2*daySec, 0.45, true))
	updated := s.Apply(ctx, outcomeFor("walletA", "mint2", 400, 1000+3*daySec, 0.45, false))

	require.Len(t, updated, 1)
	b := updated[0]
	require.InDelta(t, 0.75, b.StabilizationSuccessRate, 1e-12)
	require.InDelta(t, 0.45, b.AvgAbsorptionFraction, 1e-12)
	require.Less(t, b.SizeConsistency, 70.0, "varied sizes rule out the defensive class")
	require.Equal(t, domain.ClassAggressiveInfra, b.Classification)
}

func TestEvidenceRingBounded(t *testing.T) {
	cfg := testScoringConfig()
	cfg.MaxEvidencePerWallet = 5
	s := testScorer(cfg)
	ctx := context.Background()

	for i := int64(0); i < 8; i++ {
		s.Apply(ctx, outcomeFor("walletA", "mint1", 100+i, 1000+i*daySec, 0.5, true))
	}

	b, ok := s.Get("walletA")
	require.True(t, ok)
	require.Equal(t, 8, b.TotalAbsorptions, "lifetime counter is not bounded by the ring")
	require.Len(t, b.EvidenceLog, 5)
	require.Equal(t, int64(103), b.EvidenceLog[0].Slot, "oldest entries roll off")
	require.Equal(t, int64(107), b.EvidenceLog[4].Slot)
}

func TestDecayIsIdempotentAtFixedClock(t *testing.T) {
	s := testScorer(testScoringConfig())
	ctx := context.Background()

	start := int64(1000)
	s.Apply(ctx, outcomeFor("walletA", "mint1", 100, start, 0.5, true))
	s.Apply(ctx, outcomeFor("walletA", "mint2", 200, start+daySec, 0.5, true))
	s.Apply(ctx, outcomeFor("walletA", "mint1", 300, start+2*daySec, 0.5, true))

	b, _ := s.Get("walletA")
	scored := b.Confidence
	lastSeenMs := b.LastSeen

	// Fourteen days of silence: two decay periods, so −(14/7)·10 = −20.
	now := lastSeenMs + 14*86_400_000
	require.True(t, s.MaybeDecay(ctx, now))
	b, _ = s.Get("walletA")
	require.InDelta(t, scored-20, b.Confidence, 1e-9)
	require.Equal(t, domain.StatusDecaying, b.Status)

	// A second pass at the same clock position changes nothing.
	s.decayPass(ctx, now)
	again, _ := s.Get("walletA")
	require.InDelta(t, b.Confidence, again.Confidence, 1e-12)
	require.Equal(t, b.Status, again.Status)
}

func TestDecayDeprecatesInfraAndPrunesOthers(t *testing.T) {
	s := testScorer(testScoringConfig())
	ctx := context.Background()

	start := int64(1000)
	// walletA reaches defensive-infra at confidence 69.
	s.Apply(ctx, outcomeFor("walletA", "mint1", 100, start, 0.5, true))
	s.Apply(ctx, outcomeFor("walletA", "mint2", 200, start+daySec, 0.5, true))
	s.Apply(ctx, outcomeFor("walletA", "mint1", 300, start+2*daySec, 0.5, true))
	// walletB stays a candidate.
	s.Apply(ctx, outcomeFor("walletB", "mint1", 310, start+2*daySec, 0.5, true))
	s.Apply(ctx, outcomeFor("walletB", "mint1", 320, start+2*daySec+3600, 0.5, true))

	lastSeenMs := (start + 2*daySec) * 1000
	// 21 days of silence: −30 puts both below minConfidence 40.
	s.MaybeDecay(ctx, lastSeenMs+3600_000+21*86_400_000)

	a, ok := s.Get("walletA")
	require.True(t, ok, "infra wallets are retained")
	require.Equal(t, domain.StatusDeprecated, a.Status)
	require.Equal(t, domain.ClassDefensiveInfra, a.Classification)

	_, ok = s.Get("walletB")
	require.False(t, ok, "non-infra wallets below the floor are pruned")
	require.Equal(t, 1, s.Stats().TrackedWallets)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s := testScorer(testScoringConfig())
	ctx := context.Background()

	s.Apply(ctx, outcomeFor("walletA", "mint1", 100, 1000, 0.5, true))
	s.Apply(ctx, outcomeFor("walletA", "mint2", 200, 1000+daySec, 0.5, true))
	s.Apply(ctx, outcomeFor("walletA", "mint1", 300, 1000+2*daySec, 0.5, true))
	s.Apply(ctx, outcomeFor("walletB", "mint2", 150, 1000, 0.3, false))

	const takenAt = int64(999_000)
	snap, err := s.Snapshot(takenAt)
	require.NoError(t, err)

	restored := testScorer(testScoringConfig())
	require.NoError(t, restored.Restore(snap))

	again, err := restored.Snapshot(takenAt)
	require.NoError(t, err)
	require.Equal(t, string(snap), string(again), "restore then snapshot is identity")

	a, ok := restored.Get("walletA")
	require.True(t, ok)
	require.Equal(t, domain.ClassDefensiveInfra, a.Classification)
	require.Equal(t, 2, restored.Stats().TrackedWallets)
}

func TestTrackedWalletCapEvictsLowestConfidence(t *testing.T) {
	cfg := testScoringConfig()
	cfg.MaxTrackedWallets = 2
	s := testScorer(cfg)
	ctx := context.Background()

	// walletA builds real confidence; walletB stays weak.
	s.Apply(ctx, outcomeFor("walletA", "mint1", 100, 1000, 0.5, true))
	s.Apply(ctx, outcomeFor("walletA", "mint2", 200, 1000+daySec, 0.5, true))
	s.Apply(ctx, outcomeFor("walletB", "mint1", 150, 1000, 0.5, false))

	updated := s.Apply(ctx, outcomeFor("walletC", "mint1", 400, 1000+2*daySec, 0.5, true))
	require.Len(t, updated, 1)

	require.Equal(t, 2, s.Stats().TrackedWallets)
	_, ok := s.Get("walletB")
	require.False(t, ok, "the weakest wallet makes room")
	_, ok = s.Get("walletA")
	require.True(t, ok)
	_, ok = s.Get("walletC")
	require.True(t, ok)
}

func TestClassifiedExcludesCandidates(t *testing.T) {
	s := testScorer(testScoringConfig())
	ctx := context.Background()

	s.Apply(ctx, outcomeFor("walletA", "mint1", 100, 1000, 0.5, true))
	s.Apply(ctx, outcomeFor("walletA", "mint2", 200, 1000+daySec, 0.5, true))
	s.Apply(ctx, outcomeFor("walletA", "mint1", 300, 1000+2*daySec, 0.5, true))
	s.Apply(ctx, outcomeFor("walletB", "mint1", 150, 1000, 0.5, true))

	classified := s.Classified()
	require.Len(t, classified, 1)
	require.Equal(t, "walletA", classified[0].Wallet)
	require.Len(t, s.All(), 2)
}
