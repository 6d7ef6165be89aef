package scoring

import (
	"math"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
)

// recompute refreshes every derived aggregate from the evidence log and the
// lifetime counters, then returns the fresh confidence score. Averages and
// consistency read the bounded evidence ring; the success rate reads the
// lifetime counters so old outcomes keep counting after eviction.
func recompute(b *domain.WalletBehavior, maxLatencySlots int64) float64 {
	if n := len(b.EvidenceLog); n > 0 {
		var fracSum, latSum float64
		for _, e := range b.EvidenceLog {
			fracSum += e.AbsorptionFraction
			latSum += float64(e.ResponseLatencySlots)
		}
		mean := fracSum / float64(n)
		b.AvgAbsorptionFraction = mean
		b.AvgResponseLatency = latSum / float64(n)
		b.SizeConsistency = sizeConsistency(b.EvidenceLog, mean)
	}
	if b.TotalAbsorptions > 0 {
		b.StabilizationSuccessRate = float64(b.SuccessfulAbsorptions) / float64(b.TotalAbsorptions)
	}
	b.ActivityPattern = activityPattern(b.EvidenceLog)
	return confidence(b, maxLatencySlots)
}

// sizeConsistency maps the coefficient of variation of absorption fractions
// to 0..100; a wallet that always absorbs the same share scores 100.
func sizeConsistency(log []domain.AbsorptionEvidence, mean float64) float64 {
	if mean <= 0 {
		return 0
	}
	var varSum float64
	for _, e := range log {
		d := e.AbsorptionFraction - mean
		varSum += d * d
	}
	cv := math.Sqrt(varSum/float64(len(log))) / mean
	return 100 * (1 - math.Min(1, cv))
}

// activityPattern judges the spread of inter-event gaps: tight spread is
// consistent, a dominant outlier gap is cyclical, anything else (including
// too little history) is opportunistic.
func activityPattern(log []domain.AbsorptionEvidence) string {
	if len(log) < 2 {
		return domain.PatternOpportunistic
	}
	var sum, maxGap float64
	for i := 1; i < len(log); i++ {
		gap := float64(log[i].Timestamp - log[i-1].Timestamp)
		sum += gap
		if gap > maxGap {
			maxGap = gap
		}
	}
	avg := sum / float64(len(log)-1)
	if avg <= 0 {
		return domain.PatternConsistent
	}
	switch {
	case maxGap < 2*avg:
		return domain.PatternConsistent
	case maxGap > 5*avg:
		return domain.PatternCyclical
	default:
		return domain.PatternOpportunistic
	}
}

// confidence composes six additive factors minus a failure penalty:
// event count (≤30), stabilization rate (≤25), unique tokens (≤15),
// size consistency (≤10), activity pattern (≤10), timeliness (≤10),
// then −20·failureRate, clamped to [0,100].
func confidence(b *domain.WalletBehavior, maxLatencySlots int64) float64 {
	score := math.Min(30, float64(b.TotalAbsorptions)*3)
	score += b.StabilizationSuccessRate * 25
	score += math.Min(15, float64(len(b.UniqueTokens))*3)
	score += b.SizeConsistency / 10
	switch b.ActivityPattern {
	case domain.PatternConsistent:
		score += 10
	case domain.PatternCyclical:
		score += 6
	default:
		score += 3
	}
	if maxLatencySlots > 0 {
		score += 10 * (1 - math.Min(1, b.AvgResponseLatency/float64(maxLatencySlots)))
	}
	score -= 20 * (1 - b.StabilizationSuccessRate)
	return math.Max(0, math.Min(100, score))
}

// classify derives the label from the aggregates. Wallets that clear the
// activity gate split into the four behavioral classes; wallets below it are
// candidates, or noise once they have enough events but keep failing.
func classify(b *domain.WalletBehavior, cfg config.ScoringConfig) string {
	gate := b.TotalAbsorptions >= cfg.MinEvents &&
		len(b.UniqueTokens) >= cfg.MinTokens &&
		b.StabilizationSuccessRate >= cfg.MinStabilizationRate &&
		b.Confidence >= cfg.MinConfidence
	if gate {
		switch {
		case b.StabilizationSuccessRate >= 0.8 && b.SizeConsistency >= 70:
			return domain.ClassDefensiveInfra
		case b.StabilizationSuccessRate >= 0.7 && b.AvgAbsorptionFraction >= 0.4:
			return domain.ClassAggressiveInfra
		case b.ActivityPattern == domain.PatternCyclical:
			return domain.ClassCyclical
		default:
			return domain.ClassOpportunistic
		}
	}
	if b.TotalAbsorptions >= cfg.MinEvents && b.StabilizationSuccessRate < cfg.MinStabilizationRate {
		return domain.ClassNoise
	}
	return domain.ClassCandidate
}
