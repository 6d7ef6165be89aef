package scoring

import (
	"context"
	"math"
	"sort"

	"solana-infra-watch/internal/domain"
)

const dayMs = 86_400_000.0

// MaybeDecay runs a decay pass when at least one decay period has elapsed
// since the previous pass. nowMs comes from the active clock, so replay
// drives decay off dataset time, not wall time. Reports whether a pass ran.
func (s *Scorer) MaybeDecay(ctx context.Context, nowMs int64) bool {
	periodMs := int64(s.cfg.DecayDays * dayMs)
	if periodMs <= 0 {
		return false
	}
	last := s.lastDecayMs.Load()
	if last != 0 && nowMs-last < periodMs {
		return false
	}
	if !s.lastDecayMs.CompareAndSwap(last, nowMs) {
		return false
	}
	decayed, pruned := s.decayPass(ctx, nowMs)
	if decayed > 0 || pruned > 0 {
		s.log.Info().Int("decayed", decayed).Int("pruned", pruned).Msg("decay pass complete")
	}
	return true
}

// decayPass walks every wallet and applies inactivity decay. The decayed
// confidence is recomputed from the stored pre-decay score each pass, so
// running the pass twice at the same clock position changes nothing.
func (s *Scorer) decayPass(ctx context.Context, nowMs int64) (decayed, pruned int) {
	var toDelete []string
	for _, sh := range s.shards {
		sh.mu.Lock()
		for wallet, st := range sh.wallets {
			b := &st.behavior
			days := float64(nowMs-b.LastSeen) / dayMs
			if days <= s.cfg.DecayDays {
				continue
			}

			conf := st.scored - (days/s.cfg.DecayDays)*s.cfg.DecayStep
			b.Confidence = math.Max(0, conf)
			b.Status = domain.StatusDecaying
			decayed++

			if b.Confidence >= s.cfg.MinConfidence {
				continue
			}
			if b.IsInfra() {
				// Proven infrastructure is kept for the record even after it
				// goes quiet.
				b.Status = domain.StatusDeprecated
				continue
			}
			delete(sh.wallets, wallet)
			s.tracked.Add(-1)
			toDelete = append(toDelete, wallet)
			pruned++
		}
		sh.mu.Unlock()
	}

	sort.Strings(toDelete)
	for _, wallet := range toDelete {
		if s.store == nil {
			continue
		}
		if err := s.store.Delete(ctx, wallet); err != nil {
			s.storeErrors.Add(1)
			s.log.Warn().Err(err).Str("wallet", wallet).Msg("pruned wallet delete failed")
		}
	}
	return decayed, pruned
}
