// Package scoring maintains the longitudinal behavior profile of every wallet
// that absorbed a large sell. The scorer owns the wallet map exclusively;
// everything downstream (signal emitter, status API, exports) reads clones.
// Persistence is best-effort: store errors are logged and counted, never
// surfaced, and the in-memory state stays authoritative within a run.
package scoring

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/storage"
)

const shardCount = 16

// Options configures a Scorer. Store and Evidence may be nil to run without
// persistence (replay mode).
type Options struct {
	Config config.ScoringConfig

	// MaxLatencySlots is the detector's response-latency bound, the
	// normalization reference for the timeliness confidence factor.
	MaxLatencySlots int64

	Store    storage.WalletStore
	Evidence storage.EvidenceStore
	Logger   zerolog.Logger
}

// Scorer is the wallet behavior registry. Mutations are serialized per
// shard; reads take shard read locks, so the status API can inspect wallets
// while the pipeline scores.
type Scorer struct {
	cfg         config.ScoringConfig
	maxLatency  int64
	store       storage.WalletStore
	evidence    storage.EvidenceStore
	log         zerolog.Logger
	shards      [shardCount]*shard
	tracked     atomic.Int64
	lastDecayMs atomic.Int64
	storeErrors atomic.Uint64
}

type shard struct {
	mu      sync.RWMutex
	wallets map[string]*walletState
}

// walletState pairs the exported behavior with the pre-decay confidence so
// decay passes stay idempotent: the decayed value is always recomputed from
// scored, never subtracted repeatedly.
type walletState struct {
	behavior domain.WalletBehavior
	scored   float64
}

// New creates a Scorer.
func New(opts Options) *Scorer {
	s := &Scorer{
		cfg:        opts.Config,
		maxLatency: opts.MaxLatencySlots,
		store:      opts.Store,
		evidence:   opts.Evidence,
		log:        opts.Logger.With().Str("component", "scoring").Logger(),
	}
	for i := range s.shards {
		s.shards[i] = &shard{wallets: make(map[string]*walletState)}
	}
	return s
}

func (s *Scorer) shardFor(wallet string) *shard {
	h := fnv.New32a()
	h.Write([]byte(wallet))
	return s.shards[h.Sum32()%shardCount]
}

// Apply folds one validation outcome into every candidate wallet's profile:
// upsert, evidence append, aggregate recompute, reclassification. Returns the
// updated behaviors as clones, sorted by wallet.
func (s *Scorer) Apply(ctx context.Context, outcome domain.ValidationOutcome) []domain.WalletBehavior {
	updated := make([]domain.WalletBehavior, 0, len(outcome.Candidates))
	for _, cand := range outcome.Candidates {
		if b, ok := s.applyCandidate(ctx, cand, outcome); ok {
			updated = append(updated, b)
		}
	}
	sort.Slice(updated, func(i, j int) bool { return updated[i].Wallet < updated[j].Wallet })
	return updated
}

func (s *Scorer) applyCandidate(ctx context.Context, cand domain.AbsorptionCandidate, outcome domain.ValidationOutcome) (domain.WalletBehavior, bool) {
	sh := s.shardFor(cand.Wallet)
	sh.mu.Lock()

	st, ok := sh.wallets[cand.Wallet]
	if !ok {
		if !s.admit(sh, cand.Wallet) {
			sh.mu.Unlock()
			return domain.WalletBehavior{}, false
		}
		st = &walletState{behavior: domain.WalletBehavior{
			Wallet:         cand.Wallet,
			FirstSeen:      outcome.Event.BlockTime * 1000,
			UniqueTokens:   make(map[string]struct{}),
			Classification: domain.ClassCandidate,
			Status:         domain.StatusActive,
		}}
		sh.wallets[cand.Wallet] = st
		s.tracked.Add(1)
	}

	b := &st.behavior
	b.LastSeen = outcome.Event.BlockTime * 1000
	b.Status = domain.StatusActive
	b.TotalAbsorptions++
	if outcome.Result.Stabilized {
		b.SuccessfulAbsorptions++
	}
	b.UniqueTokens[cand.TokenMint] = struct{}{}

	ev := evidenceFrom(cand, outcome)
	b.EvidenceLog = append(b.EvidenceLog, ev)
	if limit := s.cfg.MaxEvidencePerWallet; limit > 0 && len(b.EvidenceLog) > limit {
		b.EvidenceLog = b.EvidenceLog[len(b.EvidenceLog)-limit:]
	}

	st.scored = recompute(b, s.maxLatency)
	b.Confidence = st.scored
	b.Classification = classify(b, s.cfg)

	clone := b.Clone()
	sh.mu.Unlock()

	s.persist(ctx, &clone, cand.Wallet, &ev)
	return clone, true
}

// evidenceFrom materializes one evidence entry. Timestamps derive from the
// event's block time so replay stays deterministic.
func evidenceFrom(cand domain.AbsorptionCandidate, outcome domain.ValidationOutcome) domain.AbsorptionEvidence {
	oc := domain.OutcomeFailure
	if outcome.Result.Stabilized {
		oc = domain.OutcomeSuccess
	}
	return domain.AbsorptionEvidence{
		EventID:              cand.EventID,
		TokenMint:            cand.TokenMint,
		Slot:                 outcome.Event.Slot,
		Timestamp:            outcome.Event.BlockTime * 1000,
		AbsorptionFraction:   cand.AbsorptionFraction,
		Stabilized:           outcome.Result.Stabilized,
		ResponseLatencySlots: cand.ResponseLatencySlots,
		Outcome:              oc,
	}
}

// admit enforces the tracked-wallet cap by evicting the lowest-confidence
// non-infra wallet. Apply and decay both run on the pipeline goroutine, so
// at most one writer crosses shards at a time; caller holds the write lock
// on callerShard, which is scanned without re-locking.
func (s *Scorer) admit(callerShard *shard, wallet string) bool {
	limit := s.cfg.MaxTrackedWallets
	if limit <= 0 || int(s.tracked.Load()) < limit {
		return true
	}

	victimWallet := ""
	victimConf := 0.0
	var victimShard *shard
	for _, sh := range s.shards {
		if sh != callerShard {
			sh.mu.RLock()
		}
		for w, st := range sh.wallets {
			if st.behavior.IsInfra() {
				continue
			}
			if victimShard == nil || st.behavior.Confidence < victimConf ||
				(st.behavior.Confidence == victimConf && w < victimWallet) {
				victimWallet, victimConf, victimShard = w, st.behavior.Confidence, sh
			}
		}
		if sh != callerShard {
			sh.mu.RUnlock()
		}
	}
	if victimShard == nil {
		s.log.Warn().Str("wallet", wallet).Msg("tracked wallet cap reached, new wallet dropped")
		return false
	}

	if victimShard != callerShard {
		victimShard.mu.Lock()
	}
	delete(victimShard.wallets, victimWallet)
	if victimShard != callerShard {
		victimShard.mu.Unlock()
	}
	s.tracked.Add(-1)
	s.log.Debug().Str("wallet", victimWallet).Float64("confidence", victimConf).Msg("evicted lowest-confidence wallet")
	return true
}

// persist mirrors the updated state to storage, best-effort.
func (s *Scorer) persist(ctx context.Context, b *domain.WalletBehavior, wallet string, ev *domain.AbsorptionEvidence) {
	if s.store != nil {
		if err := s.store.Upsert(ctx, b); err != nil {
			s.storeErrors.Add(1)
			s.log.Warn().Err(err).Str("wallet", wallet).Msg("wallet upsert failed, memory remains authoritative")
		}
	}
	if s.evidence != nil {
		if err := s.evidence.Insert(ctx, wallet, ev); err != nil && !storageDuplicate(err) {
			s.storeErrors.Add(1)
			s.log.Warn().Err(err).Str("wallet", wallet).Msg("evidence insert failed")
		}
	}
}

func storageDuplicate(err error) bool {
	return errors.Is(err, storage.ErrDuplicateKey)
}

// Get returns a clone of one wallet's behavior.
func (s *Scorer) Get(wallet string) (domain.WalletBehavior, bool) {
	sh := s.shardFor(wallet)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	st, ok := sh.wallets[wallet]
	if !ok {
		return domain.WalletBehavior{}, false
	}
	return st.behavior.Clone(), true
}

// IsInfra reports whether the wallet currently carries an infrastructure
// classification. Unknown wallets are not infra.
func (s *Scorer) IsInfra(wallet string) bool {
	sh := s.shardFor(wallet)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	st, ok := sh.wallets[wallet]
	return ok && st.behavior.IsInfra()
}

// All returns a consistent snapshot of every tracked wallet, sorted by
// wallet address.
func (s *Scorer) All() []domain.WalletBehavior {
	var out []domain.WalletBehavior
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, st := range sh.wallets {
			out = append(out, st.behavior.Clone())
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out
}

// Classified returns the wallets that currently hold any classification
// beyond candidate, sorted by confidence descending then wallet.
func (s *Scorer) Classified() []domain.WalletBehavior {
	all := s.All()
	out := all[:0]
	for _, b := range all {
		if b.Classification != domain.ClassCandidate {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Wallet < out[j].Wallet
	})
	return out
}

// Stats reports scorer counters for observability.
type Stats struct {
	TrackedWallets int
	StoreErrors    uint64
	LastDecayMs    int64
}

// Stats returns current counters.
func (s *Scorer) Stats() Stats {
	return Stats{
		TrackedWallets: int(s.tracked.Load()),
		StoreErrors:    s.storeErrors.Load(),
		LastDecayMs:    s.lastDecayMs.Load(),
	}
}
