package normalization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/oracle"
	"solana-infra-watch/internal/solana"
)

// Normalization errors. ErrInvalidSwap wraps the per-event data-shape
// failures; callers drop and count, never retry.
var (
	ErrNotSwap            = errors.New("no recognized swap instruction")
	ErrDuplicateSignature = errors.New("duplicate signature")
	ErrInvalidSwap        = errors.New("invalid swap")

	ErrNoTrader         = fmt.Errorf("%w: no account changed balances on both sides", ErrInvalidSwap)
	ErrAmbiguousTrader  = fmt.Errorf("%w: multiple candidate traders", ErrInvalidSwap)
	ErrAmbiguousMint    = fmt.Errorf("%w: cannot resolve traded mint", ErrInvalidSwap)
	ErrImpossibleDeltas = fmt.Errorf("%w: base and token deltas do not oppose", ErrInvalidSwap)
	ErrZeroReserves     = fmt.Errorf("%w: pool reserves unavailable", ErrInvalidSwap)
)

const defaultMaxSeenSignatures = 100_000

// Options configures a Normalizer.
type Options struct {
	// BaseMint is the quote currency mint. Defaults to WSOL.
	BaseMint string
	// Registry identifies swap instructions. Defaults to the standard
	// Raydium + pump.fun registry.
	Registry *ProgramRegistry
	// Oracle optionally enriches pool snapshots with LiquidityUsd.
	Oracle oracle.Oracle
	// MaxSeenSignatures bounds the dedup cache.
	MaxSeenSignatures int
	// Logger for drop diagnostics.
	Logger zerolog.Logger
}

// Stats counts normalizer outcomes. Counters only grow.
type Stats struct {
	Emitted      uint64
	Duplicates   uint64
	NotSwap      uint64
	Invalid      uint64
	ZeroReserves uint64
}

// Normalizer converts raw transactions into canonical SwapEvents. One event
// per signature at most; repeated signatures are rejected.
type Normalizer struct {
	baseMint string
	registry *ProgramRegistry
	oracle   oracle.Oracle
	seen     *lru.Cache[string, struct{}]
	log      zerolog.Logger

	emitted      atomic.Uint64
	duplicates   atomic.Uint64
	notSwap      atomic.Uint64
	invalid      atomic.Uint64
	zeroReserves atomic.Uint64
}

// New creates a Normalizer.
func New(opts Options) (*Normalizer, error) {
	if opts.BaseMint == "" {
		opts.BaseMint = solana.WSOLMint
	}
	if opts.Registry == nil {
		opts.Registry = NewProgramRegistry()
	}
	if opts.Oracle == nil {
		opts.Oracle = oracle.Nop{}
	}
	if opts.MaxSeenSignatures <= 0 {
		opts.MaxSeenSignatures = defaultMaxSeenSignatures
	}

	seen, err := lru.New[string, struct{}](opts.MaxSeenSignatures)
	if err != nil {
		return nil, fmt.Errorf("dedup cache: %w", err)
	}

	return &Normalizer{
		baseMint: opts.BaseMint,
		registry: opts.Registry,
		oracle:   opts.Oracle,
		seen:     seen,
		log:      opts.Logger.With().Str("component", "normalizer").Logger(),
	}, nil
}

// Normalize extracts at most one SwapEvent from tx. txIndex is the position
// of the transaction within its block (or the per-slot arrival sequence on
// live feeds). Failed transactions and transactions without a recognized
// swap instruction return ErrNotSwap.
func (n *Normalizer) Normalize(ctx context.Context, tx *solana.Transaction, txIndex int) (*domain.SwapEvent, error) {
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil {
		n.notSwap.Add(1)
		return nil, ErrNotSwap
	}

	instructions := n.registry.Identify(tx)
	if len(instructions) == 0 {
		n.notSwap.Add(1)
		return nil, ErrNotSwap
	}

	if _, dup := n.seen.Get(tx.Signature); dup {
		n.duplicates.Add(1)
		return nil, ErrDuplicateSignature
	}

	event, err := n.extract(ctx, tx, txIndex, instructions)
	if err != nil {
		switch {
		case errors.Is(err, ErrZeroReserves):
			n.zeroReserves.Add(1)
		default:
			n.invalid.Add(1)
		}
		n.log.Debug().Err(err).Str("signature", tx.Signature).Int64("slot", tx.Slot).Msg("swap dropped")
		return nil, err
	}

	n.seen.Add(tx.Signature, struct{}{})
	n.emitted.Add(1)
	return event, nil
}

// Stats returns a snapshot of the outcome counters.
func (n *Normalizer) Stats() Stats {
	return Stats{
		Emitted:      n.emitted.Load(),
		Duplicates:   n.duplicates.Load(),
		NotSwap:      n.notSwap.Load(),
		Invalid:      n.invalid.Load(),
		ZeroReserves: n.zeroReserves.Load(),
	}
}

// balanceChange aggregates one owner's movement in one mint.
type balanceChange struct {
	delta float64
	post  float64
}

func (n *Normalizer) extract(ctx context.Context, tx *solana.Transaction, txIndex int, instructions []domain.Instruction) (*domain.SwapEvent, error) {
	changes := diffTokenBalances(tx.Meta)
	if len(changes) == 0 {
		return nil, ErrNoTrader
	}

	// Resolve the traded mint: the instruction hint when present, otherwise
	// the unique non-base mint seen in the deltas.
	instr := instructions[0]
	tokenMint, err := n.resolveMint(instr, changes)
	if err != nil {
		return nil, err
	}

	trader, err := n.resolveTrader(tx, changes, tokenMint, instr.PoolAddress)
	if err != nil {
		return nil, err
	}

	traderSide := changes[trader]
	tokenDelta := traderSide[tokenMint].delta
	baseDelta := traderSide[n.baseMint].delta

	var side string
	switch {
	case tokenDelta > 0 && baseDelta < 0:
		side = domain.SideBuy
	case tokenDelta < 0 && baseDelta > 0:
		side = domain.SideSell
	default:
		return nil, ErrImpossibleDeltas
	}

	amountToken := math.Abs(tokenDelta)
	amountBase := math.Abs(baseDelta)
	if amountToken == 0 || amountBase == 0 {
		return nil, ErrImpossibleDeltas
	}

	snapshot, err := n.poolSnapshot(ctx, tx, changes, trader, tokenMint, instr.PoolAddress)
	if err != nil {
		return nil, err
	}

	return &domain.SwapEvent{
		Key: domain.EventKey{
			Slot:       tx.Slot,
			TxIndex:    txIndex,
			InnerIndex: instr.InnerIndex,
			LogIndex:   instr.LogIndex,
		},
		Signature:         tx.Signature,
		BlockTime:         tx.BlockTime,
		ProgramID:         instr.ProgramID,
		PoolAddress:       snapshot.PoolAddress,
		TokenMint:         tokenMint,
		BaseMint:          n.baseMint,
		Trader:            trader,
		Side:              side,
		AmountBase:        amountBase,
		AmountToken:       amountToken,
		PriceBasePerToken: amountBase / amountToken,
		PoolState:         snapshot,
	}, nil
}

// resolveMint picks the traded token mint.
func (n *Normalizer) resolveMint(instr domain.Instruction, changes map[string]map[string]balanceChange) (string, error) {
	nonBase := make(map[string]struct{})
	for _, byMint := range changes {
		for mint, ch := range byMint {
			if mint != n.baseMint && ch.delta != 0 {
				nonBase[mint] = struct{}{}
			}
		}
	}

	if instr.TokenMint != "" {
		if _, ok := nonBase[instr.TokenMint]; ok {
			return instr.TokenMint, nil
		}
		return "", ErrAmbiguousMint
	}

	if len(nonBase) == 1 {
		for mint := range nonBase {
			return mint, nil
		}
	}
	return "", ErrAmbiguousMint
}

// resolveTrader finds the wallet that moved on both sides of the trade. The
// pool's authority also moves on both sides (the opposite way), so with two
// candidates the transaction fee payer breaks the tie.
func (n *Normalizer) resolveTrader(tx *solana.Transaction, changes map[string]map[string]balanceChange, tokenMint, poolAddress string) (string, error) {
	var candidates []string
	for owner, byMint := range changes {
		if owner == "" || owner == poolAddress {
			continue
		}
		if byMint[tokenMint].delta != 0 && byMint[n.baseMint].delta != 0 {
			candidates = append(candidates, owner)
		}
	}

	switch len(candidates) {
	case 0:
		return "", ErrNoTrader
	case 1:
		return candidates[0], nil
	}

	feePayer := tx.Message.AccountKey(0)
	for _, c := range candidates {
		if c == feePayer {
			return c, nil
		}
	}
	return "", ErrAmbiguousTrader
}

// poolSnapshot builds the pool state from the vault balances in the
// transaction: the non-trader owner that moved on both sides is the pool
// authority and its post-transaction balances are the reserves.
func (n *Normalizer) poolSnapshot(ctx context.Context, tx *solana.Transaction, changes map[string]map[string]balanceChange, trader, tokenMint, poolAddress string) (domain.PoolStateSnapshot, error) {
	var vaultOwner string
	for owner, byMint := range changes {
		if owner == "" || owner == trader {
			continue
		}
		if byMint[tokenMint].delta != 0 && byMint[n.baseMint].delta != 0 {
			vaultOwner = owner
			break
		}
	}
	if vaultOwner == "" {
		return domain.PoolStateSnapshot{}, ErrZeroReserves
	}

	reserveToken := changes[vaultOwner][tokenMint].post
	reserveBase := changes[vaultOwner][n.baseMint].post

	if poolAddress == "" {
		poolAddress = vaultOwner
	}

	snapshot := domain.PoolStateSnapshot{
		Slot:         tx.Slot,
		PoolAddress:  poolAddress,
		ReserveBase:  reserveBase,
		ReserveToken: reserveToken,
	}
	if !snapshot.Valid() {
		return domain.PoolStateSnapshot{}, ErrZeroReserves
	}
	snapshot.PriceBasePerToken = reserveBase / reserveToken

	if liq, ok := n.oracle.LiquidityUsd(ctx, tokenMint); ok {
		snapshot.LiquidityUsd = &liq
	}

	return snapshot, nil
}

// diffTokenBalances computes per (owner, mint) deltas and post balances from
// the transaction's token balance lists, matching entries by account index.
func diffTokenBalances(meta *solana.TransactionMeta) map[string]map[string]balanceChange {
	pre := make(map[int]solana.TokenBalance, len(meta.PreTokenBalances))
	for _, b := range meta.PreTokenBalances {
		pre[b.AccountIndex] = b
	}

	indices := make(map[int]struct{}, len(meta.PreTokenBalances)+len(meta.PostTokenBalances))
	post := make(map[int]solana.TokenBalance, len(meta.PostTokenBalances))
	for _, b := range meta.PostTokenBalances {
		post[b.AccountIndex] = b
		indices[b.AccountIndex] = struct{}{}
	}
	for idx := range pre {
		indices[idx] = struct{}{}
	}

	changes := make(map[string]map[string]balanceChange)
	for idx := range indices {
		var owner, mint string
		var preAmt, postAmt float64

		if b, ok := pre[idx]; ok {
			owner, mint = b.Owner, b.Mint
			preAmt = scaledAmount(b)
		}
		if b, ok := post[idx]; ok {
			owner, mint = b.Owner, b.Mint
			postAmt = scaledAmount(b)
		}
		if owner == "" || mint == "" {
			continue
		}

		byMint, ok := changes[owner]
		if !ok {
			byMint = make(map[string]balanceChange)
			changes[owner] = byMint
		}
		ch := byMint[mint]
		ch.delta += postAmt - preAmt
		ch.post += postAmt
		byMint[mint] = ch
	}

	return changes
}

// scaledAmount converts the raw integer amount string to a decimal-adjusted
// quantity.
func scaledAmount(b solana.TokenBalance) float64 {
	raw, err := strconv.ParseFloat(b.Amount, 64)
	if err != nil {
		if b.UiAmount != nil {
			return *b.UiAmount
		}
		return 0
	}
	return raw / math.Pow10(b.Decimals)
}
