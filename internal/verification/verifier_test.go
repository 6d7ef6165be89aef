package verification

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/replay"
	"solana-infra-watch/internal/reporting"
)

// closedTrade is a fully populated trade fixture; comparator tests copy it
// and flip individual fields.
func closedTrade() domain.VirtualTrade {
	return domain.VirtualTrade{
		TradeID:     "t-1",
		SignalID:    "s-1",
		EventID:     "e-1",
		TokenMint:   "mint-v",
		PoolAddress: "pool-v",
		Absorber:    "wallet-abs",

		EntrySlot:        100,
		EntryPrice:       0.0098,
		EntrySlippageBps: 35,
		EntryFees:        0.005,
		CostBase:         2,
		AmountToken:      204.1,

		ExitSlot:        160,
		ExitPrice:       0.0099,
		ExitSlippageBps: -35,
		ExitFees:        0.005,
		ExitReason:      domain.ExitReasonStabilized,

		RealizedPnl:  0.01,
		ReturnPct:    0.5,
		HoldingSlots: 60,
		MAE:          -0.02,
		MFE:          0.04,

		SignalStrength:         72.5,
		StabilizationConfirmed: true,
		SellFractionOfPool:     0.02,
		AbsorptionFraction:     0.6,
	}
}

// runReport builds a small but fully populated run report. Two calls return
// structurally identical reports.
func runReport() *reporting.Report {
	return &reporting.Report{
		GeneratedAtMs: 1_700_000_080_000,
		Summary: reporting.Summary{
			GeneratedAtMs:       1_700_000_080_000,
			StartingCapitalBase: 100,
			FinalCapitalBase:    100.01,
			FinalEquityBase:     100.01,
			PeakEquityBase:      100.01,
			TotalFeesBase:       0.01,
			SignalsEmitted:      1,
			SignalsConfirmed:    1,
			TrackedWallets:      1,
			ClassifiedWallets:   1,
			Coverage: reporting.Coverage{
				EventsProcessed: 25,
				TokensSeen:      4,
				PoolsSeen:       5,
				FirstSlot:       10,
				LastSlot:        370,
			},
			Trades: reporting.TradeStats{
				TotalTrades:     1,
				TotalTokens:     1,
				Wins:            1,
				WinRate:         1,
				TokenWinRate:    1,
				NetPnlBase:      0.01,
				GrossProfitBase: 0.01,
				ExpectancyBase:  0.01,
				ReturnMeanPct:   0.5,
				ReturnMedianPct: 0.5,
				ReturnP10Pct:    0.5,
				ReturnP90Pct:    0.5,
				ReturnMinPct:    0.5,
				ReturnMaxPct:    0.5,
				AvgHoldingSlots: 60,
			},
			EquityCurve: []reporting.EquitySample{
				{Slot: 160, TimestampMs: 1_700_000_060_000, Capital: 100.01, Equity: 100.01},
			},
		},
		Trades: []domain.VirtualTrade{closedTrade()},
		Wallets: []domain.WalletBehavior{{
			Wallet:                   "wallet-abs",
			Classification:           domain.ClassDefensiveInfra,
			Status:                   domain.StatusActive,
			Confidence:               75,
			TotalAbsorptions:         4,
			SuccessfulAbsorptions:    4,
			StabilizationSuccessRate: 1,
			AvgAbsorptionFraction:    0.6,
			AvgResponseLatency:       1.25,
			SizeConsistency:          100,
			ActivityPattern:          domain.PatternConsistent,
			FirstSeen:                1_700_000_010_000,
			LastSeen:                 1_700_000_060_000,
		}},
	}
}

func divergedFields(divs []FieldDivergence) []string {
	fields := make([]string, 0, len(divs))
	for _, dv := range divs {
		fields = append(fields, dv.Field)
	}
	return fields
}

func TestCompareTradesIdentical(t *testing.T) {
	a, b := closedTrade(), closedTrade()
	require.Empty(t, CompareTrades(&a, &b))
}

func TestCompareTradesFlagsChangedFields(t *testing.T) {
	a, b := closedTrade(), closedTrade()
	b.ExitPrice = 0.0101
	b.ExitReason = domain.ExitReasonExpired

	divs := CompareTrades(&a, &b)
	require.Len(t, divs, 2)
	require.Contains(t, divergedFields(divs), "ExitPrice")
	require.Contains(t, divergedFields(divs), "ExitReason")
}

func TestCompareReportsIdentical(t *testing.T) {
	rep := CompareReports(runReport(), runReport())

	require.True(t, rep.Deterministic())
	require.Empty(t, rep.Divergences)
	require.Equal(t, 1, rep.TradesTotal)
	require.Equal(t, 1, rep.TradesMatched)
	require.Zero(t, rep.TradesDivergent)
}

func TestCompareReportsNamesSummaryField(t *testing.T) {
	second := runReport()
	second.Summary.SignalsExpired = 3

	rep := CompareReports(runReport(), second)
	require.False(t, rep.Deterministic())
	require.Len(t, rep.Divergences, 1)
	require.Equal(t, "summary.SignalsExpired", rep.Divergences[0].Field)
	require.Equal(t, int64(0), rep.Divergences[0].First)
	require.Equal(t, int64(3), rep.Divergences[0].Second)
}

func TestCompareReportsTradeListLengthMismatch(t *testing.T) {
	second := runReport()
	second.Trades = nil

	rep := CompareReports(runReport(), second)
	require.False(t, rep.Deterministic())
	require.Len(t, rep.Divergences, 1)
	require.Equal(t, "len(trades)", rep.Divergences[0].Field)
	require.Equal(t, 1, rep.TradesTotal)
	require.Zero(t, rep.TradesMatched)
}

func TestCompareReportsPinsTradeDivergence(t *testing.T) {
	second := runReport()
	second.Trades[0].RealizedPnl = -0.02

	rep := CompareReports(runReport(), second)
	require.Equal(t, 1, rep.TradesDivergent)
	require.Zero(t, rep.TradesMatched)
	require.Len(t, rep.Divergences, 1)
	require.Equal(t, "trades[0].RealizedPnl", rep.Divergences[0].Field)
}

func TestCompareReportsPinsWalletDivergence(t *testing.T) {
	second := runReport()
	second.Wallets[0].Confidence = 55
	second.Wallets[0].Status = domain.StatusDecaying

	rep := CompareReports(runReport(), second)
	require.False(t, rep.Deterministic())
	require.Contains(t, divergedFields(rep.Divergences), "wallets[0].Confidence")
	require.Contains(t, divergedFields(rep.Divergences), "wallets[0].Status")
}

func TestNewRequiresConfigAndReport(t *testing.T) {
	_, err := New(Options{First: runReport()})
	require.Error(t, err)

	_, err = New(Options{Config: config.Default()})
	require.Error(t, err)
}

const verifyTime = int64(1_700_000_000)

// vswap builds one dataset event; the snapshot carries post-swap reserves.
func vswap(slot int64, sig, pool, mint, trader, side string, base, token, postBase, postToken float64) domain.SwapEvent {
	return domain.SwapEvent{
		Key:               domain.EventKey{Slot: slot, TxIndex: 0, InnerIndex: -1, LogIndex: 0},
		Signature:         sig,
		BlockTime:         verifyTime + slot,
		ProgramID:         "amm",
		PoolAddress:       pool,
		TokenMint:         mint,
		BaseMint:          "base",
		Trader:            trader,
		Side:              side,
		AmountBase:        base,
		AmountToken:       token,
		PriceBasePerToken: base / token,
		PoolState: domain.PoolStateSnapshot{
			Slot:              slot,
			PoolAddress:       pool,
			ReserveBase:       postBase,
			ReserveToken:      postToken,
			PriceBasePerToken: postBase / postToken,
		},
	}
}

// defendedSell is one absorbed 2% sell with a quiet tail, plus an unrelated
// closer that resolves the stabilization watch. With the compressed windows
// in verifierConfig the run produces success evidence for wallet-abs.
func defendedSell() []domain.SwapEvent {
	return []domain.SwapEvent{
		vswap(10, "v-sell", "pool-v", "mint-v", "whale-v", domain.SideSell, 20, 2041, 980, 102_041),
		vswap(11, "v-buy1", "pool-v", "mint-v", "wallet-abs", domain.SideBuy, 6, 625, 986, 101_416),
		vswap(12, "v-buy2", "pool-v", "mint-v", "wallet-abs", domain.SideBuy, 6, 625, 992, 100_791),
		vswap(25, "v-q1", "pool-v", "mint-v", "noise-v", domain.SideBuy, 3.84, 400, 994, 100_594),
		vswap(35, "v-q2", "pool-v", "mint-v", "noise-v", domain.SideSell, 3.84, 400, 992, 100_791),
		vswap(45, "v-q3", "pool-v", "mint-v", "noise-v", domain.SideBuy, 3.84, 400, 994, 100_594),
		vswap(80, "v-close", "pool-w", "mint-w", "bystander", domain.SideBuy, 0.5, 50, 200, 20_000),
	}
}

func verifierConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Detection.AbsorptionWindowSlots = 10
	cfg.Detection.MaxResponseLatencySlots = 10
	cfg.Stabilization.StabilizationWindowSlots = 40
	cfg.Replay.DatasetPath = filepath.Join(dir, "dataset.jsonl")
	cfg.Replay.OutputDir = filepath.Join(dir, "reports")
	return cfg
}

func writeDataset(t *testing.T, path string, events []domain.SwapEvent) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	dw := replay.NewDatasetWriter(f)
	for _, ev := range events {
		require.NoError(t, dw.Append(ev))
	}
	require.NoError(t, dw.Flush())
	require.NoError(t, f.Close())
}

func runReplay(t *testing.T, cfg *config.Config) *reporting.Report {
	t.Helper()
	d, err := replay.Assemble(cfg, zerolog.Nop())
	require.NoError(t, err)
	report, err := d.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report)
	return report
}

func TestRerunnerReproducesRun(t *testing.T) {
	cfg := verifierConfig(t, t.TempDir())
	writeDataset(t, cfg.Replay.DatasetPath, defendedSell())
	first := runReplay(t, cfg)

	rr, err := New(Options{Config: cfg, First: first, Logger: zerolog.Nop()})
	require.NoError(t, err)
	rep, err := rr.Verify(context.Background())
	require.NoError(t, err)

	require.True(t, rep.Deterministic(), "divergences: %v, artifacts: %v", rep.Divergences, rep.ArtifactsDivergent)
	require.Equal(t, 4, rep.ArtifactsCompared)
	require.Empty(t, rep.ArtifactsDivergent)

	// The rerun leaves its own artifacts behind for inspection.
	_, err = os.Stat(filepath.Join(cfg.Replay.OutputDir, RerunDir, reporting.SummaryFile))
	require.NoError(t, err)
}

func TestRerunnerFlagsDoctoredRun(t *testing.T) {
	cfg := verifierConfig(t, t.TempDir())
	writeDataset(t, cfg.Replay.DatasetPath, defendedSell())
	first := runReplay(t, cfg)

	// Tamper with the in-memory report and with one artifact on disk.
	first.Summary.SignalsConfirmed++
	sumPath := filepath.Join(cfg.Replay.OutputDir, reporting.SummaryFile)
	require.NoError(t, os.WriteFile(sumPath, []byte("doctored\n"), 0o644))

	rr, err := New(Options{Config: cfg, First: first, Logger: zerolog.Nop()})
	require.NoError(t, err)
	rep, err := rr.Verify(context.Background())
	require.NoError(t, err)

	require.False(t, rep.Deterministic())
	require.Contains(t, rep.ArtifactsDivergent, reporting.SummaryFile)
	require.Contains(t, divergedFields(rep.Divergences), "summary.SignalsConfirmed")
}
