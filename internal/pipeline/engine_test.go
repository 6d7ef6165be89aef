package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/reporting"
)

const engineAbsorber = "wallet-abs"

// engineBase anchors event block times near the present so wall-clock decay
// never touches wallets created during the test.
var engineBase = time.Now().Unix()

func engineSwap(slot int64, sig, pool, mint, trader, side string, amountBase, amountToken, postBase, postToken float64) domain.SwapEvent {
	return domain.SwapEvent{
		Key:               domain.EventKey{Slot: slot, TxIndex: 0, InnerIndex: -1, LogIndex: 0},
		Signature:         sig,
		BlockTime:         engineBase + slot,
		PoolAddress:       pool,
		TokenMint:         mint,
		BaseMint:          "base-mint",
		Trader:            trader,
		Side:              side,
		AmountBase:        amountBase,
		AmountToken:       amountToken,
		PriceBasePerToken: amountBase / amountToken,
		PoolState: domain.PoolStateSnapshot{
			Slot:              slot,
			PoolAddress:       pool,
			ReserveBase:       postBase,
			ReserveToken:      postToken,
			PriceBasePerToken: postBase / postToken,
		},
	}
}

// engineCycle is one large sell absorbed by engineAbsorber followed by a
// stabilized tail, on a pool holding 1000 base / 100000 token.
func engineCycle(start int64, tag, pool, mint string) []domain.SwapEvent {
	sig := func(n string) string { return fmt.Sprintf("%s-%s", tag, n) }
	return []domain.SwapEvent{
		engineSwap(start, sig("sell"), pool, mint, "whale-"+tag, domain.SideSell, 20, 2041, 980, 102_041),
		engineSwap(start+1, sig("buy1"), pool, mint, engineAbsorber, domain.SideBuy, 6, 625, 986, 101_416),
		engineSwap(start+2, sig("buy2"), pool, mint, engineAbsorber, domain.SideBuy, 6, 625, 992, 100_791),
		engineSwap(start+15, sig("quiet1"), pool, mint, "noise-"+tag, domain.SideBuy, 3.84, 400, 994, 100_594),
		engineSwap(start+25, sig("quiet2"), pool, mint, "noise-"+tag, domain.SideSell, 3.84, 400, 992, 100_791),
		engineSwap(start+35, sig("quiet3"), pool, mint, "noise-"+tag, domain.SideBuy, 3.84, 400, 994, 100_594),
	}
}

func engineCloser(slot int64, sig string) domain.SwapEvent {
	return engineSwap(slot, sig, "pool-closer", "mint-closer", "wallet-closer", domain.SideBuy, 0.5, 50, 200, 20_000)
}

// engineSeasonedDataset classifies engineAbsorber as defensive infrastructure:
// four identical absorption cycles across three mints.
func engineSeasonedDataset() []domain.SwapEvent {
	var events []domain.SwapEvent
	events = append(events, engineCycle(10, "c1", "pool-a", "mint-a")...)
	events = append(events, engineCycle(110, "c2", "pool-b", "mint-b")...)
	events = append(events, engineCycle(210, "c3", "pool-c", "mint-a")...)
	events = append(events, engineCycle(310, "c4", "pool-d", "mint-c")...)
	events = append(events, engineCloser(370, "close-end"))
	return events
}

func engineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Detection.AbsorptionWindowSlots = 10
	cfg.Detection.MaxResponseLatencySlots = 10
	cfg.Stabilization.StabilizationWindowSlots = 40
	return cfg
}

// feedEvents returns a closed, pre-filled channel so the engine runs the
// whole scenario synchronously and stops at end of stream.
func feedEvents(events []domain.SwapEvent) <-chan domain.SwapEvent {
	ch := make(chan domain.SwapEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestEngineTracksAbsorberAcrossCycle(t *testing.T) {
	events := append(engineCycle(10, "c1", "pool-a", "mint-a"), engineCloser(80, "close"))

	eng, err := New(Options{
		Config: engineConfig(t),
		Events: feedEvents(events),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	require.NoError(t, eng.Run(context.Background()))

	behavior, ok := eng.Scorer().Get(engineAbsorber)
	require.True(t, ok, "absorber never scored")
	require.Equal(t, 1, behavior.TotalAbsorptions)
	require.Equal(t, 1, behavior.SuccessfulAbsorptions)
	require.Equal(t, domain.ClassCandidate, behavior.Classification)
	require.Len(t, behavior.EvidenceLog, 1)
	require.Equal(t, domain.OutcomeSuccess, behavior.EvidenceLog[0].Outcome)

	stats := eng.Stats()
	require.Equal(t, int64(len(events)), stats.EventsProcessed)
	require.Equal(t, int64(80), stats.HighestSlot)
	require.Zero(t, eng.Emitter().Stats().Emitted)
}

func TestEngineEmitsAndConfirmsSignalForClassifiedWallet(t *testing.T) {
	exportDir := filepath.Join(t.TempDir(), "export")

	eng, err := New(Options{
		Config:    engineConfig(t),
		Events:    feedEvents(engineSeasonedDataset()),
		ExportDir: exportDir,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	signalCh := eng.Subscribe(8)
	require.NoError(t, eng.Run(context.Background()))

	var got []domain.Signal
	for sig := range signalCh {
		got = append(got, sig)
	}
	require.Len(t, got, 2, "expected emission and confirmation")

	require.Equal(t, domain.SignalActive, got[0].Status)
	require.Equal(t, engineAbsorber, got[0].AbsorberWallet)
	require.Equal(t, "mint-c", got[0].TokenMint)
	require.InDelta(t, 65.6, got[0].Strength, 1e-9)

	require.Equal(t, domain.SignalConfirmed, got[1].Status)
	require.Equal(t, got[0].ID, got[1].ID)
	require.True(t, got[1].StabilizationConfirmed)

	behavior, ok := eng.Scorer().Get(engineAbsorber)
	require.True(t, ok)
	require.Equal(t, domain.ClassDefensiveInfra, behavior.Classification)
	require.Equal(t, 4, behavior.TotalAbsorptions)
	require.InDelta(t, 75.0, behavior.Confidence, 1e-6)

	// Shutdown exports the classified set like the replay reporter does.
	data, err := os.ReadFile(filepath.Join(exportDir, reporting.WalletsFile))
	require.NoError(t, err)
	csv := string(data)
	require.Contains(t, csv, engineAbsorber)
	require.Contains(t, csv, domain.ClassDefensiveInfra)

	emitStats := eng.Emitter().Stats()
	require.EqualValues(t, 1, emitStats.Emitted)
	require.EqualValues(t, 1, emitStats.Confirmed)
	require.EqualValues(t, 0, emitStats.Expired)
}

func TestEngineDrainsBufferedEventsOnCancel(t *testing.T) {
	events := append(engineCycle(10, "c1", "pool-a", "mint-a"), engineCloser(80, "close"))

	eng, err := New(Options{
		Config: engineConfig(t),
		Events: feedEvents(events),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = eng.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// Everything the intake flushed before closing still went through.
	require.Equal(t, int64(len(events)), eng.Stats().EventsProcessed)
	behavior, ok := eng.Scorer().Get(engineAbsorber)
	require.True(t, ok)
	require.Equal(t, 1, behavior.TotalAbsorptions)
}

func TestEngineRequiresConfigAndEvents(t *testing.T) {
	if _, err := New(Options{Events: feedEvents(nil)}); err == nil {
		t.Fatal("engine accepted nil config")
	}
	if _, err := New(Options{Config: config.Default()}); err == nil {
		t.Fatal("engine accepted nil event stream")
	}
}
