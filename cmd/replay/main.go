// Package main replays a recorded swap dataset through the detection
// pipeline and the trading sandbox, writing deterministic report artifacts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/replay"
	"solana-infra-watch/internal/reporting"
	"solana-infra-watch/internal/storage"
	"solana-infra-watch/internal/storage/migrations"
	pgstore "solana-infra-watch/internal/storage/postgres"
	"solana-infra-watch/internal/verification"
)

// maxPrintedDivergences caps the divergence listing on a failed verification;
// the full list is in the rerun artifacts.
const maxPrintedDivergences = 10

func main() {
	var (
		cfgPath   string
		dataset   string
		outputDir string
		speed     string
		seed      uint32
		verify    bool
	)
	cmd := &cobra.Command{
		Use:          "replay",
		Short:        "Replay a recorded dataset through the sandbox",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if dataset != "" {
				cfg.Replay.DatasetPath = dataset
			}
			if outputDir != "" {
				cfg.Replay.OutputDir = outputDir
			}
			if speed != "" {
				cfg.Replay.Speed = speed
			}
			if cmd.Flags().Changed("seed") {
				cfg.Replay.Seed = seed
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if cfg.Replay.DatasetPath == "" {
				return errors.New("replay.dataset_path is required (or --dataset)")
			}
			return run(cfg, verify)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "config.yaml", "path to the YAML config file")
	cmd.Flags().StringVar(&dataset, "dataset", "", "dataset path override")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "artifact directory override")
	cmd.Flags().StringVar(&speed, "speed", "", "pacing override: 1x, 10x, 100x or max")
	cmd.Flags().Uint32Var(&seed, "seed", 0, "simulator seed override")
	cmd.Flags().BoolVar(&verify, "verify", false, "rerun the replay and fail unless both runs match exactly")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config, verify bool) error {
	logger := cfg.Logging.NewLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	driver, err := replay.Assemble(cfg, logger)
	if err != nil {
		return err
	}

	// An aborted run still reports best-effort; the error decides the exit
	// code either way.
	report, runErr := driver.Run(ctx)
	if report != nil {
		printSummary(cfg.Replay.OutputDir, report)
		persistTrades(ctx, cfg, logger, report)
	}
	if runErr != nil || !verify {
		return runErr
	}
	return verifyDeterminism(ctx, cfg, logger, report)
}

// verifyDeterminism replays the dataset a second time and fails the command
// unless every field and every artifact byte matches the first run.
func verifyDeterminism(ctx context.Context, cfg *config.Config, logger zerolog.Logger, report *reporting.Report) error {
	rr, err := verification.New(verification.Options{Config: cfg, First: report, Logger: logger})
	if err != nil {
		return err
	}
	rep, err := rr.Verify(ctx)
	if err != nil {
		return err
	}
	if rep.Deterministic() {
		fmt.Printf("verification:      rerun matched exactly (%d trades, %d artifacts)\n",
			rep.TradesTotal, rep.ArtifactsCompared)
		return nil
	}

	fmt.Printf("verification:      rerun diverged from the first run\n")
	for i, dv := range rep.Divergences {
		if i == maxPrintedDivergences {
			fmt.Printf("  ... %d more\n", len(rep.Divergences)-i)
			break
		}
		fmt.Printf("  %s: %v != %v\n", dv.Field, dv.First, dv.Second)
	}
	for _, name := range rep.ArtifactsDivergent {
		fmt.Printf("  artifact differs: %s\n", name)
	}
	return fmt.Errorf("replay is not reproducible: %d field divergences, %d divergent artifacts",
		len(rep.Divergences), len(rep.ArtifactsDivergent))
}

// printSummary mirrors the headline numbers of summary.json to stdout.
func printSummary(outputDir string, r *reporting.Report) {
	s := r.Summary
	fmt.Printf("events processed:  %d (%d tokens, %d pools)\n",
		s.Coverage.EventsProcessed, s.Coverage.TokensSeen, s.Coverage.PoolsSeen)
	fmt.Printf("signals:           %d emitted, %d confirmed, %d expired\n",
		s.SignalsEmitted, s.SignalsConfirmed, s.SignalsExpired)
	fmt.Printf("wallets:           %d tracked, %d classified\n",
		s.TrackedWallets, s.ClassifiedWallets)
	fmt.Printf("trades:            %d closed\n", len(r.Trades))
	fmt.Printf("capital:           %.4f -> %.4f (max drawdown %.2f%%)\n",
		s.StartingCapitalBase, s.FinalCapitalBase, s.MaxDrawdownPct)
	if len(r.Errors) > 0 {
		fmt.Printf("run errors:        %d (see report.md)\n", len(r.Errors))
	}
	fmt.Printf("artifacts:         %s/\n", outputDir)
}

// persistTrades mirrors the run's closed trades into Postgres when a DSN is
// configured. Failures are logged, never fatal: the artifacts on disk are
// the authoritative record.
func persistTrades(ctx context.Context, cfg *config.Config, logger zerolog.Logger, report *reporting.Report) {
	if cfg.Storage.PostgresDSN == "" || len(report.Trades) == 0 {
		return
	}
	// The run may have been cancelled; persistence still gets a live context.
	ctx = context.WithoutCancel(ctx)

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		logger.Error().Err(err).Msg("trade persistence: connect failed")
		return
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Error().Err(err).Msg("trade persistence: migrations failed")
		return
	}

	trades := make([]*domain.VirtualTrade, len(report.Trades))
	for i := range report.Trades {
		trades[i] = &report.Trades[i]
	}
	if err := pgstore.NewTradeStore(pool).InsertBulk(ctx, trades); err != nil {
		// Trade IDs are deterministic, so a rerun of the same dataset and
		// seed collides with its earlier rows.
		if errors.Is(err, storage.ErrDuplicateKey) {
			logger.Warn().Msg("trades for this run are already persisted")
			return
		}
		logger.Error().Err(err).Msg("trade persistence failed")
		return
	}
	logger.Info().Int("trades", len(trades)).Msg("trades persisted")
}
