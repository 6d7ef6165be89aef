// Package main runs the live pipeline: WebSocket intake, normalization,
// detection, scoring and signal emission, with the optional status API and
// best-effort persistence.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"solana-infra-watch/internal/config"
	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/ingestion"
	"solana-infra-watch/internal/normalization"
	"solana-infra-watch/internal/observability"
	"solana-infra-watch/internal/oracle"
	"solana-infra-watch/internal/pipeline"
	"solana-infra-watch/internal/solana"
	"solana-infra-watch/internal/statusapi"
	"solana-infra-watch/internal/storage"
	"solana-infra-watch/internal/storage/memory"
	"solana-infra-watch/internal/storage/migrations"
	pgstore "solana-infra-watch/internal/storage/postgres"
)

// shutdownGrace bounds the drain after the first signal; a second signal or
// the deadline forces exit.
const shutdownGrace = 30 * time.Second

func main() {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "live",
		Short:        "Run the live infrastructure-wallet detection pipeline",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "config.yaml", "path to the YAML config file")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := cfg.Logging.NewLogger()

	if cfg.Chain.RPCEndpoint == "" || cfg.Chain.WSEndpoint == "" {
		return errors.New("chain.rpc_endpoint and chain.ws_endpoint are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal cancels and drains; a second one, or an overlong drain,
	// forces exit.
	done := make(chan struct{})
	defer close(done)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("shutting down")
			cancel()
		case <-done:
			return
		}
		select {
		case <-sigCh:
			logger.Error().Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(shutdownGrace):
			logger.Error().Msg("graceful shutdown timed out, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	metrics := observability.NewMetrics("")

	stores, cleanup, err := createStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	var market oracle.Oracle = oracle.Nop{}
	if cfg.Oracle.Enabled {
		market = oracle.NewHTTPOracle(cfg.Oracle.BaseURL, time.Duration(cfg.Oracle.TimeoutMs)*time.Millisecond, logger)
	}

	rpc := solana.NewHTTPClient(cfg.Chain.RPCEndpoint,
		solana.WithRequestsPerSec(cfg.Chain.RequestsPerSec),
		solana.WithMaxRetries(cfg.Chain.MaxRetries),
		solana.WithLogger(logger),
	)
	ws, err := solana.NewWSClient(ctx, cfg.Chain.WSEndpoint, nil, logger)
	if err != nil {
		return fmt.Errorf("connect websocket: %w", err)
	}
	defer ws.Close()

	norm, err := normalization.New(normalization.Options{
		Oracle: market,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	intake, err := ingestion.New(ingestion.Options{
		WS:         ws,
		RPC:        rpc,
		Normalizer: norm,
		Programs:   cfg.Chain.Programs,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	engine, err := pipeline.New(pipeline.Options{
		Config:        cfg,
		Events:        intake.Events(),
		WalletStore:   stores.wallets,
		EvidenceStore: stores.evidence,
		ExportDir:     cfg.Replay.OutputDir,
		Metrics:       metrics,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	// The subscriber must keep draining for the engine to make progress;
	// live mode logs each signal as it fires.
	go logSignals(engine.Subscribe(64), logger)

	if cfg.Server.Enabled {
		srv, err := statusapi.New(statusapi.Options{
			Port:     cfg.Server.Port,
			Pipeline: engine,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("status api stopped")
			}
		}()
	}

	intakeDone := make(chan error, 1)
	go func() { intakeDone <- intake.Run(ctx) }()

	// The engine returns once the intake closes the stream and the drain
	// finishes, so nothing already normalized is lost on shutdown.
	runErr := engine.Run(ctx)
	intakeErr := <-intakeDone

	if intakeErr != nil && !errors.Is(intakeErr, context.Canceled) {
		return fmt.Errorf("intake: %w", intakeErr)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

// logSignals drains the engine's signal stream until it closes.
func logSignals(ch <-chan domain.Signal, logger zerolog.Logger) {
	for sig := range ch {
		logger.Info().
			Str("signal_id", sig.ID).
			Str("token", sig.TokenMint).
			Str("pool", sig.PoolAddress).
			Str("absorber", sig.AbsorberWallet).
			Float64("defended_price", sig.DefendedPrice).
			Float64("strength", sig.Strength).
			Str("status", sig.Status).
			Msg("signal")
	}
}

// liveStores is the persistence surface of live mode: the scorer mirrors
// wallet behaviors and absorption evidence through these, best-effort.
type liveStores struct {
	wallets  storage.WalletStore
	evidence storage.EvidenceStore
}

// createStores wires memory stores by default and Postgres when a DSN is
// configured, applying migrations on connect.
func createStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*liveStores, func(), error) {
	if cfg.Storage.PostgresDSN == "" {
		return &liveStores{
			wallets:  memory.NewWalletStore(),
			evidence: memory.NewEvidenceStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
	}
	logger.Info().Msg("postgres persistence enabled")

	return &liveStores{
		wallets:  pgstore.NewWalletStore(pool),
		evidence: pgstore.NewEvidenceStore(pool),
	}, func() { pool.Close() }, nil
}
