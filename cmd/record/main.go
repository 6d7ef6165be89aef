// Package main records the live swap stream into a replay dataset. Events
// flow through the same intake and normalizer as live mode, then append to a
// JSONL file, with optional archiving to ClickHouse and a Postgres checkpoint
// so an interrupted session resumes without corrupting the dataset.
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
	"solana-infra-watch/internal/replay"
	"solana-infra-watch/internal/solana"
	"solana-infra-watch/internal/storage"
	chstore "solana-infra-watch/internal/storage/clickhouse"
	"solana-infra-watch/internal/storage/migrations"
	pgstore "solana-infra-watch/internal/storage/postgres"
)

const (
	// archiveBatchSize bounds one ClickHouse insert; the flush ticker keeps
	// quiet streams from stranding a partial batch.
	archiveBatchSize = 256
	flushInterval    = 5 * time.Second
)

func main() {
	var (
		cfgPath string
		outPath string
	)
	cmd := &cobra.Command{
		Use:          "record",
		Short:        "Record the live swap stream into a replay dataset",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if outPath != "" {
				cfg.Replay.DatasetPath = outPath
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if cfg.Replay.DatasetPath == "" {
				return errors.New("replay.dataset_path is required (or --out)")
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "config.yaml", "path to the YAML config file")
	cmd.Flags().StringVar(&outPath, "out", "", "dataset output path override")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := cfg.Logging.NewLogger()

	if cfg.Chain.RPCEndpoint == "" || cfg.Chain.WSEndpoint == "" {
		return errors.New("chain.rpc_endpoint and chain.ws_endpoint are required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sinks, cleanup, err := createSinks(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	metrics := observability.NewMetrics("")

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

	err = record(ctx, logger, intake, sinks)
	if errors.Is(err, context.Canceled) {
		logger.Info().Msg("shutdown complete")
		return nil
	}
	return err
}

// recordSinks holds the dataset writer and the optional archive and
// checkpoint stores.
type recordSinks struct {
	writer   *replay.DatasetWriter
	archive  storage.SwapArchiveStore    // nil without a ClickHouse DSN
	progress storage.RecordProgressStore // nil without a Postgres DSN
}

// createSinks opens the dataset file for append and connects the configured
// backends, applying migrations on connect.
func createSinks(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*recordSinks, func(), error) {
	f, err := os.OpenFile(cfg.Replay.DatasetPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("open dataset: %w", err)
	}

	sinks := &recordSinks{writer: replay.NewDatasetWriter(f)}
	closers := []func(){func() { f.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, dsn)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		closers = append(closers, func() { conn.Close() })
		sinks.archive = chstore.NewSwapArchiveStore(conn)
		logger.Info().Msg("clickhouse archive enabled")
	}

	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		pool, err := pgstore.NewPool(ctx, dsn)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, func() { pool.Close() })
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
		}
		sinks.progress = pgstore.NewRecordProgressStore(pool)
		logger.Info().Msg("recorder checkpointing enabled")
	}

	return sinks, cleanup, nil
}

// record consumes the ordered stream until shutdown. The JSONL file is the
// authoritative artifact: a write failure there is fatal, while archive and
// checkpoint failures only log. Returns the intake's error once the stream
// closes.
func record(ctx context.Context, logger zerolog.Logger, intake *ingestion.Intake, sinks *recordSinks) error {
	log := logger.With().Str("component", "recorder").Logger()

	// The checkpoint slot itself may be partially archived, so recording
	// resumes strictly after it; one slot of loss beats a duplicate that
	// would invalidate the dataset.
	var resumeSlot int64
	if sinks.progress != nil {
		p, err := sinks.progress.GetLastArchived(ctx)
		switch {
		case err == nil:
			resumeSlot = p.Slot
			log.Info().Int64("slot", p.Slot).Str("signature", p.Signature).
				Msg("resuming past the last archived slot")
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("read recorder checkpoint: %w", err)
		}
	}

	intakeDone := make(chan error, 1)
	go func() { intakeDone <- intake.Run(ctx) }()

	// Flushes triggered by the shutdown drain still need working sinks.
	flushCtx := context.WithoutCancel(ctx)

	var batch []*domain.SwapEvent
	var skipped int

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sinks.writer.Flush(); err != nil {
			return fmt.Errorf("flush dataset: %w", err)
		}
		if sinks.archive != nil {
			if err := sinks.archive.InsertBulk(flushCtx, batch); err != nil {
				log.Error().Err(err).Int("events", len(batch)).Msg("archive batch failed")
			}
		}
		if sinks.progress != nil {
			tail := batch[len(batch)-1]
			err := sinks.progress.SetLastArchived(flushCtx, &storage.RecordProgress{
				Slot:      tail.Key.Slot,
				Signature: tail.Signature,
			})
			if err != nil {
				log.Error().Err(err).Msg("recorder checkpoint failed")
			}
		}
		batch = batch[:0]
		return nil
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	log.Info().Msg("recording started")

	events := intake.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if err := flush(); err != nil {
					return err
				}
				log.Info().
					Int("events", sinks.writer.Count()).
					Int("skipped", skipped).
					Msg("recording stopped")
				return <-intakeDone
			}
			if ev.Key.Slot <= resumeSlot {
				skipped++
				continue
			}
			if err := sinks.writer.Append(ev); err != nil {
				return err
			}
			evCopy := ev
			batch = append(batch, &evCopy)
			if len(batch) >= archiveBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}

		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
