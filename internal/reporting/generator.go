package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"solana-infra-watch/internal/clock"
	"solana-infra-watch/internal/domain"
)

// Options configures a Generator.
type Options struct {
	// OutputDir receives the artifact files; created if missing.
	OutputDir string
	// Clock supplies GeneratedAt. The replay driver passes its ReplayClock so
	// reports are reproducible.
	Clock  clock.Clock
	Logger zerolog.Logger
}

// Generator assembles a Report from run data and writes the artifacts.
type Generator struct {
	outputDir string
	clk       clock.Clock
	logger    zerolog.Logger
}

// NewGenerator creates a report generator.
func NewGenerator(opts Options) *Generator {
	return &Generator{
		outputDir: opts.OutputDir,
		clk:       opts.Clock,
		logger:    opts.Logger.With().Str("component", "reporting").Logger(),
	}
}

// Build assembles the report without touching the filesystem. Trades are
// sorted by (exit_slot, entry_slot, trade_id) and wallets by (confidence
// desc, wallet asc) so rendering is deterministic.
func (g *Generator) Build(data RunData) *Report {
	trades := make([]domain.VirtualTrade, len(data.Trades))
	copy(trades, data.Trades)
	sortTrades(trades)

	wallets := make([]domain.WalletBehavior, len(data.Wallets))
	copy(wallets, data.Wallets)
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].Confidence != wallets[j].Confidence {
			return wallets[i].Confidence > wallets[j].Confidence
		}
		return wallets[i].Wallet < wallets[j].Wallet
	})

	errs := make([]string, len(data.Errors))
	copy(errs, data.Errors)
	sort.Strings(errs)

	equity := make([]EquitySample, len(data.EquityCurve))
	for i, p := range data.EquityCurve {
		equity[i] = EquitySample{
			Slot:        p.Slot,
			TimestampMs: p.Timestamp,
			Capital:     p.Capital,
			Equity:      p.Equity,
			DrawdownPct: p.DrawdownPct,
		}
	}

	now := g.clk.Now()
	return &Report{
		GeneratedAtMs: now,
		Summary: Summary{
			GeneratedAtMs:       now,
			StartingCapitalBase: data.StartingCapitalBase,
			FinalCapitalBase:    data.FinalCapitalBase,
			FinalEquityBase:     data.FinalEquityBase,
			PeakEquityBase:      data.PeakEquityBase,
			MaxDrawdownBase:     data.MaxDrawdownBase,
			MaxDrawdownPct:      data.MaxDrawdownPct,
			TotalFeesBase:       data.TotalFeesBase,
			SignalsEmitted:      data.SignalsEmitted,
			SignalsConfirmed:    data.SignalsConfirmed,
			SignalsExpired:      data.SignalsExpired,
			TrackedWallets:      data.TrackedWallets,
			ClassifiedWallets:   len(wallets),
			Coverage:            data.Coverage,
			Trades:              ComputeTradeStats(trades),
			EquityCurve:         equity,
			ErrorCount:          len(errs),
		},
		Trades:  trades,
		Wallets: wallets,
		Errors:  errs,
	}
}

// Write renders the report and writes all four artifacts into the output
// directory.
func (g *Generator) Write(report *Report) error {
	if err := os.MkdirAll(g.outputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	summaryJSON, err := json.MarshalIndent(report.Summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	summaryJSON = append(summaryJSON, '\n')

	files := []struct {
		name    string
		content []byte
	}{
		{SummaryFile, summaryJSON},
		{TradesFile, []byte(RenderTradesCSV(report.Trades))},
		{WalletsFile, []byte(RenderWalletsCSV(report.Wallets))},
		{ReportFile, []byte(RenderMarkdown(report))},
	}

	for _, f := range files {
		path := filepath.Join(g.outputDir, f.name)
		if err := os.WriteFile(path, f.content, 0644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
		g.logger.Info().Str("path", path).Int("bytes", len(f.content)).Msg("report artifact written")
	}

	return nil
}

// Generate builds the report and writes all artifacts in one step.
func (g *Generator) Generate(data RunData) (*Report, error) {
	report := g.Build(data)
	if err := g.Write(report); err != nil {
		return nil, err
	}
	return report, nil
}
