package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the run report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Infrastructure Wallet Run Report\n\n")
	generated := time.UnixMilli(r.GeneratedAtMs).UTC()
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", generated.Format(time.RFC3339)))

	// Run Summary
	s := r.Summary
	sb.WriteString("## Run Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Starting Capital (base) | %.8f |\n", s.StartingCapitalBase))
	sb.WriteString(fmt.Sprintf("| Final Capital (base) | %.8f |\n", s.FinalCapitalBase))
	sb.WriteString(fmt.Sprintf("| Final Equity (base) | %.8f |\n", s.FinalEquityBase))
	sb.WriteString(fmt.Sprintf("| Peak Equity (base) | %.8f |\n", s.PeakEquityBase))
	sb.WriteString(fmt.Sprintf("| Max Drawdown (base) | %.8f |\n", s.MaxDrawdownBase))
	sb.WriteString(fmt.Sprintf("| Max Drawdown (%%) | %.4f |\n", s.MaxDrawdownPct))
	sb.WriteString(fmt.Sprintf("| Total Fees (base) | %.8f |\n", s.TotalFeesBase))
	sb.WriteString(fmt.Sprintf("| Signals Emitted | %d |\n", s.SignalsEmitted))
	sb.WriteString(fmt.Sprintf("| Signals Confirmed | %d |\n", s.SignalsConfirmed))
	sb.WriteString(fmt.Sprintf("| Signals Expired | %d |\n", s.SignalsExpired))
	sb.WriteString(fmt.Sprintf("| Tracked Wallets | %d |\n", s.TrackedWallets))
	sb.WriteString(fmt.Sprintf("| Classified Wallets | %d |\n", s.ClassifiedWallets))
	sb.WriteString("\n")

	// Coverage
	sb.WriteString("## Market Coverage\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Events Processed | %d |\n", s.Coverage.EventsProcessed))
	sb.WriteString(fmt.Sprintf("| Tokens Seen | %d |\n", s.Coverage.TokensSeen))
	sb.WriteString(fmt.Sprintf("| Pools Seen | %d |\n", s.Coverage.PoolsSeen))
	sb.WriteString(fmt.Sprintf("| Slot Range | %d - %d |\n", s.Coverage.FirstSlot, s.Coverage.LastSlot))
	sb.WriteString("\n")

	// Trade Statistics
	sb.WriteString("## Trade Statistics\n\n")
	ts := s.Trades
	if ts.TotalTrades > 0 {
		sb.WriteString("| Metric | Value |\n")
		sb.WriteString("|--------|-------|\n")
		sb.WriteString(fmt.Sprintf("| Total Trades | %d |\n", ts.TotalTrades))
		sb.WriteString(fmt.Sprintf("| Total Tokens | %d |\n", ts.TotalTokens))
		sb.WriteString(fmt.Sprintf("| Wins / Losses | %d / %d |\n", ts.Wins, ts.Losses))
		sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", ts.WinRate))
		sb.WriteString(fmt.Sprintf("| Token Win Rate | %.4f |\n", ts.TokenWinRate))
		sb.WriteString(fmt.Sprintf("| Net P&L (base) | %.8f |\n", ts.NetPnlBase))
		sb.WriteString(fmt.Sprintf("| Expectancy (base/trade) | %.8f |\n", ts.ExpectancyBase))
		sb.WriteString(fmt.Sprintf("| Return Mean (%%) | %.4f |\n", ts.ReturnMeanPct))
		sb.WriteString(fmt.Sprintf("| Return Median (%%) | %.4f |\n", ts.ReturnMedianPct))
		sb.WriteString(fmt.Sprintf("| Return P10 / P90 (%%) | %.4f / %.4f |\n", ts.ReturnP10Pct, ts.ReturnP90Pct))
		sb.WriteString(fmt.Sprintf("| Return Stddev (%%) | %.4f |\n", ts.ReturnStddevPct))
		sb.WriteString(fmt.Sprintf("| Sharpe (per trade) | %.4f |\n", ts.SharpeRatio))
		sb.WriteString(fmt.Sprintf("| Avg Holding (slots) | %.2f |\n", ts.AvgHoldingSlots))
		sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", ts.MaxConsecutiveLosses))
	} else {
		sb.WriteString("No trades closed during this run.\n")
	}
	sb.WriteString("\n")

	// Trades
	sb.WriteString("## Trades\n\n")
	if len(r.Trades) > 0 {
		sb.WriteString("| Token | Absorber | Entry Slot | Exit Slot | Entry Price | Exit Price | Return% | PnL | Exit Reason |\n")
		sb.WriteString("|-------|----------|-----------|-----------|-------------|------------|---------|-----|-------------|\n")
		for _, t := range r.Trades {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %.8f | %.8f | %.4f | %.8f | %s |\n",
				t.TokenMint, t.Absorber, t.EntrySlot, t.ExitSlot,
				t.EntryPrice, t.ExitPrice, t.ReturnPct, t.RealizedPnl, t.ExitReason))
		}
	} else {
		sb.WriteString("No trades recorded.\n")
	}
	sb.WriteString("\n")

	// Wallets
	sb.WriteString("## Classified Wallets\n\n")
	if len(r.Wallets) > 0 {
		sb.WriteString("| Wallet | Classification | Confidence | Absorptions | Success Rate | Pattern |\n")
		sb.WriteString("|--------|----------------|------------|-------------|--------------|--------|\n")
		for _, w := range r.Wallets {
			sb.WriteString(fmt.Sprintf("| %s | %s | %.2f | %d | %.4f | %s |\n",
				w.Wallet, w.Classification, w.Confidence,
				w.TotalAbsorptions, w.StabilizationSuccessRate, w.ActivityPattern))
		}
	} else {
		sb.WriteString("No wallets classified.\n")
	}
	sb.WriteString("\n")

	// Errors
	sb.WriteString("## Errors\n\n")
	if len(r.Errors) > 0 {
		for _, e := range r.Errors {
			sb.WriteString(fmt.Sprintf("- %s\n", e))
		}
	} else {
		sb.WriteString("No errors recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
