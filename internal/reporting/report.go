// Package reporting turns a finished run — replay or live shutdown — into
// the end-of-run artifacts: summary.json, trades.csv, wallet_performance.csv
// and report.md. Every row is sorted by a stable key and the timestamp comes
// from the injected clock, so identical runs render byte-identical files.
package reporting

import "solana-infra-watch/internal/domain"

// Artifact file names written into the output directory.
const (
	SummaryFile = "summary.json"
	TradesFile  = "trades.csv"
	WalletsFile = "wallet_performance.csv"
	ReportFile  = "report.md"
)

// RunData carries everything a finished run hands to the generator. The
// portfolio numbers are taken as-is; the generator only derives trade
// statistics and renders.
type RunData struct {
	StartingCapitalBase float64
	FinalCapitalBase    float64
	FinalEquityBase     float64
	PeakEquityBase      float64
	MaxDrawdownBase     float64
	MaxDrawdownPct      float64
	TotalFeesBase       float64

	SignalsEmitted   int64
	SignalsConfirmed int64
	SignalsExpired   int64

	// TrackedWallets is the scorer's full tracked population; Wallets holds
	// only the classified subset exported to wallet_performance.csv.
	TrackedWallets int

	Coverage Coverage

	Trades      []domain.VirtualTrade
	Wallets     []domain.WalletBehavior
	EquityCurve []domain.EquityPoint
	Errors      []string
}

// Coverage describes how much of the market the run actually saw.
type Coverage struct {
	EventsProcessed int64 `json:"events_processed"`
	TokensSeen      int   `json:"tokens_seen"`
	PoolsSeen       int   `json:"pools_seen"`
	FirstSlot       int64 `json:"first_slot"`
	LastSlot        int64 `json:"last_slot"`
}

// EquitySample is one equity-curve point as written to summary.json.
type EquitySample struct {
	Slot        int64   `json:"slot"`
	TimestampMs int64   `json:"timestamp_ms"`
	Capital     float64 `json:"capital"`
	Equity      float64 `json:"equity"`
	DrawdownPct float64 `json:"drawdown_pct"`
}

// Report is the assembled run report. Trades and Wallets are sorted copies;
// rendering never re-orders them.
type Report struct {
	GeneratedAtMs int64
	Summary       Summary
	Trades        []domain.VirtualTrade
	Wallets       []domain.WalletBehavior
	Errors        []string
}

// Summary is the summary.json payload.
type Summary struct {
	GeneratedAtMs int64 `json:"generated_at_ms"`

	StartingCapitalBase float64 `json:"starting_capital_base"`
	FinalCapitalBase    float64 `json:"final_capital_base"`
	FinalEquityBase     float64 `json:"final_equity_base"`
	PeakEquityBase      float64 `json:"peak_equity_base"`
	MaxDrawdownBase     float64 `json:"max_drawdown_base"`
	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	TotalFeesBase       float64 `json:"total_fees_base"`

	SignalsEmitted   int64 `json:"signals_emitted"`
	SignalsConfirmed int64 `json:"signals_confirmed"`
	SignalsExpired   int64 `json:"signals_expired"`

	TrackedWallets    int `json:"tracked_wallets"`
	ClassifiedWallets int `json:"classified_wallets"`

	Coverage Coverage `json:"coverage"`

	Trades TradeStats `json:"trades"`

	// EquityCurve doubles as the drawdown curve through DrawdownPct.
	EquityCurve []EquitySample `json:"equity_curve"`

	ErrorCount int `json:"error_count"`
}
