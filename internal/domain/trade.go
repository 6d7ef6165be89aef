package domain

// Fill failure reason codes.
const (
	FillFailQuoteStale        = "QUOTE_STALE"
	FillFailRouteFail         = "ROUTE_FAIL"
	FillFailSlippageExceeded  = "SLIPPAGE_EXCEEDED"
	FillFailInsufficientState = "NO_POOL_STATE"
)

// Exit reason codes.
const (
	ExitReasonStabilized  = "STABILIZED"
	ExitReasonExpired     = "SIGNAL_EXPIRED"
	ExitReasonInvalidated = "SIGNAL_INVALIDATED"
	ExitReasonEndOfData   = "END_OF_DATA"
	ExitReasonShutdown    = "SHUTDOWN"
)

// FillResult is the outcome of one simulated fill attempt.
type FillResult struct {
	Filled     bool
	FailReason string // empty when filled

	ExecutionSlot int64
	FillPrice     float64 // poolPrice * (1 + slippageBps/10000)
	SlippageBps   float64
	FeesBase      float64 // lp fee + priority fee, in base units

	// ExecutedAmountBase is the requested amount, scaled down on a
	// partial fill.
	ExecutedAmountBase float64
	Partial            bool
}

// VirtualPosition is an open sandbox position. Owned by the portfolio.
type VirtualPosition struct {
	SignalID    string
	EventID     string // triggering sell event
	TokenMint   string
	PoolAddress string
	Absorber    string

	EntrySlot        int64
	EntryPrice       float64 // fill price including slippage
	EntrySlippageBps float64
	EntryFees        float64
	CostBase         float64 // base deducted from capital (excl. fees)
	AmountToken      float64

	LastPrice     float64
	UnrealizedPnl float64
	MAE           float64 // minimum running unrealized PnL
	MFE           float64 // maximum running unrealized PnL

	SignalStrength float64
	OpenedAt       int64 // Unix timestamp in milliseconds, from the clock
}

// VirtualTrade is a closed sandbox trade with full attribution context.
type VirtualTrade struct {
	TradeID  string // deterministic hash
	SignalID string
	EventID  string // triggering sell event

	TokenMint   string
	PoolAddress string
	Absorber    string

	// Entry
	EntrySlot        int64
	EntryPrice       float64
	EntrySlippageBps float64
	EntryFees        float64
	CostBase         float64
	AmountToken      float64

	// Exit
	ExitSlot        int64
	ExitPrice       float64
	ExitSlippageBps float64
	ExitFees        float64
	ExitReason      string

	// Outcome
	RealizedPnl  float64 // net of all fees
	ReturnPct    float64 // realizedPnl / costBase * 100
	HoldingSlots int64
	MAE          float64
	MFE          float64

	// Context
	SignalStrength         float64
	StabilizationConfirmed bool
	SellFractionOfPool     float64
	AbsorptionFraction     float64
}

// EquityPoint is one sample of the portfolio equity curve.
type EquityPoint struct {
	Slot        int64
	Timestamp   int64   // Unix timestamp in milliseconds
	Capital     float64 // free capital
	Equity      float64 // capital + open position value
	DrawdownPct float64 // vs peak equity
}
