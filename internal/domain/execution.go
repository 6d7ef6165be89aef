package domain

// Slippage model identifiers.
const (
	SlippageNone     = "none"
	SlippageConstant = "constant"
	SlippageReserves = "reserves"
)

// Execution mode constants.
const (
	ModeIdealized = "idealized"
	ModeRealistic = "realistic"
	ModeStress    = "stress"
)

// ExecutionParams represent fill-simulator parameters for one run.
type ExecutionParams struct {
	Mode             string  // "idealized" | "realistic" | "stress"
	LatencySlots     int64   // slots between decision and execution
	SlippageModel    string  // "none" | "constant" | "reserves"
	SlippageBps      float64 // configured slippage for the constant model
	QuoteStaleProb   float64 // probability the quote is stale at execution
	RouteFailProb    float64 // probability the route fails outright
	PartialFillProb  float64 // probability only part of the order fills
	PartialFillRatio float64 // executed fraction on a partial fill
	LpFeeBps         float64 // pool LP fee
	PriorityFee      float64 // flat priority fee in base units
}

// Predefined execution modes.
var (
	ExecutionIdealized = ExecutionParams{
		Mode:             ModeIdealized,
		LatencySlots:     0,
		SlippageModel:    SlippageNone,
		SlippageBps:      0,
		QuoteStaleProb:   0,
		RouteFailProb:    0,
		PartialFillProb:  0,
		PartialFillRatio: 1.0,
		LpFeeBps:         0,
		PriorityFee:      0,
	}

	ExecutionRealistic = ExecutionParams{
		Mode:             ModeRealistic,
		LatencySlots:     2,
		SlippageModel:    SlippageReserves,
		SlippageBps:      50,
		QuoteStaleProb:   0.02,
		RouteFailProb:    0.01,
		PartialFillProb:  0.05,
		PartialFillRatio: 0.5,
		LpFeeBps:         25,
		PriorityFee:      0.0001,
	}

	ExecutionStress = ExecutionParams{
		Mode:             ModeStress,
		LatencySlots:     8,
		SlippageModel:    SlippageReserves,
		SlippageBps:      200,
		QuoteStaleProb:   0.10,
		RouteFailProb:    0.08,
		PartialFillProb:  0.20,
		PartialFillRatio: 0.4,
		LpFeeBps:         30,
		PriorityFee:      0.001,
	}
)

// ParamsForMode returns the preset for a named mode, or false for an
// unrecognized one.
func ParamsForMode(mode string) (ExecutionParams, bool) {
	switch mode {
	case ModeIdealized:
		return ExecutionIdealized, true
	case ModeRealistic:
		return ExecutionRealistic, true
	case ModeStress:
		return ExecutionStress, true
	default:
		return ExecutionParams{}, false
	}
}
