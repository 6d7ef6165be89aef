package domain

// InstructionKind tags a recognized DEX instruction. Downstream code
// dispatches on the tag instead of probing dynamic fields.
type InstructionKind string

// Instruction kind constants.
const (
	InstructionRaydiumSwap InstructionKind = "raydium_swap"
	InstructionPumpSwap    InstructionKind = "pump_swap"
	InstructionUnknown     InstructionKind = "unknown"
)

// Instruction is a tagged view of one decoded DEX instruction.
// Exactly the fields for the matched kind are populated; Unknown carries
// only the program ID.
type Instruction struct {
	Kind      InstructionKind
	ProgramID string

	// Populated for RaydiumSwap and PumpSwap.
	PoolAddress string
	LogIndex    int
	InnerIndex  int

	// TokenMint is a hint decoded from instruction accounts or logs; empty
	// when the program does not expose it, in which case the normalizer
	// infers the mint from balance deltas.
	TokenMint string
}
