package solana

import "context"

// RPCClient defines the Solana RPC HTTP interface consumed by the pipeline.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature with full meta
	// (pre/post token balances, inner instructions, logs).
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetBlock retrieves a block by slot number. Transaction position within
	// the returned slice is the transaction's index in the block.
	GetBlock(ctx context.Context, slot int64) (*Block, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo retrieves raw account data, nil when the account does
	// not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)

	// GetBlockTime retrieves the estimated production time of a block, nil
	// when unavailable.
	GetBlockTime(ctx context.Context, slot int64) (*int64, error)
}

// Transaction represents a Solana transaction.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // Unix timestamp (seconds)
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

// TransactionMeta contains execution metadata. Token balance lists carry the
// pre/post state the normalizer diffs to find the trader.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	LogMessages       []string
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
	InnerInstructions []InnerInstructionSet
}

// TokenBalance is one entry of pre/postTokenBalances.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string // raw integer amount as decimal string
	Decimals     int
	UiAmount     *float64 // amount scaled by decimals, nil for zero balances on some providers
}

// InnerInstructionSet groups the inner instructions invoked by one top-level
// instruction.
type InnerInstructionSet struct {
	Index        int // top-level instruction index
	Instructions []CompiledInstruction
}

// CompiledInstruction references accounts by index into the message keys.
type CompiledInstruction struct {
	ProgramIDIndex int
	Accounts       []int
	Data           string // base58
}

// TransactionMessage contains the parsed transaction message.
type TransactionMessage struct {
	AccountKeys  []string
	Instructions []CompiledInstruction
}

// AccountKey returns the key at idx, empty string when out of range.
func (m *TransactionMessage) AccountKey(idx int) string {
	if m == nil || idx < 0 || idx >= len(m.AccountKeys) {
		return ""
	}
	return m.AccountKeys[idx]
}

// SignatureInfo from getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts defines optional pagination parameters for getSignaturesForAddress.
type SignaturesOpts struct {
	Before string // Start searching backwards from this signature
	Until  string // Search until this signature
	Limit  int    // Maximum number of signatures to return
}

// Block represents a Solana block.
type Block struct {
	Slot         int64
	BlockTime    *int64
	Transactions []Transaction
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte // decoded account data
	Executable bool
	RentEpoch  uint64
}
