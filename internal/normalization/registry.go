// Package normalization turns raw chain transactions into canonical
// SwapEvents. A program registry tags recognized DEX instructions; the
// normalizer extracts trader, side and amounts from pre/post token balance
// deltas and attaches a pool snapshot built from the pool vault balances.
package normalization

import (
	"strings"

	"github.com/mr-tron/base58"

	"solana-infra-watch/internal/domain"
	"solana-infra-watch/internal/solana"
)

// Raydium AMM v4 swap instruction discriminators (first data byte).
const (
	raydiumSwapBaseIn  = 9
	raydiumSwapBaseOut = 11
)

// Raydium AMM v4 swap account layout: the AMM pool id sits at index 1,
// after the token program.
const raydiumPoolAccountIndex = 1

// pump.fun buy/sell account layout: mint at index 2, bonding curve at 3.
const (
	pumpMintAccountIndex  = 2
	pumpCurveAccountIndex = 3
)

// ProgramRegistry maps DEX program IDs to instruction decoders. Unrecognized
// programs yield no instructions.
type ProgramRegistry struct {
	decoders map[string]instructionDecoder
}

// instructionDecoder classifies one compiled instruction of its program.
// Returns Kind InstructionUnknown when the instruction is not a swap.
type instructionDecoder func(instr solana.CompiledInstruction, msg *solana.TransactionMessage, logs []string) domain.Instruction

// NewProgramRegistry creates a registry with the Raydium AMM v4 and pump.fun
// decoders registered.
func NewProgramRegistry() *ProgramRegistry {
	r := &ProgramRegistry{decoders: make(map[string]instructionDecoder)}
	r.Register(solana.RaydiumAmmV4, decodeRaydium)
	r.Register(solana.PumpFunProgramID, decodePumpFun)
	return r
}

// Register adds a decoder for a program ID.
func (r *ProgramRegistry) Register(programID string, dec instructionDecoder) {
	r.decoders[programID] = dec
}

// Identify returns the swap instructions recognized in tx, top-level
// instructions first in message order, then inner instructions grouped under
// their top-level index. Position within the transaction is recorded as
// (LogIndex = top-level instruction index, InnerIndex = -1 for the top-level
// instruction itself, i for its i-th inner instruction).
func (r *ProgramRegistry) Identify(tx *solana.Transaction) []domain.Instruction {
	if tx == nil || tx.Message == nil {
		return nil
	}

	var logs []string
	if tx.Meta != nil {
		logs = tx.Meta.LogMessages
	}

	var out []domain.Instruction

	for i, instr := range tx.Message.Instructions {
		programID := tx.Message.AccountKey(instr.ProgramIDIndex)
		dec, ok := r.decoders[programID]
		if !ok {
			continue
		}
		tagged := dec(instr, tx.Message, logs)
		if tagged.Kind == domain.InstructionUnknown {
			continue
		}
		tagged.LogIndex = i
		tagged.InnerIndex = -1
		out = append(out, tagged)
	}

	if tx.Meta != nil {
		for _, set := range tx.Meta.InnerInstructions {
			for j, instr := range set.Instructions {
				programID := tx.Message.AccountKey(instr.ProgramIDIndex)
				dec, ok := r.decoders[programID]
				if !ok {
					continue
				}
				tagged := dec(instr, tx.Message, logs)
				if tagged.Kind == domain.InstructionUnknown {
					continue
				}
				tagged.LogIndex = set.Index
				tagged.InnerIndex = j
				out = append(out, tagged)
			}
		}
	}

	return out
}

// decodeRaydium classifies a Raydium AMM v4 instruction by its first data
// byte (9 = swapBaseIn, 11 = swapBaseOut) and reads the pool from the account
// list.
func decodeRaydium(instr solana.CompiledInstruction, msg *solana.TransactionMessage, _ []string) domain.Instruction {
	data, err := base58.Decode(instr.Data)
	if err != nil || len(data) == 0 {
		return domain.Instruction{Kind: domain.InstructionUnknown, ProgramID: solana.RaydiumAmmV4}
	}
	if data[0] != raydiumSwapBaseIn && data[0] != raydiumSwapBaseOut {
		return domain.Instruction{Kind: domain.InstructionUnknown, ProgramID: solana.RaydiumAmmV4}
	}

	var pool string
	if len(instr.Accounts) > raydiumPoolAccountIndex {
		pool = msg.AccountKey(instr.Accounts[raydiumPoolAccountIndex])
	}

	return domain.Instruction{
		Kind:        domain.InstructionRaydiumSwap,
		ProgramID:   solana.RaydiumAmmV4,
		PoolAddress: pool,
	}
}

// decodePumpFun classifies a pump.fun instruction. The program does not use
// single-byte discriminators, so buy/sell is confirmed from the program logs;
// mint and bonding curve come from the account list.
func decodePumpFun(instr solana.CompiledInstruction, msg *solana.TransactionMessage, logs []string) domain.Instruction {
	if !pumpSwapLogged(logs) {
		return domain.Instruction{Kind: domain.InstructionUnknown, ProgramID: solana.PumpFunProgramID}
	}

	var mint, curve string
	if len(instr.Accounts) > pumpMintAccountIndex {
		mint = msg.AccountKey(instr.Accounts[pumpMintAccountIndex])
	}
	if len(instr.Accounts) > pumpCurveAccountIndex {
		curve = msg.AccountKey(instr.Accounts[pumpCurveAccountIndex])
	}

	return domain.Instruction{
		Kind:        domain.InstructionPumpSwap,
		ProgramID:   solana.PumpFunProgramID,
		PoolAddress: curve,
		TokenMint:   mint,
	}
}

func pumpSwapLogged(logs []string) bool {
	for _, l := range logs {
		if strings.Contains(l, "Program log: Instruction: Buy") ||
			strings.Contains(l, "Program log: Instruction: Sell") {
			return true
		}
	}
	return false
}
