package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program and mint addresses.
const (
	TokenProgramID   = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	WSOLMint         = "So11111111111111111111111111111111111111112"
	RaydiumAmmV4     = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	PumpFunProgramID = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

// SPL token account layout offsets.
const (
	tokenAccountSize   = 165
	tokenAccountMintAt = 0
	tokenAccountOwnAt  = 32
	tokenAccountAmtAt  = 64
)

// SPL mint layout offsets.
const (
	mintAccountSize = 82
	mintSupplyAt    = 36
	mintDecimalsAt  = 44
)

// TokenAccount holds the fields read from an SPL token account.
type TokenAccount struct {
	Mint   string
	Owner  string
	Amount uint64
}

// MintInfo holds the fields read from an SPL mint account.
type MintInfo struct {
	Supply   uint64
	Decimals int
}

// ParseTokenAccount decodes an SPL token account: mint (32 bytes), owner
// (32 bytes), amount (8 bytes little-endian).
func ParseTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < tokenAccountSize {
		return nil, fmt.Errorf("token account data too short: %d bytes", len(data))
	}
	return &TokenAccount{
		Mint:   base58.Encode(data[tokenAccountMintAt : tokenAccountMintAt+32]),
		Owner:  base58.Encode(data[tokenAccountOwnAt : tokenAccountOwnAt+32]),
		Amount: binary.LittleEndian.Uint64(data[tokenAccountAmtAt : tokenAccountAmtAt+8]),
	}, nil
}

// ParseMint decodes an SPL mint account: supply at offset 36 (8 bytes
// little-endian), decimals at offset 44.
func ParseMint(data []byte) (*MintInfo, error) {
	if len(data) < mintAccountSize {
		return nil, fmt.Errorf("mint data too short: %d bytes", len(data))
	}
	return &MintInfo{
		Supply:   binary.LittleEndian.Uint64(data[mintSupplyAt : mintSupplyAt+8]),
		Decimals: int(data[mintDecimalsAt]),
	}, nil
}

// DerivePDA derives a program-derived address for the given seeds, trying
// bump seeds from 255 down. The result must not lie on the ed25519 curve.
func DerivePDA(seeds [][]byte, programID string) (string, uint8, error) {
	programBytes, err := base58.Decode(programID)
	if err != nil {
		return "", 0, fmt.Errorf("decode program id: %w", err)
	}
	if len(programBytes) != 32 {
		return "", 0, fmt.Errorf("program id must be 32 bytes, got %d", len(programBytes))
	}

	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{byte(bump)})
		h.Write(programBytes)
		h.Write([]byte("ProgramDerivedAddress"))
		candidate := h.Sum(nil)

		if !isOnCurve(candidate) {
			return base58.Encode(candidate), uint8(bump), nil
		}
	}

	return "", 0, fmt.Errorf("no valid bump seed found")
}

// isOnCurve reports whether a 32-byte slice is a valid ed25519 point.
func isOnCurve(b []byte) bool {
	if len(b) != ed25519.PublicKeySize {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
