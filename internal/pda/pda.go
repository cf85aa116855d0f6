package pda

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const VaultTag = "vault"

var ErrDerivationMismatch = errors.New("derived address mismatch")

// AuthoritySeeds is the seed tuple a derived authority is found with and signs
// with: (tag, mint, owner, salt). Derivation and signer proofs both go through
// here so the two can never disagree.
func AuthoritySeeds(tag string, mint, owner solana.PublicKey, salt uint8) [][]byte {
	return [][]byte{[]byte(tag), mint.Bytes(), owner.Bytes(), {salt}}
}

// DeriveAuthority finds the canonical salt for (tag, mint, owner).
func DeriveAuthority(programID solana.PublicKey, tag string, mint, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(tag), mint.Bytes(), owner.Bytes()}, programID)
}

// VerifyAuthority re-derives address from the stored seed fields.
func VerifyAuthority(programID, address solana.PublicKey, tag string, mint, owner solana.PublicKey, salt uint8) error {
	derived, err := solana.CreateProgramAddress(AuthoritySeeds(tag, mint, owner, salt), programID)
	if err != nil {
		return fmt.Errorf("%w: %s salt %d: %v", ErrDerivationMismatch, tag, salt, err)
	}
	if !derived.Equals(address) {
		return fmt.Errorf("%w: %s expected %s, got %s", ErrDerivationMismatch, tag, derived, address)
	}
	return nil
}

func DeriveVault(vaultProgramID, mint, owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return DeriveAuthority(vaultProgramID, VaultTag, mint, owner)
}

func VaultSeeds(mint, owner solana.PublicKey, salt uint8) [][]byte {
	return AuthoritySeeds(VaultTag, mint, owner, salt)
}

func VerifyVault(vaultProgramID, address, mint, owner solana.PublicKey, salt uint8) error {
	return VerifyAuthority(vaultProgramID, address, VaultTag, mint, owner, salt)
}

// DeriveEscrowTokenAccount is the associated token account holding a vault's
// balance for mint.
func DeriveEscrowTokenAccount(vault, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindAssociatedTokenAddress(vault, mint)
}

func DeriveLuloUserAccount(luloProgramID, vault solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("flexlend"), vault.Bytes()}, luloProgramID)
}

func DeriveDriftState(driftProgramID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("drift_state")}, driftProgramID)
}

func DeriveDriftUser(driftProgramID, authority solana.PublicKey, subAccountID uint16) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("user"), authority.Bytes(), u16LE(subAccountID)}, driftProgramID)
}

func DeriveDriftUserStats(driftProgramID, authority solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("user_stats"), authority.Bytes()}, driftProgramID)
}

func DeriveDriftSpotMarketVault(driftProgramID solana.PublicKey, marketIndex uint16) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte("spot_market_vault"), u16LE(marketIndex)}, driftProgramID)
}

func MustDeriveVault(vaultProgramID, mint, owner solana.PublicKey) solana.PublicKey {
	pk, _, err := DeriveVault(vaultProgramID, mint, owner)
	if err != nil {
		panic(fmt.Errorf("derive vault PDA: %w", err))
	}
	return pk
}

func u16LE(value uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, value)
	return buf
}
