package pda

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testVaultProgramID = solana.MustPublicKeyFromBase58("7YMgh7tHNP1mahFrpL4GYT6GeCQ3KmyM2gZCirJF2epV")

func TestDeriveVaultRoundTrip(t *testing.T) {
	for i := 0; i < 16; i++ {
		owner := solana.NewWallet().PublicKey()
		mint := solana.NewWallet().PublicKey()

		address, salt, err := DeriveVault(testVaultProgramID, mint, owner)
		require.NoError(t, err)
		require.NoError(t, VerifyVault(testVaultProgramID, address, mint, owner, salt))

		again, againSalt, err := DeriveVault(testVaultProgramID, mint, owner)
		require.NoError(t, err)
		assert.Equal(t, address, again)
		assert.Equal(t, salt, againSalt)
	}
}

func TestVerifyVaultRejectsWrongSeeds(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	address, salt, err := DeriveVault(testVaultProgramID, mint, owner)
	require.NoError(t, err)

	err = VerifyVault(testVaultProgramID, address, mint, owner, salt-1)
	assert.ErrorIs(t, err, ErrDerivationMismatch)

	err = VerifyVault(testVaultProgramID, address, mint, solana.NewWallet().PublicKey(), salt)
	assert.ErrorIs(t, err, ErrDerivationMismatch)

	err = VerifyVault(testVaultProgramID, address, solana.NewWallet().PublicKey(), owner, salt)
	assert.ErrorIs(t, err, ErrDerivationMismatch)

	err = VerifyVault(solana.NewWallet().PublicKey(), address, mint, owner, salt)
	assert.ErrorIs(t, err, ErrDerivationMismatch)
}

func TestVaultSeedsLayout(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	seeds := VaultSeeds(mint, owner, 7)
	require.Len(t, seeds, 4)
	assert.Equal(t, []byte("vault"), seeds[0])
	assert.Equal(t, mint.Bytes(), seeds[1])
	assert.Equal(t, owner.Bytes(), seeds[2])
	assert.Equal(t, []byte{7}, seeds[3])
}

func TestDeriveEscrowTokenAccountIsAssociatedAddress(t *testing.T) {
	vault := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	escrow, _, err := DeriveEscrowTokenAccount(vault, mint)
	require.NoError(t, err)

	want, _, err := solana.FindProgramAddress(
		[][]byte{vault.Bytes(), solana.TokenProgramID.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	require.NoError(t, err)
	assert.Equal(t, want, escrow)
}

func TestDriftAddressesAreDistinctPerSubAccount(t *testing.T) {
	drift := solana.MustPublicKeyFromBase58("dRiftyHA39MWEi3m9aunc5MzRF1JYuBsbn6VPcn33UH")
	authority := solana.NewWallet().PublicKey()

	user0, _, err := DeriveDriftUser(drift, authority, 0)
	require.NoError(t, err)
	user1, _, err := DeriveDriftUser(drift, authority, 1)
	require.NoError(t, err)
	assert.NotEqual(t, user0, user1)

	market0, _, err := DeriveDriftSpotMarketVault(drift, 0)
	require.NoError(t, err)
	market1, _, err := DeriveDriftSpotMarketVault(drift, 1)
	require.NoError(t, err)
	assert.NotEqual(t, market0, market1)
}
