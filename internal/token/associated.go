package token

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/vault/backend/internal/ledger"
)

const (
	associatedCreate           byte = 0
	associatedCreateIdempotent byte = 1
)

// AssociatedAddress is the canonical holding account of (wallet, mint).
func AssociatedAddress(wallet, mint solana.PublicKey) (solana.PublicKey, error) {
	address, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return address, nil
}

// NewCreateIdempotentInstruction creates the associated account of (wallet,
// mint) unless it already exists with that wallet and mint.
func NewCreateIdempotentInstruction(payer, wallet, mint solana.PublicKey) (solana.Instruction, error) {
	return newAssociatedInstruction(associatedCreateIdempotent, payer, wallet, mint)
}

func NewCreateInstruction(payer, wallet, mint solana.PublicKey) (solana.Instruction, error) {
	return newAssociatedInstruction(associatedCreate, payer, wallet, mint)
}

// AssociatedAccountMetas is the account order both create variants expect.
func AssociatedAccountMetas(payer, address, wallet, mint solana.PublicKey) solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(address, true, false),
		solana.NewAccountMeta(wallet, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
	}
}

func newAssociatedInstruction(kind byte, payer, wallet, mint solana.PublicKey) (solana.Instruction, error) {
	address, err := AssociatedAddress(wallet, mint)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(
		solana.SPLAssociatedTokenAccountProgramID,
		AssociatedAccountMetas(payer, address, wallet, mint),
		[]byte{kind},
	), nil
}

func processAssociated(ctx *ledger.Context, data []byte) error {
	kind := associatedCreate
	if len(data) > 0 {
		kind = data[0]
	}
	if kind != associatedCreate && kind != associatedCreateIdempotent {
		return fmt.Errorf("%w: unsupported associated token instruction %d", ledger.ErrInvalidInstruction, kind)
	}
	if err := ctx.RequireAccounts(6); err != nil {
		return err
	}
	accs := ctx.Accounts()
	payer, holder, wallet, mint := accs[0], accs[1], accs[2], accs[3]

	seeds := [][]byte{wallet.Key.Bytes(), solana.TokenProgramID.Bytes(), mint.Key.Bytes()}
	expected, bump, err := solana.FindProgramAddress(seeds, ctx.ProgramID())
	if err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrInvalidSeeds, err)
	}
	if !expected.Equals(holder.Key) {
		return fmt.Errorf("%w: associated address for %s/%s is %s, got %s", ledger.ErrInvalidSeeds, wallet.Key, mint.Key, expected, holder.Key)
	}

	if kind == associatedCreateIdempotent && holder.Owner().Equals(solana.TokenProgramID) {
		existing, err := loadAccount(holder)
		if err != nil {
			return err
		}
		if !existing.Owner.Equals(wallet.Key) {
			return fmt.Errorf("%w: %s owned by %s", ErrOwnerMismatch, holder.Key, existing.Owner)
		}
		if !existing.Mint.Equals(mint.Key) {
			return fmt.Errorf("%w: %s is %s", ErrMintMismatch, holder.Key, existing.Mint)
		}
		return nil
	}

	if err := ctx.CreateAccountSigned(payer, holder, AccountSize, solana.TokenProgramID, append(seeds, []byte{bump})); err != nil {
		return err
	}
	if err := ctx.Invoke(newInitializeAccount3Instruction(holder.Key, mint.Key, wallet.Key)); err != nil {
		return err
	}
	ctx.Log("create associated account", "address", holder.Key, "wallet", wallet.Key, "mint", mint.Key)
	return nil
}
